package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeColumns(t *testing.T) {
	got := NormalizeColumns([]string{" Species ", "", "Status", "Species", "  "})
	assert.Equal(t, []string{"Species", "Status"}, got)
}

func TestValidateColumns(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
		wantErr bool
	}{
		{"valid", []string{"Species", "Status"}, false},
		{"empty", []string{}, true},
		{"nil", nil, true},
		{"blank item", []string{"Species", " "}, true},
		{"duplicate", []string{"Species", "Species"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateColumns(tt.columns)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestParseJobPreset(t *testing.T) {
	p, err := ParseJobPreset([]byte(`
columns: [Species, " Status ", Species]
instructions: Skip the index.
sample_pages: 3
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Species", "Status"}, p.Columns)
	assert.Equal(t, "Skip the index.", p.Instructions)
	assert.Equal(t, 3, p.SamplePages)

	_, err = ParseJobPreset([]byte("columns: []\n"))
	assert.Error(t, err)

	_, err = ParseJobPreset([]byte("columns: [A]\nsample_pages: -1\n"))
	assert.Error(t, err)

	_, err = ParseJobPreset([]byte("columns: [A\n"))
	assert.Error(t, err)
}

func TestIsFatal(t *testing.T) {
	err := DocumentOpenError("/missing.pdf", errors.New("no such file"))
	assert.True(t, IsFatal(err))
	assert.True(t, IsFatal(fmt.Errorf("run: %w", err)))
	assert.True(t, errors.Is(err, ErrDocumentOpen))

	var appErr *AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, CodeDocumentOpen, appErr.Code)

	assert.False(t, IsFatal(errors.New("page 3 failed")))
	assert.False(t, IsFatal(nil))
}
