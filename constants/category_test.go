package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyColumn(t *testing.T) {
	tests := []struct {
		column string
		want   ColumnCategory
	}{
		{"Species", ScientificName},
		{"Scientific Name", ScientificName},
		{"Taxa", ScientificName},
		{"Common Name", ScientificName},
		{"Vernacular", CommonName},
		{"English", CommonName},
		{"County", Location},
		{"Where Found", Location},
		{"Date", Temporal},
		{"Year Collected", Temporal},
		{"Status", Conservation},
		{"Endangered?", Conservation},
		{"Family", Taxonomy},
		{"Order", Taxonomy},
		{"Notes", Generic},
		{"  ", Generic},
	}

	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyColumn(tt.column))
		})
	}
}

func TestColumnCategoryHint(t *testing.T) {
	assert.Contains(t, ScientificName.Hint(), "binomial")
	assert.Contains(t, Conservation.Hint(), "status")
	assert.Equal(t, Generic.Hint(), ColumnCategory("bogus").Hint())
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("registry.pdf"))
	assert.True(t, IsPDF("/tmp/REGISTRY.PDF"))
	assert.False(t, IsPDF("registry.png"))
	assert.False(t, IsPDF("registry"))
}
