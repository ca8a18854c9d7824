package common

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"OUTPUT_DIR", "OPENAI_MODEL", "RENDER_DPI", "WORKERS", "HTTP_ADDR", "CHECKPOINT_DIR", "ALLOWED_ORIGINS", "PACE_UNIT"} {
		t.Setenv(k, "")
	}

	cfg := LoadConfig()

	assert.Equal(t, "extracted_tables", cfg.Pipeline.OutputDir)
	assert.Equal(t, "extracted_tables", cfg.Checkpoint.Dir)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.InDelta(t, 0.05, cfg.LLM.Temperature, 1e-6)
	assert.Equal(t, 4000, cfg.LLM.MaxTokens)
	assert.Equal(t, 200, cfg.Render.DPI)
	assert.Equal(t, 2, cfg.Server.Workers)
	assert.Equal(t, ":8000", cfg.Server.HTTPAddr)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 5, cfg.Pipeline.CheckpointEvery)
	assert.Equal(t, time.Second, cfg.Pipeline.PaceUnit)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "/data/out")
	t.Setenv("CHECKPOINT_DIR", "")
	t.Setenv("RENDER_DPI", "150")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("PACE_UNIT", "10ms")
	t.Setenv("OPENAI_TEMPERATURE", "not-a-number")

	cfg := LoadConfig()

	assert.Equal(t, "/data/out", cfg.Pipeline.OutputDir)
	assert.Equal(t, "/data/out", cfg.Checkpoint.Dir)
	assert.Equal(t, 150, cfg.Render.DPI)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, 10*time.Millisecond, cfg.Pipeline.PaceUnit)
	assert.InDelta(t, 0.05, cfg.LLM.Temperature, 1e-6)
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		cfg := LoadConfig()
		cfg.LLM.Provider = "openai"
		cfg.LLM.APIKey = "sk-test"
		cfg.Render.Rasterizer = "fitz"
		cfg.Checkpoint.Backend = "file"
		return cfg
	}

	require.NoError(t, base().ValidateForExtraction())

	cfg := base()
	cfg.LLM.APIKey = ""
	err := cfg.ValidateForExtraction()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfig))
	assert.NoError(t, cfg.ValidateForServer())

	cfg = base()
	cfg.LLM.Provider = "vertex"
	cfg.LLM.VertexProject = ""
	assert.Error(t, cfg.ValidateForExtraction())
	cfg.LLM.VertexProject = "proj"
	assert.NoError(t, cfg.ValidateForExtraction())

	cfg = base()
	cfg.Render.Rasterizer = "ghostscript"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Checkpoint.Backend = "s3"
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Server.Workers = 0
	assert.Error(t, cfg.ValidateForServer())
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(p, []byte("PDFTABLES_TEST_A=from-file\nPDFTABLES_TEST_B=from-file\n"), 0o644))
	t.Setenv("PDFTABLES_TEST_A", "from-env")
	t.Setenv("PDFTABLES_TEST_B", "")
	require.NoError(t, os.Unsetenv("PDFTABLES_TEST_B"))

	LoadDotEnv(p, filepath.Join(dir, "missing.env"))

	assert.Equal(t, "from-env", os.Getenv("PDFTABLES_TEST_A"))
	assert.Equal(t, "from-file", os.Getenv("PDFTABLES_TEST_B"))
}
