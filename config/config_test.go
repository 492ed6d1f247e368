package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hubenschmidt/postsearch/vector"
)

func mapLookup(m map[string]string) lookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1024, cfg.Dimension())
	assert.Equal(t, vector.Cosine, cfg.Metric())
	assert.Equal(t, int64(10*1024*1024), cfg.MaxImageBytes)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(mapLookup(map[string]string{
		"PG_DSN":             "postgres://u:p@db:5432/x",
		"EMBEDDING_PROVIDER": "local",
		"FUSE_ALPHA":         "0.25",
		"EMBEDDING_DIM":      "64",
		"COHERE_TIMEOUT":     "2.5",
		"IVFFLAT_PROBES":     "20",
		"DISTANCE_METRIC":    "euclidean",
		"DEBUG_ROUTES":       "true",
		"MAX_IMAGE_BYTES":    "1024",
		"WORKER_RATE":        "0",
	}))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "postgres://u:p@db:5432/x", cfg.DatabaseDSN)
	assert.Equal(t, ProviderLocal, cfg.Embedding.Provider)
	assert.Equal(t, 0.25, cfg.Embedding.Local.FuseAlpha)
	assert.Equal(t, 64, cfg.Dimension())
	assert.Equal(t, 2500*time.Millisecond, cfg.Embedding.Cohere.Timeout)
	assert.Equal(t, 20, cfg.Search.Probes)
	assert.Equal(t, vector.Euclidean, cfg.Metric())
	assert.True(t, cfg.DebugRoutes)
	assert.Equal(t, int64(1024), cfg.MaxImageBytes)
	assert.Equal(t, 0.0, cfg.Worker.RatePerSecond)
}

func TestApplyEnvPGDSNWinsOverDatabaseURL(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.applyEnv(mapLookup(map[string]string{
		"DATABASE_URL": "postgres://a",
		"PG_DSN":       "postgres://b",
	})))
	assert.Equal(t, "postgres://b", cfg.DatabaseDSN)
}

func TestApplyEnvParseErrors(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(mapLookup(map[string]string{
		"FUSE_ALPHA":     "half",
		"COHERE_TIMEOUT": "soon",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "FUSE_ALPHA")
	assert.Contains(t, err.Error(), "COHERE_TIMEOUT")
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"alpha":    func(c *Config) { c.Embedding.Provider = ProviderLocal; c.Embedding.Local.FuseAlpha = 1.2 },
		"dim":      func(c *Config) { c.Embedding.Cohere.Dimension = 0 },
		"provider": func(c *Config) { c.Embedding.Provider = "vertex" },
		"metric":   func(c *Config) { c.Search.Metric = "hamming" },
		"probes":   func(c *Config) { c.Search.Probes = 0 },
		"image":    func(c *Config) { c.MaxImageBytes = -1 },
		"timeout":  func(c *Config) { c.Embedding.Cohere.Timeout = 0 },
		"workers":  func(c *Config) { c.Worker.Count = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "postsearch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: ":9000"
database_dsn: "memory"
embedding:
  provider: local
  local:
    dimension: 32
    fuse_alpha: 0.7
search:
  probes: 5
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 32, cfg.Dimension())
	assert.Equal(t, 0.7, cfg.Embedding.Local.FuseAlpha)
	assert.Equal(t, 5, cfg.Search.Probes)
	assert.Equal(t, "hash", cfg.Embedding.Local.Encoder, "unset keys keep defaults")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestAllowedOrigins(t *testing.T) {
	cfg := Default()
	assert.Nil(t, cfg.AllowedOrigins())

	cfg.CORSAllowOrigins = "https://a.example, https://b.example ,"
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
}
