package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("modelPath: models/test.onnx\n"))
	require.NoError(t, err)
	assert.Equal(t, "models/test.onnx", cfg.ModelPath)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, BackendDNN, cfg.Backend)
	assert.Equal(t, "dropStale", cfg.Ordering)
	assert.Equal(t, 0, cfg.MaxInFlight)
	assert.Equal(t, 5*time.Second, cfg.SessionIdle())
	assert.Equal(t, 2*time.Second, cfg.RemoteTimeout())
	assert.Equal(t, 5*time.Second, cfg.Heartbeat())
}

func TestParse_ZeroValuesFilled(t *testing.T) {
	cfg, err := Parse([]byte("httpPort: 0\nsessionIdleMs: -1\nbackend: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 5000, cfg.SessionIdleMs)
	assert.Equal(t, BackendDNN, cfg.Backend)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"backend", "backend: tflite\n"},
		{"remote without url", "backend: remote\n"},
		{"ordering", "ordering: fifo\n"},
		{"log mode", "logMode: verbose\n"},
		{"registry", "useRegServer: true\n"},
		{"syntax", "httpPort: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: remote
remoteURL: http://127.0.0.1:9000
ordering: acceptAny
maxInFlight: 1
logMode: development
`), 0o644))
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendRemote, cfg.Backend)
	assert.Equal(t, "acceptAny", cfg.Ordering)
	assert.Equal(t, 1, cfg.MaxInFlight)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
