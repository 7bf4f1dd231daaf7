package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Batch.MaxChunkSize)
	assert.Equal(t, 10*time.Second, cfg.Batch.PollInterval())
	assert.Equal(t, time.Duration(0), cfg.Batch.PollTimeout())
	assert.Equal(t, "saaras:v3", cfg.Batch.Model)
	assert.Equal(t, "te-IN", cfg.Batch.LanguageCode)
	assert.Equal(t, "transcribe", cfg.Batch.Mode)
	assert.Equal(t, 5, cfg.Batch.Workers)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcribe.yaml")
	body := []byte("batch:\n  max_chunk_size: 7\n  poll_interval_seconds: 3\n  submit_pause: 250ms\n  language_code: ta-IN\n")
	require.NoError(t, os.WriteFile(path, body, 0o600))
	t.Setenv("SARVAM_LANGUAGE_CODE", "hi-IN")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Batch.MaxChunkSize)
	assert.Equal(t, 3*time.Second, cfg.Batch.PollInterval())
	assert.Equal(t, 250*time.Millisecond, cfg.Batch.SubmitPause)
	assert.Equal(t, "hi-IN", cfg.Batch.LanguageCode, "environment wins over file")
	assert.Equal(t, "saaras:v3", cfg.Batch.Model, "untouched keys keep defaults")
}

func TestLoad_RejectsInvalidChunkSize(t *testing.T) {
	t.Setenv("MAX_CHUNK_SIZE", "0")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MaxChunkSize")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestValidate_ObjectStoreNeedsBucket(t *testing.T) {
	cfg := NewDefault()
	cfg.ObjectStore.Endpoint = "localhost:9000"
	require.Error(t, Validate(cfg))

	cfg.ObjectStore.Bucket = "transcripts"
	require.NoError(t, Validate(cfg))
}
