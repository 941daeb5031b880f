package am

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Isolated viper instance, no user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	assert.Equal(t, "logtap.db", cfg.Database.Path)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, "superdb.wasm", cfg.Scanner.EnginePath)
	assert.Equal(t, 100, cfg.Scanner.MemoryBatchSize)
	assert.Equal(t, 50, cfg.Scanner.StoredBatchSize)
	assert.Equal(t, FanoutTee, cfg.Scanner.Fanout)
	assert.Equal(t, DefaultPreviewLimit, cfg.Scanner.PreviewLimit)
	assert.Equal(t, "rules", cfg.Rules.Dir)
	assert.True(t, cfg.Rules.Watch)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "am.toml")
	content := `
[database]
path = "/var/lib/logtap/data.db"

[scanner]
engine_path = "super -i {input_format} -f {output_format} -c {query} -"
stored_batch_size = 25
fanout = "buffer"
`
	require.NoError(t, os.WriteFile(path, []byte(content), DefaultFilePermissions))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/logtap/data.db", cfg.Database.Path)
	assert.Equal(t, 25, cfg.Scanner.StoredBatchSize)
	assert.Equal(t, FanoutBuffer, cfg.Scanner.Fanout)
	// Untouched keys keep their defaults
	assert.Equal(t, 100, cfg.Scanner.MemoryBatchSize)
	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoadFromFile_InvalidFanout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte("[scanner]\nfanout = \"mirror\"\n"), DefaultFilePermissions))

	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scanner.fanout")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "zero values are valid (defaults apply)", config: Config{}},
		{name: "negative memory batch size", config: Config{Scanner: ScannerConfig{MemoryBatchSize: -1}}, wantErr: true},
		{name: "negative stored batch size", config: Config{Scanner: ScannerConfig{StoredBatchSize: -5}}, wantErr: true},
		{name: "negative chunk size", config: Config{Scanner: ScannerConfig{StreamChunkSize: -1}}, wantErr: true},
		{name: "negative preview limit", config: Config{Scanner: ScannerConfig{PreviewLimit: -1}}, wantErr: true},
		{name: "negative parallelism", config: Config{Scanner: ScannerConfig{EngineParallelism: -2}}, wantErr: true},
		{name: "port out of range", config: Config{Server: ServerConfig{Port: 70000}}, wantErr: true},
		{name: "negative upload rate", config: Config{Server: ServerConfig{UploadsPerMinute: -1}}, wantErr: true},
		{name: "buffer fanout", config: Config{Scanner: ScannerConfig{Fanout: FanoutBuffer}}},
		{name: "unknown fanout", config: Config{Scanner: ScannerConfig{Fanout: "copy"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvOverride(t *testing.T) {
	Reset()
	defer Reset()

	t.Setenv("LOGTAP_ENGINE", "/opt/superdb.wasm")
	t.Setenv("LOGTAP_SCANNER_MEMORY_BATCH_SIZE", "10")

	v := GetViper()
	assert.Equal(t, "/opt/superdb.wasm", v.GetString("scanner.engine_path"))
	assert.Equal(t, 10, v.GetInt("scanner.memory_batch_size"))
}

func TestRender(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadWithViper(v)
	require.NoError(t, err)

	out, err := Render(cfg)
	require.NoError(t, err)
	assert.Contains(t, out, "[scanner]")
	assert.Contains(t, out, `engine_path = "superdb.wasm"`)
	assert.Contains(t, out, "stored_batch_size = 50")

	// Rendered output loads back to the same values
	path := filepath.Join(t.TempDir(), "am.toml")
	require.NoError(t, os.WriteFile(path, []byte(out), DefaultFilePermissions))
	roundTripped, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Scanner, roundTripped.Scanner)
}
