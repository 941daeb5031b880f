package am

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "logtap.db")

	// Scanner defaults
	v.SetDefault("scanner.engine_path", "superdb.wasm")
	v.SetDefault("scanner.memory_batch_size", DefaultMemoryBatchSize)
	v.SetDefault("scanner.stored_batch_size", DefaultStoredBatchSize) // smaller: every rule holds a fan-out buffer
	v.SetDefault("scanner.fanout", FanoutTee)
	v.SetDefault("scanner.stream_chunk_size", DefaultStreamChunkSize)
	v.SetDefault("scanner.preview_limit", DefaultPreviewLimit)
	v.SetDefault("scanner.engine_parallelism", DefaultEngineParallelism)
	v.SetDefault("scanner.engine_version_constraint", ">= 0.1.0")

	// Server defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
	v.SetDefault("server.uploads_per_minute", 30)

	// Rules defaults
	v.SetDefault("rules.dir", "rules")
	v.SetDefault("rules.watch", true)
}

// BindSensitiveEnvVars binds keys that are commonly set from the environment
func BindSensitiveEnvVars(v *viper.Viper) {
	_ = v.BindEnv("database.path", "LOGTAP_DATABASE_PATH")
	_ = v.BindEnv("scanner.engine_path", "LOGTAP_ENGINE")
}
