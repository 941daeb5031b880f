package am

// Config represents the LogTap configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database" toml:"database"`
	Scanner  ScannerConfig  `mapstructure:"scanner" toml:"scanner"`
	Server   ServerConfig   `mapstructure:"server" toml:"server"`
	Rules    RulesConfig    `mapstructure:"rules" toml:"rules"`
}

// DatabaseConfig configures the SQLite database backing the blob store
type DatabaseConfig struct {
	Path string `mapstructure:"path" toml:"path"`
}

// ScannerConfig configures the rule-batch scanner and its query engine
type ScannerConfig struct {
	EnginePath              string `mapstructure:"engine_path" toml:"engine_path"`                             // *.wasm module, or a command line for an external engine
	MemoryBatchSize         int    `mapstructure:"memory_batch_size" toml:"memory_batch_size"`                 // rules per batch for in-memory datasets (default: 100)
	StoredBatchSize         int    `mapstructure:"stored_batch_size" toml:"stored_batch_size"`                 // rules per batch for stored datasets (default: 50)
	Fanout                  string `mapstructure:"fanout" toml:"fanout"`                                       // "tee" or "buffer"
	StreamChunkSize         int    `mapstructure:"stream_chunk_size" toml:"stream_chunk_size"`                 // bytes per blob store read
	PreviewLimit            int    `mapstructure:"preview_limit" toml:"preview_limit"`                         // characters kept in a hit preview
	EngineParallelism       int    `mapstructure:"engine_parallelism" toml:"engine_parallelism"`               // concurrent queries inside one batch (command engine)
	EngineVersionConstraint string `mapstructure:"engine_version_constraint" toml:"engine_version_constraint"` // semver constraint checked against wasm engines
}

// ServerConfig configures the WebSocket scan host
type ServerConfig struct {
	Port             int      `mapstructure:"port" toml:"port"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
	UploadsPerMinute int      `mapstructure:"uploads_per_minute" toml:"uploads_per_minute"` // dataset uploads accepted per minute (0 = unlimited)
}

// RulesConfig configures where predefined rule files live
type RulesConfig struct {
	Dir   string `mapstructure:"dir" toml:"dir"`
	Watch bool   `mapstructure:"watch" toml:"watch"` // reload rule files on change while serving
}

// Fan-out strategies for stored datasets
const (
	FanoutTee    = "tee"
	FanoutBuffer = "buffer"
)

// Default values, shared by SetDefaults and the zero-value fallbacks in the scanner
const (
	DefaultServerPort        = 8770
	DefaultMemoryBatchSize   = 100
	DefaultStoredBatchSize   = 50
	DefaultStreamChunkSize   = 64 * 1024
	DefaultPreviewLimit      = 100
	DefaultEngineParallelism = 4
)

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)
