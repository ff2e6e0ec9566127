package model

// Config holds application configuration
type Config struct {
	Server       ServerConfig
	Worker       WorkerConfig
	Storage      StorageConfig
	Logging      LoggingConfig
	Security     SecurityConfig
	Fanout       FanoutConfig
	Formats      FormatConfig
	Orchestrator OrchestratorConfig
	RateLimit    RateLimitConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port    int
	Host    string
	Timeout int // seconds
}

// WorkerConfig points at the extraction/transfer worker (yt-dlp sidecar)
type WorkerConfig struct {
	Port            int
	Host            string
	Timeout         int // seconds, metadata calls
	DownloadTimeout int // seconds, transfer calls
}

// StorageConfig holds storage configuration
type StorageConfig struct {
	DownloadDir       string
	MaxVideoSizeMB    int
	CleanupInterval   int // seconds
	FileTTLSeconds    int
	SessionTTLSeconds int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string
	FilePath string
}

// SecurityConfig holds security configuration
type SecurityConfig struct {
	AllowedDomains []string
}

// FanoutConfig bounds concurrent metadata resolution for playlists
type FanoutConfig struct {
	ConcurrencyLimit   int // <= 0 means unbounded
	TaskTimeoutSeconds int
}

// FormatConfig is the container/height allow-list applied when listing formats
type FormatConfig struct {
	Container      string
	AllowedHeights []int
	HighRes        bool // also allow 1440 and 2160
}

// OrchestratorConfig controls the download run
type OrchestratorConfig struct {
	RetryRounds int // clamped to 0..1
	Reprobe     bool
}

// RateLimitConfig holds per-IP rate limiting configuration for the API
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
	BurstSize         int
}
