package config

import (
	"os"
	"strconv"
	"strings"

	"playlistfetch/internal/model"

	"github.com/joho/godotenv"
)

// Heights kept by the format filter unless ALLOWED_HEIGHTS overrides them.
var (
	defaultHeights = []int{480, 720, 1080}
	highResHeights = []int{1440, 2160}
)

// Load loads configuration from .env and environment variables
func Load() *model.Config {
	godotenv.Load()

	highRes := getEnvBool("HIGH_RES_FORMATS", false)

	return &model.Config{
		Server: model.ServerConfig{
			Port:    getEnvInt("SERVER_PORT", 8080),
			Host:    getEnvStr("SERVER_HOST", "0.0.0.0"),
			Timeout: getEnvInt("SERVER_TIMEOUT", 600),
		},
		Worker: model.WorkerConfig{
			Port:            getEnvInt("WORKER_PORT", 5000),
			Host:            getEnvStr("WORKER_HOST", "localhost"),
			Timeout:         getEnvInt("WORKER_TIMEOUT", 60),
			DownloadTimeout: getEnvInt("WORKER_DOWNLOAD_TIMEOUT", 1800),
		},
		Storage: model.StorageConfig{
			DownloadDir:       getEnvStr("DOWNLOAD_DIR", "./downloads"),
			MaxVideoSizeMB:    getEnvInt("MAX_VIDEO_SIZE_MB", 2048),
			CleanupInterval:   getEnvInt("STORAGE_CLEANUP_INTERVAL", 3600),
			FileTTLSeconds:    getEnvInt("FILE_TTL_SECONDS", 86400),
			SessionTTLSeconds: getEnvInt("SESSION_TTL_SECONDS", 3600),
		},
		Logging: model.LoggingConfig{
			Level:    getEnvStr("LOG_LEVEL", "info"),
			FilePath: getEnvStr("LOG_FILE", "./log/app.log"),
		},
		Security: model.SecurityConfig{
			AllowedDomains: splitList(getEnvStr("ALLOWED_DOMAINS", "youtube.com,youtu.be")),
		},
		Fanout: model.FanoutConfig{
			ConcurrencyLimit:   getEnvInt("FANOUT_CONCURRENCY", 8),
			TaskTimeoutSeconds: getEnvInt("FANOUT_TASK_TIMEOUT", 45),
		},
		Formats: model.FormatConfig{
			Container:      getEnvStr("FORMAT_CONTAINER", "mp4"),
			AllowedHeights: allowedHeights(getEnvStr("ALLOWED_HEIGHTS", ""), highRes),
			HighRes:        highRes,
		},
		Orchestrator: model.OrchestratorConfig{
			RetryRounds: clamp(getEnvInt("ORCHESTRATOR_RETRY_ROUNDS", 1), 0, 1),
			Reprobe:     getEnvBool("REPROBE_BEFORE_DOWNLOAD", false),
		},
		RateLimit: model.RateLimitConfig{
			Enabled:           getEnvBool("RATELIMIT_ENABLED", true),
			RequestsPerMinute: getEnvInt("RATELIMIT_REQUESTS_PER_MINUTE", 60),
			BurstSize:         getEnvInt("RATELIMIT_BURST_SIZE", 10),
		},
	}
}

// allowedHeights parses a comma-separated height list, falling back to the
// default set when nothing valid is given
func allowedHeights(raw string, highRes bool) []int {
	heights := parseIntList(raw)
	if len(heights) == 0 {
		heights = append([]int(nil), defaultHeights...)
	}
	if highRes {
		for _, h := range highResHeights {
			if !containsInt(heights, h) {
				heights = append(heights, h)
			}
		}
	}
	return heights
}

func parseIntList(raw string) []int {
	var out []int
	for _, part := range splitList(raw) {
		if v, err := strconv.Atoi(part); err == nil && v > 0 {
			out = append(out, v)
		}
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func containsInt(list []int, v int) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

func getEnvStr(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	valStr := getEnvStr(key, "")
	if val, err := strconv.Atoi(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	valStr := strings.ToLower(getEnvStr(key, ""))
	if valStr == "true" || valStr == "1" || valStr == "yes" {
		return true
	}
	if valStr == "false" || valStr == "0" || valStr == "no" {
		return false
	}
	return defaultVal
}
