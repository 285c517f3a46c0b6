package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const appDirName = "streamhost"

type Config struct {
	FileServerHost      string
	FileServerPort      int
	FileServerAutostart bool
	ControlAddr         string
	DataDir             string
	IndexFile           string
	LogLevel            string
	LogFormat           string
	RateLimitRPS        int
	RateLimitBurst      int
	CORSAllowedOrigins  []string
}

func LoadConfig() Config {
	return Config{
		FileServerHost:      getEnv("FILE_SERVER_HOST", "127.0.0.1"),
		FileServerPort:      getEnvPort("FILE_SERVER_PORT", 8765),
		FileServerAutostart: getEnvBool("FILE_SERVER_AUTOSTART", true),
		ControlAddr:         getEnv("CONTROL_ADDR", "127.0.0.1:8766"),
		DataDir:             getEnv("DATA_DIR", defaultDataDir()),
		IndexFile:           getEnv("INDEX_FILE", "torrents.json"),
		LogLevel:            strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat:           strings.ToLower(getEnv("LOG_FORMAT", "text")),
		RateLimitRPS:        int(getEnvInt64("CONTROL_RATE_LIMIT_RPS", 50)),
		RateLimitBurst:      int(getEnvInt64("CONTROL_RATE_LIMIT_BURST", 100)),
		CORSAllowedOrigins:  parseOrigins(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}
}

// IndexPath is the durable location of the metadata index.
func (c Config) IndexPath() string {
	if filepath.IsAbs(c.IndexFile) {
		return c.IndexFile
	}
	return filepath.Join(c.DataDir, c.IndexFile)
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return "data"
	}
	return filepath.Join(dir, appDirName)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	if parsed < 0 {
		return fallback
	}
	return parsed
}

func getEnvPort(key string, fallback int) int {
	port := getEnvInt64(key, int64(fallback))
	if port > 65535 {
		return fallback
	}
	return int(port)
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseOrigins(raw string) []string {
	var origins []string
	for _, part := range strings.Split(raw, ",") {
		if origin := strings.TrimSpace(part); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}
