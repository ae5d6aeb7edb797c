package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config drives the intake server.
type Config struct {
	ServerAddr   string
	TrustProxy   bool
	MaxBodyBytes int64    // bytes for report payloads
	Outputs      []string // enabled sinks: log, kafka
	CSRFEnforce  bool     // require the CSRF header to match the cookie
	CSRFCookie   string
	CSRFHeader   string
	CORSOrigins  []string // origins allowed to post with credentials; "*" allows any
	TestMode     bool
	LogLevel     string
	LogFormat    string
}

// BuilderConfig drives the compatibility map builder.
type BuilderConfig struct {
	Dataset       string
	Roots         []string
	Browsers      string
	Scope         string
	Out           string
	VersionPolicy string
	PGDSN         string // empty disables publishing
	PGTable       string
	LogLevel      string
	LogFormat     string
}

// ProbeConfig drives the headless collector.
type ProbeConfig struct {
	ChromePath string
	Headless   bool
	UserAgent  string
	Timeout    time.Duration
	LogLevel   string
	LogFormat  string
}

func getOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getBool(k string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "1", "t", "true", "y", "yes":
		return true
	case "0", "f", "false", "n", "no":
		return false
	}
	return def
}
func getInt64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return def
}

func getStringSlice(k, def string) []string {
	v := os.Getenv(k)
	if v == "" {
		v = def
	}
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func Load() Config {
	return Config{
		ServerAddr:   getOr("SERVER_ADDR", ":19890"),
		TrustProxy:   getBool("TRUST_PROXY", false),
		MaxBodyBytes: getInt64("MAX_BODY_BYTES", 256<<10), // 256 KiB default
		Outputs:      getStringSlice("OUTPUTS", "log"),   // default to log only
		CSRFEnforce:  getBool("CSRF_ENFORCE", false),
		CSRFCookie:   getOr("CSRF_COOKIE", "csrftoken"),
		CSRFHeader:   getOr("CSRF_HEADER", "X-CSRFToken"),
		CORSOrigins:  getStringSlice("CORS_ORIGINS", ""), // same-origin only by default
		TestMode:     getBool("TEST_MODE", false),
		LogLevel:     getOr("LOG_LEVEL", "info"),
		LogFormat:    getOr("LOG_FORMAT", "text"),
	}
}

func LoadBuilder() BuilderConfig {
	return BuilderConfig{
		Dataset:       getOr("FEATUREMAP_DATASET", "data.json"),
		Roots:         getStringSlice("FEATUREMAP_ROOTS", "api,javascript.builtins"),
		Browsers:      getOr("FEATUREMAP_BROWSERS", "browsers.yaml"),
		Scope:         getOr("FEATUREMAP_SCOPE", ""),
		Out:           getOr("FEATUREMAP_OUT", "feature_map.json"),
		VersionPolicy: getOr("FEATUREMAP_VERSION_POLICY", "floor"),
		PGDSN:         getOr("FEATUREMAP_PG_DSN", ""),
		PGTable:       getOr("FEATUREMAP_PG_TABLE", "feature_map"),
		LogLevel:      getOr("LOG_LEVEL", "info"),
		LogFormat:     getOr("LOG_FORMAT", "text"),
	}
}

func LoadProbe() ProbeConfig {
	return ProbeConfig{
		ChromePath: getOr("PROBE_CHROME_PATH", ""),
		Headless:   getBool("PROBE_HEADLESS", true),
		UserAgent:  getOr("PROBE_USER_AGENT", ""),
		Timeout:    getDuration("PROBE_TIMEOUT", 30*time.Second),
		LogLevel:   getOr("LOG_LEVEL", "info"),
		LogFormat:  getOr("LOG_FORMAT", "text"),
	}
}
