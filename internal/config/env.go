package config

import "os"

// Environment variables read by the CLI.
const (
	EnvConfig    = "SUMMON_CONFIG"
	EnvLogLevel  = "SUMMON_LOG_LEVEL"
	EnvLogFormat = "SUMMON_LOG_FORMAT"
)

// PathFromEnv returns the config file named by SUMMON_CONFIG, if any.
func PathFromEnv() string {
	return os.Getenv(EnvConfig)
}

// EnvOr returns the value of the environment variable name, or def when it is
// unset or empty.
func EnvOr(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}
