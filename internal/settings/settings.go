// Package settings loads process configuration from the environment,
// replacing spec.md §9's rc()/usr() global singletons with one explicit
// struct threaded through the engine constructor.
package settings

import (
	"os"
	"strconv"

	"sequencer64/internal/midi"
)

// Settings holds the process configuration (resolution, tempo, backend,
// port naming, HTTP port, error reporting), resolved from environment
// variables with defaults matching spec.md's end-to-end scenarios. It does
// not hold port clock states, port input flags, mute groups or control-map
// bindings.
type Settings struct {
	Environment string // "development" or "production"

	PPQN int
	BPM  float64

	// Backend selects which MidiBus transport to construct: "alsa",
	// "portmidi", "jack", or "dummy" (headless/test mode).
	Backend string

	JackClientName string

	HTTPPort string

	SentryDSN string

	// ManualPorts records SEQ64_MANUAL_PORTS (spec.md §4.4's "manual
	// alsa-to-jack" redesign consideration). It is loaded only; no other
	// package reads it, so port enumeration does not depend on it.
	ManualPorts bool
}

// Load resolves Settings from the environment, falling back to the
// defaults used throughout spec.md's scenarios (192 PPQN, 120 BPM).
func Load() *Settings {
	return &Settings{
		Environment:    getEnv("ENVIRONMENT", "development"),
		PPQN:           getEnvInt("SEQ64_PPQN", midi.DefaultPPQN),
		BPM:            getEnvFloat("SEQ64_BPM", midi.DefaultBPM),
		Backend:        getEnv("SEQ64_BACKEND", "dummy"),
		JackClientName: getEnv("SEQ64_JACK_CLIENT", "sequencer64"),
		HTTPPort:       getEnv("PORT", "8080"),
		SentryDSN:      getEnv("SENTRY_DSN", ""),
		ManualPorts:    getEnv("SEQ64_MANUAL_PORTS", "false") == "true",
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func getEnvFloat(key string, defaultValue float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}

// IsProduction reports whether the process is configured for production.
func (s *Settings) IsProduction() bool {
	return s.Environment == "production"
}
