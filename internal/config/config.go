// Package config reads the launcher's environment overrides.
package config

import (
	"time"

	"github.com/xyproto/env/v2"
)

const (
	// DefaultSentinel tells the server to skip its glibc requirements check.
	DefaultSentinel = "/tmp/vscode-skip-server-requirements-check"

	// DefaultDebounceSeconds lets a multi-file extension install settle
	// before the manifest is rescanned.
	DefaultDebounceSeconds = 5
)

// Settings are read once at startup.
type Settings struct {
	Debounce time.Duration // CODEPATCH_DEBOUNCE_SECONDS
	Sentinel string        // CODEPATCH_SENTINEL
	Patchelf string        // CODEPATCH_PATCHELF
	Debug    bool          // CODEPATCH_DEBUG
}

// Load reads Settings from the environment.
func Load() Settings {
	secs := env.Int("CODEPATCH_DEBOUNCE_SECONDS", DefaultDebounceSeconds)
	if secs < 0 {
		secs = 0
	}

	return Settings{
		Debounce: time.Duration(secs) * time.Second,
		Sentinel: env.Str("CODEPATCH_SENTINEL", DefaultSentinel),
		Patchelf: env.Str("CODEPATCH_PATCHELF", "patchelf"),
		Debug:    env.Bool("CODEPATCH_DEBUG"),
	}
}
