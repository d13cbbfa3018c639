package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Server
	Port int

	// Library
	LibraryDir string // directory of audio files with JSON analysis sidecars

	// Mixer
	MasterVolume float64
	NoDevice     bool // headless: clocked render loop instead of a sound card

	// Transition planning
	QuickBars    int
	StandardBars int
	LongBars     int

	// Automation timing
	LoadThreshold float64       // seconds remaining that triggers loading the next track
	ArmThreshold  float64       // seconds remaining that starts the idle deck
	PollInterval  time.Duration

	// Advisor
	PrepareWindow float64 // seconds before a transition to start prompting
	ReadyWindow   float64 // seconds before a transition to prompt urgently
}

// Load reads configuration from environment variables with sane defaults.
func Load() Config {
	return Config{
		Port: envInt("CUEFLOW_PORT", 8080),

		LibraryDir: envStr("CUEFLOW_LIBRARY_DIR", "./library"),

		MasterVolume: envFloat("CUEFLOW_MASTER_VOLUME", 0.8),
		NoDevice:     envBool("CUEFLOW_NO_DEVICE", false),

		QuickBars:    envInt("CUEFLOW_QUICK_BARS", 8),
		StandardBars: envInt("CUEFLOW_STANDARD_BARS", 16),
		LongBars:     envInt("CUEFLOW_LONG_BARS", 32),

		LoadThreshold: envFloat("CUEFLOW_LOAD_THRESHOLD", 60),
		ArmThreshold:  envFloat("CUEFLOW_ARM_THRESHOLD", 30),
		PollInterval:  time.Duration(envInt("CUEFLOW_POLL_MS", 250)) * time.Millisecond,

		PrepareWindow: envFloat("CUEFLOW_PREPARE_WINDOW", 60),
		ReadyWindow:   envFloat("CUEFLOW_READY_WINDOW", 16),
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
