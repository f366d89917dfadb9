package config

import (
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
)

// Config holds every tunable of the detection server. Values come from the
// environment, optionally seeded from a .env file.
type Config struct {
	Port            int
	LogDirectory    string
	DatabasePath    string
	StaticDirectory string

	DefaultSourceID int // Used when an operator selection is stale
	ProbeMaxIndex   int // Enumeration probes device indices 0..ProbeMaxIndex

	AnimalModelPath           string
	AnimalConfigPath          string
	AnimalCategory            string // Empty accepts every label
	AnimalConfidenceThreshold float64
	AnimalBoxColor            color.RGBA

	HumanModelPath           string
	HumanConfigPath          string
	HumanCategory            string
	HumanConfidenceThreshold float64
	HumanBoxColor            color.RGBA

	LabelsPath  string // Optional, one class label per line
	JPEGQuality int
	HubBuffer   int // Pending viewer messages before frames are dropped
}

// Load reads .env (if present) and the process environment.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnvAsInt("PORT", 8080),
		LogDirectory:    getEnv("LOG_DIR", filepath.Join(".", "logs")),
		DatabasePath:    getEnv("DB_PATH", filepath.Join(".", "data", "dualdetect.db")),
		StaticDirectory: getEnv("STATIC_DIR", filepath.Join(".", "static")),

		DefaultSourceID: getEnvAsInt("DEFAULT_SOURCE_ID", 0),
		ProbeMaxIndex:   getEnvAsInt("PROBE_MAX_INDEX", 4),

		AnimalModelPath:           getEnv("ANIMAL_MODEL_PATH", filepath.Join(".", "models", "animal", "frozen_inference_graph.pb")),
		AnimalConfigPath:          getEnv("ANIMAL_CONFIG_PATH", filepath.Join(".", "models", "animal", "graph.pbtxt")),
		AnimalCategory:            getEnv("ANIMAL_CATEGORY", ""),
		AnimalConfidenceThreshold: getEnvAsThreshold("ANIMAL_CONFIDENCE_THRESHOLD", 0.60),
		AnimalBoxColor:            getEnvAsColor("ANIMAL_BOX_COLOR", color.RGBA{R: 0, G: 0, B: 255, A: 255}),

		HumanModelPath:           getEnv("HUMAN_MODEL_PATH", filepath.Join(".", "models", "person", "frozen_inference_graph.pb")),
		HumanConfigPath:          getEnv("HUMAN_CONFIG_PATH", filepath.Join(".", "models", "person", "graph.pbtxt")),
		HumanCategory:            getEnv("HUMAN_CATEGORY", "person"),
		HumanConfidenceThreshold: getEnvAsThreshold("HUMAN_CONFIDENCE_THRESHOLD", 0.0),
		HumanBoxColor:            getEnvAsColor("HUMAN_BOX_COLOR", color.RGBA{R: 0, G: 255, B: 0, A: 255}),

		LabelsPath:  getEnv("LABELS_PATH", ""),
		JPEGQuality: getEnvAsInt("JPEG_QUALITY", 80),
		HubBuffer:   getEnvAsInt("HUB_BUFFER", 16),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := cast.ToIntE(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsThreshold parses a confidence threshold and clamps it into [0,1].
func getEnvAsThreshold(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := cast.ToFloat64E(value)
	if err != nil || math.IsNaN(f) {
		return defaultValue
	}
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

func getEnvAsColor(key string, defaultValue color.RGBA) color.RGBA {
	if value := os.Getenv(key); value != "" {
		if c, err := ParseColor(value); err == nil {
			return c
		}
	}
	return defaultValue
}

// ParseColor parses an "R,G,B" triple into an opaque color.
func ParseColor(s string) (color.RGBA, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return color.RGBA{}, fmt.Errorf("color %q: want R,G,B", s)
	}
	var rgb [3]uint8
	for i, p := range parts {
		v, err := cast.ToIntE(strings.TrimSpace(p))
		if err != nil {
			return color.RGBA{}, fmt.Errorf("color %q: %w", s, err)
		}
		if v < 0 || v > 255 {
			return color.RGBA{}, fmt.Errorf("color %q: component %d out of range", s, v)
		}
		rgb[i] = uint8(v)
	}
	return color.RGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, nil
}
