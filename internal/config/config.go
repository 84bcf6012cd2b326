package config

import (
	"os"
	"strconv"
	"strings"
)

// Settings holds everything read from the environment at startup.
// Compliance mode is deliberately only settable here: there is no
// endpoint that toggles it at runtime.
type Settings struct {
	ListenAddr string
	DBPath     string

	EmbeddingDimensions int

	ResearchYellowThreshold float64
	ResearchRedThreshold    float64
	PatentYellowThreshold   float64
	PatentRedThreshold      float64

	ComplianceMode   bool
	AuditLogsEnabled bool
}

func Load() Settings {
	return Settings{
		ListenAddr: envString("VERITRAIL_LISTEN_ADDR", ":8080"),
		DBPath:     envString("VERITRAIL_DB_PATH", "veritrail.db"),

		EmbeddingDimensions: envInt("VERITRAIL_EMBEDDING_DIMENSIONS", 3072),

		ResearchYellowThreshold: envFloat("VERITRAIL_RESEARCH_YELLOW_THRESHOLD", 0.50),
		ResearchRedThreshold:    envFloat("VERITRAIL_RESEARCH_RED_THRESHOLD", 0.80),
		PatentYellowThreshold:   envFloat("VERITRAIL_PATENT_YELLOW_THRESHOLD", 0.45),
		PatentRedThreshold:      envFloat("VERITRAIL_PATENT_RED_THRESHOLD", 0.75),

		ComplianceMode:   envBool("VERITRAIL_COMPLIANCE_MODE", false),
		AuditLogsEnabled: envBool("VERITRAIL_AUDIT_LOGS_ENABLED", true),
	}
}

func envString(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
