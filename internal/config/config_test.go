package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.ResearchRedThreshold != 0.80 || cfg.ResearchYellowThreshold != 0.50 {
		t.Fatalf("unexpected research thresholds: %+v", cfg)
	}
	if cfg.PatentRedThreshold != 0.75 || cfg.PatentYellowThreshold != 0.45 {
		t.Fatalf("unexpected patent thresholds: %+v", cfg)
	}
	if cfg.ComplianceMode {
		t.Fatal("compliance mode should default to off")
	}
	if !cfg.AuditLogsEnabled {
		t.Fatal("audit logs should default to on")
	}
	if cfg.EmbeddingDimensions != 3072 {
		t.Fatalf("unexpected embedding dimensions: %d", cfg.EmbeddingDimensions)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VERITRAIL_COMPLIANCE_MODE", "true")
	t.Setenv("VERITRAIL_EMBEDDING_DIMENSIONS", "8")
	t.Setenv("VERITRAIL_PATENT_RED_THRESHOLD", "0.9")
	cfg := Load()
	if !cfg.ComplianceMode {
		t.Fatal("expected compliance mode on")
	}
	if cfg.EmbeddingDimensions != 8 {
		t.Fatalf("expected dimensions 8, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.PatentRedThreshold != 0.9 {
		t.Fatalf("expected patent red 0.9, got %f", cfg.PatentRedThreshold)
	}
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("VERITRAIL_EMBEDDING_DIMENSIONS", "not-a-number")
	t.Setenv("VERITRAIL_COMPLIANCE_MODE", "maybe")
	cfg := Load()
	if cfg.EmbeddingDimensions != 3072 {
		t.Fatalf("expected default dimensions, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.ComplianceMode {
		t.Fatal("expected default compliance mode")
	}
}
