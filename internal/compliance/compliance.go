// Package compliance implements the process-wide safety switch for
// institutional deployments. The mode flag is injected at construction
// from startup configuration; no endpoint can flip it at runtime.
package compliance

import (
	"fmt"
	"sort"
)

const (
	FeaturePatentClaimGeneration     = "PATENT_CLAIM_GENERATION"
	FeatureDraftOptimizationCreative = "DRAFT_OPTIMIZATION_CREATIVE"
	FeatureHighRiskNoveltyCheck      = "HIGH_RISK_NOVELTY_CHECK"
)

type Restriction struct {
	AllowedInCompliance bool
	Reason              string
}

// restrictedFeatures is the static restriction table. Unknown feature
// names are treated as unrestricted: every risky feature must be
// explicitly enumerated here or it is permitted.
var restrictedFeatures = map[string]Restriction{
	FeaturePatentClaimGeneration: {
		AllowedInCompliance: false,
		Reason:              "Patent claim generation is disabled in Compliance Mode to prevent unauthorized legal practice.",
	},
	FeatureDraftOptimizationCreative: {
		AllowedInCompliance: false,
		Reason:              "Creative rewriting is disabled. Only clarity/grammar fixes allowed.",
	},
	FeatureHighRiskNoveltyCheck: {
		AllowedInCompliance: true,
		Reason:              "Novelty checking is allowed but creates permanent audit records.",
	},
}

// safeRewriteInstruction replaces user-supplied rewrite instructions
// while compliance mode is active.
const safeRewriteInstruction = "Improve clarity, grammar, and academic tone. Do not add new ideas or change the meaning."

// Violation blocks an operation entirely before any state change and
// always carries the human-readable restriction reason.
type Violation struct {
	Feature string
	Reason  string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("compliance restriction on %s: %s", v.Feature, v.Reason)
}

type Gate struct {
	active bool
}

func NewGate(active bool) *Gate {
	return &Gate{active: active}
}

func (g *Gate) Active() bool {
	return g.active
}

// Check returns nil when compliance mode is inactive, when the feature
// is not listed, or when the listing allows it. Only explicitly listed
// and disallowed features are blocked.
func (g *Gate) Check(feature string) error {
	if !g.active {
		return nil
	}
	rule, ok := restrictedFeatures[feature]
	if !ok || rule.AllowedInCompliance {
		return nil
	}
	return &Violation{Feature: feature, Reason: rule.Reason}
}

// Transform returns the effective input for a gated feature and whether
// a substitution occurred. Callers must surface the substitution to the
// user; the override itself is silent.
func (g *Gate) Transform(feature, userInput string) (string, bool) {
	if !g.active {
		return userInput, false
	}
	if feature == FeatureDraftOptimizationCreative {
		return safeRewriteInstruction, true
	}
	return userInput, false
}

type Status struct {
	ComplianceModeActive bool     `json:"compliance_mode_active"`
	RestrictedFeatures   []string `json:"restricted_features"`
	AuditLoggingEnabled  bool     `json:"audit_logging_enabled"`
}

// Status reports the current mode and the explicitly blocked features,
// for display.
func (g *Gate) Status(auditLoggingEnabled bool) Status {
	blocked := []string{}
	for name, rule := range restrictedFeatures {
		if !rule.AllowedInCompliance {
			blocked = append(blocked, name)
		}
	}
	sort.Strings(blocked)
	return Status{
		ComplianceModeActive: g.active,
		RestrictedFeatures:   blocked,
		AuditLoggingEnabled:  auditLoggingEnabled,
	}
}
