// Package calibration implements the rule-based confidence calibrator.
// Confidence is a transparent, hand-specified decision list rather than
// a learned estimate, so a reviewer can explain any verdict from its
// logged inputs alone.
package calibration

import (
	"math"

	"github.com/veritrail/veritrail/internal/similarity"
)

type Level string

const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

const (
	EvidenceCountLowThreshold    = 3
	EvidenceCountMediumThreshold = 10
	DisagreementHighThreshold    = 0.30
	SimilarityClarityThreshold   = 0.20
)

// Calibration notes come from this fixed catalogue only, never from
// free-form generation, so identical inputs produce identical output.
const (
	NoteHighDisagreement     = "High disagreement detected on this analysis — exercise caution"
	NoteLowEvidence          = "Evidence coverage limited — conclusions may be weak"
	NoteHumanReview          = "Human review strongly recommended before acting"
	NoteRestrictedContext    = "Patent/legal context — professional review essential"
	NoteNoveltyRed           = "High overlap with prior art detected — claims at risk"
	NoteLowSimilarityClarity = "Similarity scores lack clear differentiation — interpretation uncertain"
	NoteNoFeedback           = "No human feedback yet — confidence based on system metrics only"
	NoteMixedSignals         = "Mixed evidence signals — additional review advisable"
)

// restrictedDomains never receive HIGH confidence regardless of
// evidence strength.
var restrictedDomains = map[string]bool{
	"PATENT":    true,
	"LEGAL":     true,
	"MEDICAL":   true,
	"FINANCIAL": true,
}

func RestrictedContext(domain string) bool {
	return restrictedDomains[domain]
}

// Inputs is the complete state the calibrator reads. It is assembled
// fresh from persisted evidence, feedback and risk on every call; the
// calibrator itself holds no state.
type Inputs struct {
	EvidenceCount     int
	NoveltyRisk       similarity.RiskLevel
	TotalFeedback     int
	DisagreementRate  float64
	RestrictedContext bool
	SimilarityClarity float64
}

// Metrics echoes the inputs a verdict was derived from, so the verdict
// is reproducible from its own audit record.
type Metrics struct {
	EvidenceCount     int     `json:"evidence_count"`
	NoveltyRisk       string  `json:"novelty_risk"`
	TotalFeedback     int     `json:"total_feedback"`
	DisagreementRate  float64 `json:"disagreement_rate"`
	SimilarityClarity float64 `json:"similarity_clarity"`
}

type Result struct {
	Level                  Level    `json:"confidence_level"`
	HumanReviewRecommended bool     `json:"human_review_recommended"`
	DisagreementFlag       bool     `json:"disagreement_flag"`
	Notes                  []string `json:"calibration_notes"`
	Metrics                Metrics  `json:"metrics"`
}

// Calibrate evaluates the ordered decision list. The first matching
// rule wins; later rules never override an earlier match. The ordering
// is part of the contract: rule 2 (disagreement) fires before rule 3
// (restricted context).
func Calibrate(in Inputs) Result {
	notes := []string{}

	if in.RestrictedContext {
		notes = append(notes, NoteRestrictedContext)
	}
	if in.EvidenceCount < EvidenceCountLowThreshold {
		notes = append(notes, NoteLowEvidence)
	}
	if in.NoveltyRisk == similarity.RiskRed {
		notes = append(notes, NoteNoveltyRed)
	}
	if in.TotalFeedback == 0 {
		notes = append(notes, NoteNoFeedback)
	}
	highDisagreement := in.DisagreementRate > DisagreementHighThreshold
	if highDisagreement {
		notes = append(notes, NoteHighDisagreement)
	}
	if in.SimilarityClarity > 0 && in.SimilarityClarity < SimilarityClarityThreshold {
		notes = append(notes, NoteLowSimilarityClarity)
	}

	var level Level
	switch {
	// Rule 1: RED risk with thin evidence.
	case in.NoveltyRisk == similarity.RiskRed && in.EvidenceCount < EvidenceCountLowThreshold:
		level = LevelLow
		notes = append(notes, NoteHumanReview)

	// Rule 2: high disagreement.
	case highDisagreement:
		level = LevelLow
		notes = append(notes, NoteHumanReview)

	// Rule 3: restricted context. HIGH is unreachable in this branch
	// no matter how strong the evidence; MEDIUM is the ceiling.
	case in.RestrictedContext:
		if in.EvidenceCount >= EvidenceCountMediumThreshold && in.DisagreementRate < 0.10 {
			level = LevelMedium
		} else {
			level = LevelLow
			notes = append(notes, NoteHumanReview)
		}

	// Rule 4: strong evidence, low disagreement.
	case in.EvidenceCount >= EvidenceCountMediumThreshold && in.DisagreementRate < 0.10:
		level = LevelMedium

	// Rule 5: moderate evidence.
	case in.EvidenceCount >= EvidenceCountLowThreshold:
		if in.DisagreementRate < 0.20 {
			level = LevelMedium
		} else {
			level = LevelLow
			notes = append(notes, NoteMixedSignals)
		}

	// Rule 6: conservative default.
	default:
		level = LevelLow
		notes = append(notes, NoteHumanReview)
	}

	// Review recommendation is a superset condition independent of
	// which rule fired: a MEDIUM verdict in a restricted context still
	// always recommends review.
	review := level == LevelLow ||
		in.RestrictedContext ||
		highDisagreement ||
		in.NoveltyRisk == similarity.RiskRed

	return Result{
		Level:                  level,
		HumanReviewRecommended: review,
		DisagreementFlag:       highDisagreement,
		Notes:                  notes,
		Metrics: Metrics{
			EvidenceCount:     in.EvidenceCount,
			NoveltyRisk:       string(in.NoveltyRisk),
			TotalFeedback:     in.TotalFeedback,
			DisagreementRate:  round3(in.DisagreementRate),
			SimilarityClarity: round3(in.SimilarityClarity),
		},
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
