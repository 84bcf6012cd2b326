package similarity

import "fmt"

type RiskLevel string

const (
	RiskGreen   RiskLevel = "GREEN"
	RiskYellow  RiskLevel = "YELLOW"
	RiskRed     RiskLevel = "RED"
	RiskUnknown RiskLevel = "UNKNOWN"
)

var riskSeverity = map[RiskLevel]int{
	RiskUnknown: 0,
	RiskGreen:   1,
	RiskYellow:  2,
	RiskRed:     3,
}

// MaxSeverity returns the higher-severity of two risk levels
// (RED > YELLOW > GREEN > UNKNOWN).
func MaxSeverity(a, b RiskLevel) RiskLevel {
	if riskSeverity[b] > riskSeverity[a] {
		return b
	}
	return a
}

// Thresholds is a yellow/red boundary pair for one evidence kind.
// Both boundaries compare with >=, so a score exactly at threshold
// classifies at the stricter label.
type Thresholds struct {
	Yellow float64
	Red    float64
}

// ThresholdSet carries the per-kind boundaries. Patent thresholds are
// strictly more conservative: claim overlap carries more consequence
// than topical overlap.
type ThresholdSet struct {
	Research Thresholds
	Patent   Thresholds
}

func DefaultThresholds() ThresholdSet {
	return ThresholdSet{
		Research: Thresholds{Yellow: 0.50, Red: 0.80},
		Patent:   Thresholds{Yellow: 0.45, Red: 0.75},
	}
}

// Classify maps a maximum similarity score to a traffic-light risk
// level using the thresholds for the given evidence kind.
func Classify(maxScore float64, kind EvidenceKind, ts ThresholdSet) RiskLevel {
	th := ts.Research
	if kind == KindPatent {
		th = ts.Patent
	}
	switch {
	case maxScore >= th.Red:
		return RiskRed
	case maxScore >= th.Yellow:
		return RiskYellow
	default:
		return RiskGreen
	}
}

// ScoredEvidence is one persisted (project, evidence, score) row fed
// into the project-level assessment.
type ScoredEvidence struct {
	EvidenceID string
	Kind       EvidenceKind
	Score      float64
}

type KindAssessment struct {
	Risk     RiskLevel `json:"risk"`
	MaxScore *float64  `json:"max_score"`
	Matches  int       `json:"matches"`
}

// Assessment is the project-level verdict. TopEvidenceID identifies the
// single evidence item producing MaxScore, so every risk level is
// attributable to one record or to none.
type Assessment struct {
	Overall       RiskLevel
	MaxScore      *float64
	TopEvidenceID string
	Research      KindAssessment
	Patent        KindAssessment
	Compared      int
	Note          string
}

// Assess derives the project verdict from all persisted scores. With no
// scores at all, every level is UNKNOWN.
func Assess(scores []ScoredEvidence, ts ThresholdSet) Assessment {
	out := Assessment{
		Overall:  RiskUnknown,
		Research: KindAssessment{Risk: RiskUnknown},
		Patent:   KindAssessment{Risk: RiskUnknown},
	}
	if len(scores) == 0 {
		out.Note = "Insufficient evidence to assess novelty risk."
		return out
	}

	var topScore float64
	var topID string
	for i, s := range scores {
		kind := &out.Research
		if s.Kind == KindPatent {
			kind = &out.Patent
		}
		kind.Matches++
		if kind.MaxScore == nil || s.Score > *kind.MaxScore {
			v := s.Score
			kind.MaxScore = &v
		}
		if i == 0 || s.Score > topScore {
			topScore = s.Score
			topID = s.EvidenceID
		}
	}

	if out.Research.MaxScore != nil {
		out.Research.Risk = Classify(*out.Research.MaxScore, KindResearch, ts)
	}
	if out.Patent.MaxScore != nil {
		out.Patent.Risk = Classify(*out.Patent.MaxScore, KindPatent, ts)
	}

	out.Compared = len(scores)
	max := topScore
	out.MaxScore = &max
	out.TopEvidenceID = topID
	// The overall verdict is the higher-severity of the two per-kind
	// risks; a kind with no scored evidence stays UNKNOWN and never
	// dominates.
	out.Overall = MaxSeverity(out.Research.Risk, out.Patent.Risk)
	out.Note = assessmentNote(out.Overall, topScore)
	return out
}

func assessmentNote(risk RiskLevel, maxScore float64) string {
	switch risk {
	case RiskRed:
		return fmt.Sprintf("High similarity detected (%.2f). Significant overlap with existing work.", maxScore)
	case RiskYellow:
		return fmt.Sprintf("Moderate similarity detected (%.2f). Review recommended.", maxScore)
	default:
		return fmt.Sprintf("Low similarity detected (%.2f). Idea appears to have novel aspects.", maxScore)
	}
}
