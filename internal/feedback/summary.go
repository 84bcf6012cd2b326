package feedback

import (
	"math"

	"github.com/montanaflynn/stats"
)

// OutputSummary aggregates all feedback for one AI output. Counts
// reflect every stored row; nothing is reconciled away.
type OutputSummary struct {
	OutputID         string   `json:"output_id"`
	Total            int      `json:"total_count"`
	Helpful          int      `json:"helpful_count"`
	NotHelpful       int      `json:"not_helpful_count"`
	Agree            int      `json:"agree_count"`
	Disagree         int      `json:"disagree_count"`
	NeedsRevision    int      `json:"needs_revision_count"`
	NeedsExpert      int      `json:"needs_expert_count"`
	DisagreementRate float64  `json:"disagreement_rate"`
	Comments         []string `json:"comments"`
}

const maxSummaryComments = 10

// DisagreementRate is (DISAGREE + NOT_HELPFUL) over the four
// binary-sentiment kinds. NEEDS_REVISION and NEEDS_EXPERT signal review
// urgency, not agreement, and do not participate in the ratio. With no
// qualifying records the rate is 0.0, never NaN.
func DisagreementRate(records []Record) float64 {
	var positive, negative int
	for _, r := range records {
		switch r.Kind {
		case KindAgree, KindHelpful:
			positive++
		case KindDisagree, KindNotHelpful:
			negative++
		}
	}
	total := positive + negative
	if total == 0 {
		return 0.0
	}
	return round3(float64(negative) / float64(total))
}

// Summarize aggregates records for a single output. Records are
// expected newest first; comments keep that order.
func Summarize(outputID string, records []Record) OutputSummary {
	out := OutputSummary{OutputID: outputID, Comments: []string{}}
	for _, r := range records {
		out.Total++
		switch r.Kind {
		case KindHelpful:
			out.Helpful++
		case KindNotHelpful:
			out.NotHelpful++
		case KindAgree:
			out.Agree++
		case KindDisagree:
			out.Disagree++
		case KindNeedsRevision:
			out.NeedsRevision++
		case KindNeedsExpert:
			out.NeedsExpert++
		}
		if r.Comment != "" && len(out.Comments) < maxSummaryComments {
			out.Comments = append(out.Comments, r.Comment)
		}
	}
	out.DisagreementRate = DisagreementRate(records)
	return out
}

// ProjectStats is the project-level roll-up. NeedsReview counts
// NEEDS_EXPERT rows as an explicit review signal distinct from
// disagreement.
type ProjectStats struct {
	ProjectID              string   `json:"project_id"`
	TotalFeedback          int      `json:"total_feedback"`
	OutputsRated           int      `json:"total_outputs_rated"`
	DisagreementRate       float64  `json:"overall_disagreement_rate"`
	NeedsReview            int      `json:"needs_review"`
	MeanOutputDisagreement float64  `json:"mean_output_disagreement"`
	MaxOutputDisagreement  float64  `json:"max_output_disagreement"`
	Recent                 []Record `json:"recent_feedback"`
}

const maxRecentRecords = 10

// SummarizeProject aggregates every record for a project. Records are
// expected newest first.
func SummarizeProject(projectID string, records []Record) ProjectStats {
	out := ProjectStats{ProjectID: projectID, Recent: []Record{}}
	byOutput := map[string][]Record{}
	for _, r := range records {
		out.TotalFeedback++
		if r.Kind == KindNeedsExpert {
			out.NeedsReview++
		}
		byOutput[r.OutputID] = append(byOutput[r.OutputID], r)
		if len(out.Recent) < maxRecentRecords {
			out.Recent = append(out.Recent, r)
		}
	}
	out.OutputsRated = len(byOutput)
	out.DisagreementRate = DisagreementRate(records)

	if len(byOutput) > 0 {
		rates := make([]float64, 0, len(byOutput))
		for _, recs := range byOutput {
			rates = append(rates, DisagreementRate(recs))
		}
		if mean, err := stats.Mean(rates); err == nil {
			out.MeanOutputDisagreement = round3(mean)
		}
		if max, err := stats.Max(rates); err == nil {
			out.MaxOutputDisagreement = round3(max)
		}
	}
	return out
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
