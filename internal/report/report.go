// Package report assembles the calibration report for a project: the
// novelty verdict, confidence level and feedback roll-up in one
// reviewer-facing document.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/veritrail/veritrail/internal/calibration"
	"github.com/veritrail/veritrail/internal/feedback"
	"github.com/veritrail/veritrail/internal/store"
)

// Data is everything the builder renders. Callers assemble it from the
// pipeline's current persisted state.
type Data struct {
	Project     store.Project
	Evidence    []store.Evidence
	Scores      []store.ScoreRow
	Risk        string
	RiskNote    string
	Calibration calibration.Result
	Feedback    feedback.ProjectStats
	GeneratedAt time.Time
}

// BuildMarkdown renders the report document. Output is deterministic
// for identical input, so regenerating a report never silently changes
// a delivered verdict.
func BuildMarkdown(d Data) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Trust Calibration Report\n\n")
	fmt.Fprintf(&b, "**Project:** %s\n\n", d.Project.Title)
	fmt.Fprintf(&b, "**Domain:** %s\n\n", d.Project.Domain)
	fmt.Fprintf(&b, "**Generated:** %s\n\n", d.GeneratedAt.UTC().Format("January 2, 2006 15:04 MST"))

	fmt.Fprintf(&b, "## Novelty Risk\n\n")
	fmt.Fprintf(&b, "**Verdict:** %s\n\n", d.Risk)
	if d.RiskNote != "" {
		fmt.Fprintf(&b, "%s\n\n", d.RiskNote)
	}

	fmt.Fprintf(&b, "## Confidence\n\n")
	fmt.Fprintf(&b, "**Level:** %s\n\n", d.Calibration.Level)
	if d.Calibration.HumanReviewRecommended {
		fmt.Fprintf(&b, "**Human review recommended.**\n\n")
	}
	if len(d.Calibration.Notes) > 0 {
		for _, n := range d.Calibration.Notes {
			fmt.Fprintf(&b, "- %s\n", n)
		}
		b.WriteString("\n")
	}
	m := d.Calibration.Metrics
	fmt.Fprintf(&b, "| Metric | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| Evidence count | %d |\n", m.EvidenceCount)
	fmt.Fprintf(&b, "| Novelty risk | %s |\n", m.NoveltyRisk)
	fmt.Fprintf(&b, "| Feedback records | %d |\n", m.TotalFeedback)
	fmt.Fprintf(&b, "| Disagreement rate | %.3f |\n", m.DisagreementRate)
	fmt.Fprintf(&b, "| Similarity clarity | %.3f |\n\n", m.SimilarityClarity)

	fmt.Fprintf(&b, "## Evidence Compared\n\n")
	if len(d.Scores) == 0 {
		b.WriteString("No similarity scores computed yet.\n\n")
	} else {
		titles := map[string]string{}
		for _, e := range d.Evidence {
			titles[e.ID] = e.Title
		}
		fmt.Fprintf(&b, "| Evidence | Kind | Score |\n|---|---|---|\n")
		for _, s := range d.Scores {
			title := titles[s.EvidenceID]
			if title == "" {
				title = s.EvidenceID
			}
			fmt.Fprintf(&b, "| %s | %s | %.3f |\n", title, s.Kind, s.Score)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "## Reviewer Feedback\n\n")
	if d.Feedback.TotalFeedback == 0 {
		b.WriteString("No reviewer feedback submitted.\n")
	} else {
		fmt.Fprintf(&b, "%d records across %d outputs. Overall disagreement rate %.3f.\n",
			d.Feedback.TotalFeedback, d.Feedback.OutputsRated, d.Feedback.DisagreementRate)
		if d.Feedback.NeedsReview > 0 {
			fmt.Fprintf(&b, "\n%d records request expert review.\n", d.Feedback.NeedsReview)
		}
	}

	return b.String()
}
