package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/veritrail/veritrail/internal/calibration"
	"github.com/veritrail/veritrail/internal/feedback"
	"github.com/veritrail/veritrail/internal/store"
)

func sampleData() Data {
	return Data{
		Project: store.Project{ID: "p1", Title: "Perovskite cell", Domain: "PATENT"},
		Evidence: []store.Evidence{
			{ID: "e1", Title: "US1234567"},
			{ID: "e2", Title: "Tandem cell review"},
		},
		Scores: []store.ScoreRow{
			{EvidenceID: "e1", Kind: "patent", Score: 0.78},
			{EvidenceID: "e2", Kind: "research", Score: 0.55},
		},
		Risk:     "RED",
		RiskNote: "High similarity detected (0.78). Significant overlap with existing work.",
		Calibration: calibration.Result{
			Level:                  calibration.LevelLow,
			HumanReviewRecommended: true,
			Notes:                  []string{calibration.NoteRestrictedContext, calibration.NoteNoveltyRed},
			Metrics: calibration.Metrics{
				EvidenceCount: 2, NoveltyRisk: "RED", TotalFeedback: 3,
				DisagreementRate: 0.333, SimilarityClarity: 0.23,
			},
		},
		Feedback: feedback.ProjectStats{
			TotalFeedback: 3, OutputsRated: 2, DisagreementRate: 0.333, NeedsReview: 1,
		},
		GeneratedAt: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC),
	}
}

func TestBuildMarkdownSections(t *testing.T) {
	md := BuildMarkdown(sampleData())

	assert.Contains(t, md, "# Trust Calibration Report")
	assert.Contains(t, md, "**Project:** Perovskite cell")
	assert.Contains(t, md, "**Verdict:** RED")
	assert.Contains(t, md, "**Level:** LOW")
	assert.Contains(t, md, "**Human review recommended.**")
	assert.Contains(t, md, calibration.NoteNoveltyRed)
	assert.Contains(t, md, "| US1234567 | patent | 0.780 |")
	assert.Contains(t, md, "| Tandem cell review | research | 0.550 |")
	assert.Contains(t, md, "1 records request expert review")
}

func TestBuildMarkdownDeterministic(t *testing.T) {
	d := sampleData()
	first := BuildMarkdown(d)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, BuildMarkdown(d))
	}
}

func TestBuildMarkdownEmptyProject(t *testing.T) {
	md := BuildMarkdown(Data{
		Project:     store.Project{Title: "Empty", Domain: "RESEARCH"},
		Risk:        "UNKNOWN",
		GeneratedAt: time.Now(),
	})
	assert.Contains(t, md, "No similarity scores computed yet.")
	assert.Contains(t, md, "No reviewer feedback submitted.")
}

func TestBuildHTMLRendersTables(t *testing.T) {
	md := BuildMarkdown(sampleData())
	doc, err := buildHTML("Report", md)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(doc, "<table>"))
	assert.True(t, strings.Contains(doc, "Perovskite cell"))
}
