// Package analysis orchestrates the trust calibration pipeline:
// evidence registration, similarity scoring, novelty classification,
// feedback capture and confidence calibration, with every state change
// mirrored into the audit ledger.
package analysis

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/veritrail/veritrail/internal/audit"
	"github.com/veritrail/veritrail/internal/calibration"
	"github.com/veritrail/veritrail/internal/compliance"
	"github.com/veritrail/veritrail/internal/feedback"
	"github.com/veritrail/veritrail/internal/report"
	"github.com/veritrail/veritrail/internal/similarity"
	"github.com/veritrail/veritrail/internal/store"
)

type Service struct {
	st         *store.Store
	gate       *compliance.Gate
	rec        *audit.Recorder
	thresholds similarity.ThresholdSet
	dims       int
}

func NewService(st *store.Store, gate *compliance.Gate, rec *audit.Recorder, thresholds similarity.ThresholdSet, dims int) *Service {
	return &Service{st: st, gate: gate, rec: rec, thresholds: thresholds, dims: dims}
}

// --- projects and evidence ---

func (s *Service) CreateProject(title, domain string) (store.Project, error) {
	if domain == "" {
		domain = "RESEARCH"
	}
	p := store.Project{
		ID:        uuid.NewString(),
		Title:     title,
		Domain:    domain,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.st.CreateProject(p); err != nil {
		return store.Project{}, err
	}
	s.rec.Append(audit.ActionProjectCreated, "Project", p.ID, "", map[string]any{"title": title, "domain": domain})
	return p, nil
}

func (s *Service) GetProject(id string) (store.Project, error) {
	return s.st.GetProject(id)
}

func (s *Service) RegisterEvidence(projectID string, kind similarity.EvidenceKind, title, sourceURL, query string) (store.Evidence, error) {
	if !kind.Valid() {
		return store.Evidence{}, &feedback.ValidationError{Field: "evidence_kind", Value: string(kind)}
	}
	if _, err := s.st.GetProject(projectID); err != nil {
		return store.Evidence{}, err
	}
	e := store.Evidence{
		ID:             uuid.NewString(),
		ProjectID:      projectID,
		Kind:           string(kind),
		Title:          title,
		SourceURL:      sourceURL,
		RetrievalQuery: query,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.st.AddEvidence(e); err != nil {
		return store.Evidence{}, err
	}
	s.rec.Append(audit.ActionEvidenceRetrieved, "Project", projectID, "", map[string]any{
		"evidence_id": e.ID, "kind": string(kind), "title": title,
	})
	return e, nil
}

func (s *Service) ListEvidence(projectID string) ([]store.Evidence, error) {
	if _, err := s.st.GetProject(projectID); err != nil {
		return nil, err
	}
	return s.st.ListEvidence(projectID)
}

// --- embeddings ---

// hashVector content-addresses an embedding by its serialized values,
// so re-submitting an unchanged vector is a no-op.
func hashVector(vec []float64) string {
	b, _ := json.Marshal(vec)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])[:32]
}

func (s *Service) checkDims(vec []float64) error {
	if len(vec) != s.dims {
		return &similarity.DimensionMismatchError{Want: s.dims, Got: len(vec)}
	}
	return nil
}

func (s *Service) PutIdeaEmbedding(projectID string, vec []float64) (bool, error) {
	if err := s.checkDims(vec); err != nil {
		return false, err
	}
	if _, err := s.st.GetProject(projectID); err != nil {
		return false, err
	}
	return s.st.PutIdeaEmbedding(projectID, vec, hashVector(vec), time.Now().UTC())
}

func (s *Service) PutEvidenceEmbedding(evidenceID string, vec []float64) (bool, error) {
	if err := s.checkDims(vec); err != nil {
		return false, err
	}
	if _, err := s.st.GetEvidence(evidenceID); err != nil {
		return false, err
	}
	return s.st.PutEvidenceEmbedding(evidenceID, vec, hashVector(vec), time.Now().UTC())
}

// --- similarity ---

type ScoreItem struct {
	EvidenceID string  `json:"evidence_id"`
	Title      string  `json:"title"`
	Kind       string  `json:"kind"`
	Score      float64 `json:"score"`
}

type SimilarityResult struct {
	ProjectID string      `json:"project_id"`
	Scores    []ScoreItem `json:"scores"`
	Compared  int         `json:"compared"`
	Skipped   int         `json:"skipped"`
}

// ComputeSimilarity scores the project idea against every evidence item
// that has an embedding. All resulting rows are written in a single
// transaction. A dimension mismatch on one evidence item skips that
// item and the batch continues.
func (s *Service) ComputeSimilarity(projectID string) (SimilarityResult, error) {
	if _, err := s.st.GetProject(projectID); err != nil {
		return SimilarityResult{}, err
	}
	idea, err := s.st.GetIdeaEmbedding(projectID)
	if err != nil {
		return SimilarityResult{}, fmt.Errorf("idea embedding required before scoring: %w", err)
	}
	items, err := s.st.ListEvidence(projectID)
	if err != nil {
		return SimilarityResult{}, err
	}

	// Score everything first, then persist the batch in one
	// transaction. The single sqlite connection cannot serve reads
	// while a transaction holds it.
	out := SimilarityResult{ProjectID: projectID, Scores: []ScoreItem{}}
	now := time.Now().UTC()
	rows := make([]store.ScoreRow, 0, len(items))
	for _, e := range items {
		emb, err := s.st.GetEvidenceEmbedding(e.ID)
		if err != nil {
			out.Skipped++
			continue
		}
		score, err := similarity.Score(idea.Vector, emb.Vector)
		if err != nil {
			out.Skipped++
			continue
		}
		rows = append(rows, store.ScoreRow{
			ProjectID:  projectID,
			EvidenceID: e.ID,
			Score:      score,
			Kind:       e.Kind,
			ComputedAt: now,
		})
		out.Scores = append(out.Scores, ScoreItem{EvidenceID: e.ID, Title: e.Title, Kind: e.Kind, Score: score})
		out.Compared++
	}
	err = s.st.WithTx(func(tx *sqlx.Tx) error {
		for _, row := range rows {
			if err := s.st.UpsertSimilarityScore(tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return SimilarityResult{}, err
	}

	// Highest score first, matching the persisted ordering.
	sort.Slice(out.Scores, func(i, j int) bool {
		return out.Scores[i].Score > out.Scores[j].Score
	})

	s.rec.Append(audit.ActionSimilarityComputed, "Project", projectID, "pipeline", map[string]any{
		"compared": out.Compared, "skipped": out.Skipped,
	})
	return out, nil
}

// --- novelty risk ---

type RiskReport struct {
	ProjectID     string                    `json:"project_id"`
	Overall       similarity.RiskLevel      `json:"novelty_risk"`
	MaxScore      *float64                  `json:"max_score"`
	TopEvidenceID string                    `json:"top_evidence_id,omitempty"`
	Research      similarity.KindAssessment `json:"research"`
	Patent        similarity.KindAssessment `json:"patent"`
	Compared      int                       `json:"evidence_compared"`
	Note          string                    `json:"note"`
}

// NoveltyRisk classifies the project from its persisted scores. The
// compliance gate is consulted first; novelty checking stays allowed in
// compliance mode but the consultation is what creates the permanent
// ledger record.
func (s *Service) NoveltyRisk(projectID string) (RiskReport, error) {
	if _, err := s.st.GetProject(projectID); err != nil {
		return RiskReport{}, err
	}
	if err := s.gate.Check(compliance.FeatureHighRiskNoveltyCheck); err != nil {
		return RiskReport{}, err
	}

	rows, err := s.st.ListSimilarityScores(projectID)
	if err != nil {
		return RiskReport{}, err
	}
	scored := make([]similarity.ScoredEvidence, 0, len(rows))
	for _, r := range rows {
		scored = append(scored, similarity.ScoredEvidence{
			EvidenceID: r.EvidenceID,
			Kind:       similarity.EvidenceKind(r.Kind),
			Score:      r.Score,
		})
	}
	a := similarity.Assess(scored, s.thresholds)

	if err := s.st.SaveAnalysisState(store.AnalysisState{
		ProjectID:     projectID,
		NoveltyRisk:   string(a.Overall),
		MaxScore:      a.MaxScore,
		TopEvidenceID: a.TopEvidenceID,
		Notes:         a.Note,
		UpdatedAt:     time.Now().UTC(),
	}); err != nil {
		return RiskReport{}, err
	}

	meta := map[string]any{"novelty_risk": string(a.Overall), "compared": a.Compared}
	if a.MaxScore != nil {
		meta["max_score"] = *a.MaxScore
	}
	s.rec.Append(audit.ActionNoveltyClassified, "Project", projectID, "pipeline", meta)

	return RiskReport{
		ProjectID:     projectID,
		Overall:       a.Overall,
		MaxScore:      a.MaxScore,
		TopEvidenceID: a.TopEvidenceID,
		Research:      a.Research,
		Patent:        a.Patent,
		Compared:      a.Compared,
		Note:          a.Note,
	}, nil
}

// --- feedback ---

func (s *Service) SubmitFeedback(outputID string, outputKind feedback.OutputKind, projectID string, kind feedback.Kind, comment, submitter string) (feedback.Record, error) {
	if !kind.Valid() {
		return feedback.Record{}, &feedback.ValidationError{Field: "feedback_kind", Value: string(kind)}
	}
	if !outputKind.Valid() {
		return feedback.Record{}, &feedback.ValidationError{Field: "output_kind", Value: string(outputKind)}
	}
	if outputID == "" {
		return feedback.Record{}, &feedback.ValidationError{Field: "output_id", Value: outputID}
	}
	if _, err := s.st.GetProject(projectID); err != nil {
		return feedback.Record{}, err
	}
	r := feedback.Record{
		ID:            uuid.NewString(),
		OutputID:      outputID,
		OutputKind:    outputKind,
		ProjectID:     projectID,
		Kind:          kind,
		Comment:       comment,
		SubmitterHash: feedback.HashSubmitter(submitter),
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.st.InsertFeedback(r); err != nil {
		return feedback.Record{}, err
	}
	s.rec.Append(audit.ActionFeedbackSubmitted, "Project", projectID, "reviewer", map[string]any{
		"feedback_id": r.ID, "output_id": outputID, "kind": string(kind),
	})
	return r, nil
}

func (s *Service) OutputFeedback(outputID string) (feedback.OutputSummary, error) {
	records, err := s.st.FeedbackForOutput(outputID)
	if err != nil {
		return feedback.OutputSummary{}, err
	}
	return feedback.Summarize(outputID, records), nil
}

func (s *Service) ProjectFeedback(projectID string) (feedback.ProjectStats, error) {
	if _, err := s.st.GetProject(projectID); err != nil {
		return feedback.ProjectStats{}, err
	}
	records, err := s.st.FeedbackForProject(projectID)
	if err != nil {
		return feedback.ProjectStats{}, err
	}
	return feedback.SummarizeProject(projectID, records), nil
}

// --- confidence ---

type ConfidenceReport struct {
	ProjectID string             `json:"project_id"`
	Result    calibration.Result `json:"calibration"`
}

// Confidence recomputes the calibration verdict from current persisted
// state. The stored snapshot is refreshed as a side effect; it is never
// served in place of recomputation.
func (s *Service) Confidence(projectID string) (ConfidenceReport, error) {
	p, err := s.st.GetProject(projectID)
	if err != nil {
		return ConfidenceReport{}, err
	}

	count, err := s.st.CountEvidence(projectID)
	if err != nil {
		return ConfidenceReport{}, err
	}
	records, err := s.st.FeedbackForProject(projectID)
	if err != nil {
		return ConfidenceReport{}, err
	}
	rows, err := s.st.ListSimilarityScores(projectID)
	if err != nil {
		return ConfidenceReport{}, err
	}

	risk := similarity.RiskUnknown
	if st, ok, err := s.st.GetAnalysisState(projectID); err != nil {
		return ConfidenceReport{}, err
	} else if ok {
		risk = similarity.RiskLevel(st.NoveltyRisk)
	}

	result := calibration.Calibrate(calibration.Inputs{
		EvidenceCount:     count,
		NoveltyRisk:       risk,
		TotalFeedback:     len(records),
		DisagreementRate:  feedback.DisagreementRate(records),
		RestrictedContext: calibration.RestrictedContext(p.Domain),
		SimilarityClarity: scoreClarity(rows),
	})

	notesJSON, _ := json.Marshal(result.Notes)
	metricsJSON, _ := json.Marshal(result.Metrics)
	if err := s.st.SaveCalibration(store.CalibrationSnapshot{
		ProjectID:              projectID,
		Level:                  string(result.Level),
		HumanReviewRecommended: result.HumanReviewRecommended,
		DisagreementFlag:       result.DisagreementFlag,
		NotesJSON:              string(notesJSON),
		MetricsJSON:            string(metricsJSON),
		UpdatedAt:              time.Now().UTC(),
	}); err != nil {
		return ConfidenceReport{}, err
	}

	s.rec.Append(audit.ActionCalibrationUpdated, "Project", projectID, "pipeline", map[string]any{
		"confidence_level": string(result.Level),
		"human_review":     result.HumanReviewRecommended,
	})
	return ConfidenceReport{ProjectID: projectID, Result: result}, nil
}

// ReportData assembles everything the report builder renders. Risk and
// calibration are recomputed, not read from snapshots, so a report
// always reflects current persisted inputs.
func (s *Service) ReportData(projectID string) (report.Data, error) {
	p, err := s.st.GetProject(projectID)
	if err != nil {
		return report.Data{}, err
	}
	evidence, err := s.st.ListEvidence(projectID)
	if err != nil {
		return report.Data{}, err
	}
	rows, err := s.st.ListSimilarityScores(projectID)
	if err != nil {
		return report.Data{}, err
	}
	risk, err := s.NoveltyRisk(projectID)
	if err != nil {
		return report.Data{}, err
	}
	conf, err := s.Confidence(projectID)
	if err != nil {
		return report.Data{}, err
	}
	stats, err := s.ProjectFeedback(projectID)
	if err != nil {
		return report.Data{}, err
	}
	return report.Data{
		Project:     p,
		Evidence:    evidence,
		Scores:      rows,
		Risk:        string(risk.Overall),
		RiskNote:    risk.Note,
		Calibration: conf.Result,
		Feedback:    stats,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// scoreClarity is the gap between the two highest similarity scores.
// Rows arrive ordered by score descending. With fewer than two scores
// clarity is 0, which the calibrator treats as not-computed.
func scoreClarity(rows []store.ScoreRow) float64 {
	if len(rows) < 2 {
		return 0
	}
	return rows[0].Score - rows[1].Score
}
