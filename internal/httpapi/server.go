// Package httpapi exposes the trust calibration pipeline over JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veritrail/veritrail/internal/analysis"
	"github.com/veritrail/veritrail/internal/audit"
	"github.com/veritrail/veritrail/internal/compliance"
	"github.com/veritrail/veritrail/internal/drafts"
	"github.com/veritrail/veritrail/internal/feedback"
	"github.com/veritrail/veritrail/internal/report"
	"github.com/veritrail/veritrail/internal/similarity"
	"github.com/veritrail/veritrail/internal/store"
)

var tracer = otel.Tracer("veritrail.httpapi")

// ReportPDFRenderer turns report markdown into a PDF document.
type ReportPDFRenderer interface {
	Render(ctx context.Context, title, markdown string) ([]byte, error)
}

type Server struct {
	svc      *analysis.Service
	rewriter *drafts.Rewriter
	gate     *compliance.Gate
	rec      *audit.Recorder
	pdf      ReportPDFRenderer
}

// NewServer builds the route table. rewriter and pdf may be nil; the
// corresponding endpoints then answer 503 instead of panicking.
func NewServer(svc *analysis.Service, rewriter *drafts.Rewriter, gate *compliance.Gate, rec *audit.Recorder, pdf ReportPDFRenderer) http.Handler {
	s := &Server{svc: svc, rewriter: rewriter, gate: gate, rec: rec, pdf: pdf}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	mux.HandleFunc("POST /v1/projects", s.handleCreateProject)
	mux.HandleFunc("GET /v1/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PUT /v1/projects/{id}/idea-embedding", s.handlePutIdeaEmbedding)
	mux.HandleFunc("POST /v1/projects/{id}/evidence", s.handleAddEvidence)
	mux.HandleFunc("GET /v1/projects/{id}/evidence", s.handleListEvidence)
	mux.HandleFunc("PUT /v1/evidence/{id}/embedding", s.handlePutEvidenceEmbedding)

	mux.HandleFunc("POST /v1/projects/{id}/similarity", s.handleComputeSimilarity)
	mux.HandleFunc("GET /v1/projects/{id}/novelty-risk", s.handleNoveltyRisk)
	mux.HandleFunc("GET /v1/projects/{id}/confidence", s.handleConfidence)

	mux.HandleFunc("POST /v1/feedback", s.handleSubmitFeedback)
	mux.HandleFunc("GET /v1/outputs/{id}/feedback", s.handleOutputFeedback)
	mux.HandleFunc("GET /v1/projects/{id}/feedback", s.handleProjectFeedback)

	mux.HandleFunc("POST /v1/drafts/rewrite", s.handleRewriteDraft)

	mux.HandleFunc("POST /v1/compliance/check", s.handleComplianceCheck)
	mux.HandleFunc("GET /v1/compliance/status", s.handleComplianceStatus)

	mux.HandleFunc("GET /v1/projects/{id}/audit", s.handleProjectAudit)
	mux.HandleFunc("GET /v1/audit", s.handleRecentAudit)

	mux.HandleFunc("GET /v1/projects/{id}/report", s.handleProjectReport)

	return mux
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

// writeDomainError maps typed pipeline errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var verr *feedback.ValidationError
	var dim *similarity.DimensionMismatchError
	var viol *compliance.Violation
	switch {
	case errors.As(err, &verr), errors.As(err, &dim):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &viol):
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error":   viol.Error(),
			"feature": viol.Feature,
			"reason":  viol.Reason,
		})
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// --- projects ---

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "httpapi.CreateProject")
	defer span.End()

	var body struct {
		Title  string `json:"title"`
		Domain string `json:"domain"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	p, err := s.svc.CreateProject(body.Title, body.Domain)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	span.SetAttributes(attribute.String("project.id", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.svc.GetProject(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// --- evidence and embeddings ---

func (s *Server) handleAddEvidence(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Kind           string `json:"kind"`
		Title          string `json:"title"`
		SourceURL      string `json:"source_url"`
		RetrievalQuery string `json:"retrieval_query"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	e, err := s.svc.RegisterEvidence(r.PathValue("id"), similarity.EvidenceKind(body.Kind), body.Title, body.SourceURL, body.RetrievalQuery)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleListEvidence(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.ListEvidence(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if items == nil {
		items = []store.Evidence{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"evidence": items})
}

type embeddingBody struct {
	Vector []float64 `json:"vector"`
}

func (s *Server) handlePutIdeaEmbedding(w http.ResponseWriter, r *http.Request) {
	var body embeddingBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.svc.PutIdeaEmbedding(r.PathValue("id"), body.Vector)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

func (s *Server) handlePutEvidenceEmbedding(w http.ResponseWriter, r *http.Request) {
	var body embeddingBody
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := s.svc.PutEvidenceEmbedding(r.PathValue("id"), body.Vector)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"updated": updated})
}

// --- pipeline ---

func (s *Server) handleComputeSimilarity(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "httpapi.ComputeSimilarity")
	defer span.End()

	res, err := s.svc.ComputeSimilarity(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	span.SetAttributes(
		attribute.Int("similarity.compared", res.Compared),
		attribute.Int("similarity.skipped", res.Skipped),
	)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleNoveltyRisk(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "httpapi.NoveltyRisk")
	defer span.End()

	rep, err := s.svc.NoveltyRisk(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	span.SetAttributes(attribute.String("novelty.risk", string(rep.Overall)))
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleConfidence(w http.ResponseWriter, r *http.Request) {
	_, span := tracer.Start(r.Context(), "httpapi.Confidence")
	defer span.End()

	conf, err := s.svc.Confidence(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	span.SetAttributes(attribute.String("confidence.level", string(conf.Result.Level)))
	writeJSON(w, http.StatusOK, conf)
}

// --- feedback ---

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OutputID   string `json:"output_id"`
		OutputKind string `json:"output_kind"`
		ProjectID  string `json:"project_id"`
		Kind       string `json:"feedback_kind"`
		Comment    string `json:"comment"`
		Submitter  string `json:"submitter"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := s.svc.SubmitFeedback(body.OutputID, feedback.OutputKind(body.OutputKind), body.ProjectID, feedback.Kind(body.Kind), body.Comment, body.Submitter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleOutputFeedback(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.OutputFeedback(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleProjectFeedback(w http.ResponseWriter, r *http.Request) {
	stats, err := s.svc.ProjectFeedback(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- drafts ---

func (s *Server) handleRewriteDraft(w http.ResponseWriter, r *http.Request) {
	if s.rewriter == nil {
		writeError(w, http.StatusServiceUnavailable, "draft rewriting unavailable")
		return
	}
	var body struct {
		ProjectID   string `json:"project_id"`
		Draft       string `json:"draft"`
		Instruction string `json:"instruction"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.rewriter.Rewrite(r.Context(), body.ProjectID, body.Draft, body.Instruction)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- compliance ---

func (s *Server) handleComplianceCheck(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Feature string `json:"feature"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.Feature == "" {
		writeError(w, http.StatusBadRequest, "feature is required")
		return
	}

	err := s.gate.Check(body.Feature)
	s.rec.Append(audit.ActionComplianceCheck, "System", "", "", map[string]any{
		"feature": body.Feature, "allowed": err == nil,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"feature": body.Feature, "allowed": true})
}

func (s *Server) handleComplianceStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.gate.Status(true))
}

// --- audit ---

func queryLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return def
	}
	return n
}

func (s *Server) handleProjectAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.rec.ProjectTrail(r.PathValue("id"), queryLimit(r, 100))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleRecentAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.rec.Recent(queryLimit(r, 100))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// --- report ---

func (s *Server) handleProjectReport(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.ReportData(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	markdown := report.BuildMarkdown(data)

	if r.URL.Query().Get("format") == "pdf" {
		if s.pdf == nil {
			writeError(w, http.StatusServiceUnavailable, "pdf renderer unavailable")
			return
		}
		pdf, err := s.pdf.Render(r.Context(), data.Project.Title, markdown)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to render pdf")
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", `attachment; filename="calibration-report.pdf"`)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(pdf)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project_id":      data.Project.ID,
		"report_markdown": markdown,
	})
}
