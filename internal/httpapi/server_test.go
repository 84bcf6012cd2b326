package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/veritrail/veritrail/internal/analysis"
	"github.com/veritrail/veritrail/internal/audit"
	"github.com/veritrail/veritrail/internal/compliance"
	"github.com/veritrail/veritrail/internal/drafts"
	"github.com/veritrail/veritrail/internal/similarity"
	"github.com/veritrail/veritrail/internal/store"
)

type fakeCaller struct{ response string }

func (f *fakeCaller) GenerateText(context.Context, string) (string, error) {
	return f.response, nil
}

type fakePDF struct{}

func (fakePDF) Render(_ context.Context, _, _ string) ([]byte, error) {
	return []byte("%PDF-1.4 fake"), nil
}

func newTestHandler(t *testing.T, complianceActive bool) http.Handler {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	gate := compliance.NewGate(complianceActive)
	rec := audit.NewRecorder(st.DB(), true, complianceActive)
	svc := analysis.NewService(st, gate, rec, similarity.DefaultThresholds(), 3)
	rewriter := drafts.NewRewriter(&fakeCaller{response: "Rewritten draft."}, gate, rec)
	return NewServer(svc, rewriter, gate, rec, fakePDF{})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	out := map[string]any{}
	if rr.Body.Len() > 0 && rr.Header().Get("Content-Type") == "application/json" {
		_ = json.Unmarshal(rr.Body.Bytes(), &out)
	}
	return rr, out
}

func createProject(t *testing.T, h http.Handler, title, domain string) string {
	t.Helper()
	rr, resp := doJSON(t, h, "POST", "/v1/projects", map[string]any{"title": title, "domain": domain})
	require.Equal(t, http.StatusCreated, rr.Code)
	id, _ := resp["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestHealth(t *testing.T) {
	h := newTestHandler(t, false)
	rr, resp := doJSON(t, h, "GET", "/v1/health", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestCreateProjectValidation(t *testing.T) {
	h := newTestHandler(t, false)

	rr, _ := doJSON(t, h, "POST", "/v1/projects", map[string]any{"domain": "RESEARCH"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr, _ = doJSON(t, h, "GET", "/v1/projects/nope", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestEmbeddingEndpointsRejectWrongDimensions(t *testing.T) {
	h := newTestHandler(t, false)
	id := createProject(t, h, "Test", "RESEARCH")

	rr, resp := doJSON(t, h, "PUT", "/v1/projects/"+id+"/idea-embedding", map[string]any{"vector": []float64{1, 0}})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, resp["error"], "dimension mismatch")

	rr, resp = doJSON(t, h, "PUT", "/v1/projects/"+id+"/idea-embedding", map[string]any{"vector": []float64{1, 0, 0}})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, resp["updated"])
}

func TestPipelineOverHTTP(t *testing.T) {
	h := newTestHandler(t, false)
	id := createProject(t, h, "Perovskite cell", "PATENT")

	rr, _ := doJSON(t, h, "PUT", "/v1/projects/"+id+"/idea-embedding", map[string]any{"vector": []float64{1, 0, 0}})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, ev := doJSON(t, h, "POST", "/v1/projects/"+id+"/evidence", map[string]any{
		"kind": "patent", "title": "US1234567",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	evidenceID, _ := ev["id"].(string)
	require.NotEmpty(t, evidenceID)

	rr, _ = doJSON(t, h, "PUT", "/v1/evidence/"+evidenceID+"/embedding", map[string]any{
		"vector": []float64{0.78, 0.6257795138864806, 0},
	})
	require.Equal(t, http.StatusOK, rr.Code)

	rr, sim := doJSON(t, h, "POST", "/v1/projects/"+id+"/similarity", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, float64(1), sim["compared"])

	rr, risk := doJSON(t, h, "GET", "/v1/projects/"+id+"/novelty-risk", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "RED", risk["novelty_risk"])

	rr, _ = doJSON(t, h, "POST", "/v1/feedback", map[string]any{
		"output_id": "risk-1", "output_kind": "RECOMMENDATION",
		"project_id": id, "feedback_kind": "DISAGREE", "comment": "too strict",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr, conf := doJSON(t, h, "GET", "/v1/projects/"+id+"/confidence", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	cal, _ := conf["calibration"].(map[string]any)
	require.NotNil(t, cal)
	assert.Equal(t, "LOW", cal["confidence_level"])
	assert.Equal(t, true, cal["human_review_recommended"])

	rr, trail := doJSON(t, h, "GET", "/v1/projects/"+id+"/audit", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	entries, _ := trail["entries"].([]any)
	assert.NotEmpty(t, entries)
}

func TestFeedbackValidationOverHTTP(t *testing.T) {
	h := newTestHandler(t, false)
	id := createProject(t, h, "Test", "RESEARCH")

	rr, resp := doJSON(t, h, "POST", "/v1/feedback", map[string]any{
		"output_id": "o1", "output_kind": "SIMILARITY",
		"project_id": id, "feedback_kind": "LOVE_IT",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, resp["error"], "feedback_kind")

	rr, _ = doJSON(t, h, "GET", "/v1/outputs/o1/feedback", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestDraftRewriteEndpoint(t *testing.T) {
	h := newTestHandler(t, true)
	id := createProject(t, h, "Test", "RESEARCH")

	rr, resp := doJSON(t, h, "POST", "/v1/drafts/rewrite", map[string]any{
		"project_id": id, "draft": "the drafty draft", "instruction": "Add bold claims",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "Rewritten draft.", resp["rewritten"])
	assert.Equal(t, true, resp["instruction_overridden"])
}

func TestComplianceEndpoints(t *testing.T) {
	h := newTestHandler(t, true)

	rr, resp := doJSON(t, h, "POST", "/v1/compliance/check", map[string]any{
		"feature": compliance.FeaturePatentClaimGeneration,
	})
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, compliance.FeaturePatentClaimGeneration, resp["feature"])

	rr, resp = doJSON(t, h, "POST", "/v1/compliance/check", map[string]any{
		"feature": compliance.FeatureHighRiskNoveltyCheck,
	})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, resp["allowed"])

	// Unknown features fail open.
	rr, _ = doJSON(t, h, "POST", "/v1/compliance/check", map[string]any{"feature": "SOME_NEW_FEATURE"})
	assert.Equal(t, http.StatusOK, rr.Code)

	rr, resp = doJSON(t, h, "GET", "/v1/compliance/status", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, resp["compliance_mode_active"])

	// Every check above left a ledger entry.
	rr, trail := doJSON(t, h, "GET", "/v1/audit", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	entries, _ := trail["entries"].([]any)
	assert.Len(t, entries, 3)
}

func TestProjectReportEndpoint(t *testing.T) {
	h := newTestHandler(t, false)
	id := createProject(t, h, "Graphene membrane", "RESEARCH")

	rr, resp := doJSON(t, h, "GET", "/v1/projects/"+id+"/report", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	md, _ := resp["report_markdown"].(string)
	assert.Contains(t, md, "Trust Calibration Report")
	assert.Contains(t, md, "Graphene membrane")

	req := httptest.NewRequest("GET", fmt.Sprintf("/v1/projects/%s/report?format=pdf", id), nil)
	pdfRR := httptest.NewRecorder()
	h.ServeHTTP(pdfRR, req)
	require.Equal(t, http.StatusOK, pdfRR.Code)
	assert.Equal(t, "application/pdf", pdfRR.Header().Get("Content-Type"))
	assert.Contains(t, pdfRR.Body.String(), "%PDF")
}
