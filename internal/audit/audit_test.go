package audit

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/veritrail/veritrail/internal/store"
)

func newTestRecorder(t *testing.T, complianceActive bool) *Recorder {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewRecorder(s.DB(), true, complianceActive)
}

func TestAppendOnlyGrowth(t *testing.T) {
	r := newTestRecorder(t, false)

	assert.True(t, r.Append(ActionProjectCreated, "Project", "p1", "", nil))
	assert.True(t, r.Append(ActionSimilarityComputed, "Project", "p1", "pipeline", map[string]any{"evidence_count": 4}))
	assert.True(t, r.Append(ActionFeedbackSubmitted, "Feedback", "f1", "reviewer", nil))

	n, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	entries, err := r.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	// Newest first.
	assert.Equal(t, ActionFeedbackSubmitted, entries[0].ActionType)
	assert.Equal(t, ActionProjectCreated, entries[2].ActionType)
	assert.Equal(t, "system", entries[2].Actor)
	assert.Equal(t, float64(4), entries[1].Metadata["evidence_count"])
}

func TestInvalidActionTypeRejected(t *testing.T) {
	r := newTestRecorder(t, false)
	var logged string
	r.logf = func(format string, v ...any) { logged = fmt.Sprintf(format, v...) }

	assert.False(t, r.Append(ActionType("PROJECT_DELETED"), "Project", "p1", "", nil))
	assert.Contains(t, logged, "invalid audit action type")

	n, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestWriteFailureIsNonFatal(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	r := NewRecorder(s.DB(), true, false)
	var logged string
	r.logf = func(format string, v ...any) { logged = fmt.Sprintf(format, v...) }

	// Closing the database makes every insert fail.
	require.NoError(t, s.Close())

	assert.False(t, r.Append(ActionProjectCreated, "Project", "p1", "", nil))
	assert.Contains(t, logged, "CRITICAL")
}

func TestDisabledRecorderWritesNothing(t *testing.T) {
	s, err := store.Open(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	r := NewRecorder(s.DB(), false, false)

	assert.False(t, r.Append(ActionProjectCreated, "Project", "p1", "", nil))
	n, err := r.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestComplianceModeStamp(t *testing.T) {
	r := newTestRecorder(t, true)
	require.True(t, r.Append(ActionComplianceCheck, "System", "", "", nil))

	entries, err := r.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].ComplianceModeActive)
}

func TestProjectTrailFiltersEntity(t *testing.T) {
	r := newTestRecorder(t, false)
	require.True(t, r.Append(ActionProjectCreated, "Project", "p1", "", nil))
	require.True(t, r.Append(ActionProjectCreated, "Project", "p2", "", nil))
	require.True(t, r.Append(ActionFeedbackSubmitted, "Feedback", "f1", "", nil))
	require.True(t, r.Append(ActionNoveltyClassified, "Project", "p1", "", nil))

	trail, err := r.ProjectTrail("p1", 50)
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, ActionNoveltyClassified, trail[0].ActionType)
	assert.Equal(t, ActionProjectCreated, trail[1].ActionType)
}

func TestExportWorkbook(t *testing.T) {
	r := newTestRecorder(t, false)
	require.True(t, r.Append(ActionProjectCreated, "Project", "p1", "", map[string]any{"title": "Graphene"}))
	require.True(t, r.Append(ActionNoveltyClassified, "Project", "p1", "pipeline", nil))

	entries, err := r.Recent(10)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "trail.xlsx")
	require.NoError(t, ExportWorkbook(entries, path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Audit Trail")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Action", rows[0][1])
	assert.Equal(t, "NOVELTY_CLASSIFIED", rows[1][1])
	assert.Equal(t, "PROJECT_CREATED", rows[2][1])
	assert.Contains(t, rows[2][7], "Graphene")
}
