// Package store provides SQLite-backed persistence for the trust
// calibration pipeline. Evidence and embeddings are written by the
// surrounding collaborators and read here; similarity scores, analysis
// states and calibration snapshots are derived upsert targets; feedback
// and the audit ledger are insert-only.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/veritrail/veritrail/internal/feedback"
)

var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS projects (
	id         TEXT PRIMARY KEY,
	title      TEXT NOT NULL DEFAULT '',
	domain     TEXT NOT NULL DEFAULT 'RESEARCH',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence (
	id              TEXT PRIMARY KEY,
	project_id      TEXT NOT NULL,
	kind            TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	source_url      TEXT NOT NULL DEFAULT '',
	retrieval_query TEXT NOT NULL DEFAULT '',
	created_at      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_evidence_project ON evidence(project_id);

CREATE TABLE IF NOT EXISTS idea_embeddings (
	project_id TEXT PRIMARY KEY,
	vector     TEXT NOT NULL,
	text_hash  TEXT NOT NULL,
	dimensions INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS evidence_embeddings (
	evidence_id TEXT PRIMARY KEY,
	vector      TEXT NOT NULL,
	text_hash   TEXT NOT NULL,
	dimensions  INTEGER NOT NULL,
	updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS similarity_scores (
	project_id  TEXT NOT NULL,
	evidence_id TEXT NOT NULL,
	score       REAL NOT NULL,
	kind        TEXT NOT NULL,
	computed_at TEXT NOT NULL,
	PRIMARY KEY (project_id, evidence_id)
);

CREATE TABLE IF NOT EXISTS analysis_states (
	project_id      TEXT PRIMARY KEY,
	novelty_risk    TEXT NOT NULL DEFAULT 'UNKNOWN',
	max_score       REAL,
	top_evidence_id TEXT NOT NULL DEFAULT '',
	notes           TEXT NOT NULL DEFAULT '',
	updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS user_feedback (
	id             TEXT PRIMARY KEY,
	output_id      TEXT NOT NULL,
	output_kind    TEXT NOT NULL,
	project_id     TEXT NOT NULL,
	feedback_kind  TEXT NOT NULL,
	comment        TEXT NOT NULL DEFAULT '',
	submitter_hash TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_feedback_output ON user_feedback(output_id);
CREATE INDEX IF NOT EXISTS idx_feedback_project ON user_feedback(project_id);

CREATE TABLE IF NOT EXISTS calibrations (
	project_id               TEXT PRIMARY KEY,
	confidence_level         TEXT NOT NULL,
	human_review_recommended INTEGER NOT NULL DEFAULT 0,
	disagreement_flag        INTEGER NOT NULL DEFAULT 0,
	notes                    TEXT NOT NULL DEFAULT '[]',
	metrics                  TEXT NOT NULL DEFAULT '{}',
	updated_at               TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id                     INTEGER PRIMARY KEY AUTOINCREMENT,
	action_type            TEXT NOT NULL,
	entity_type            TEXT NOT NULL,
	entity_id              TEXT NOT NULL DEFAULT '',
	actor                  TEXT NOT NULL DEFAULT 'system',
	metadata               TEXT,
	compliance_mode_active INTEGER NOT NULL DEFAULT 0,
	created_at             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
`

type Store struct {
	db *sqlx.DB
}

func Open(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for packages that own their own
// queries over the shared schema (the audit recorder).
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// WithTx runs fn in a single transaction with commit-on-success and
// rollback-on-error semantics. No operation spans more than one call.
func (s *Store) WithTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func timeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func marshalVector(v []float64) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// --- projects ---

type Project struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Store) CreateProject(p Project) error {
	_, err := s.db.Exec(`INSERT INTO projects (id, title, domain, created_at) VALUES (?, ?, ?, ?)`,
		p.ID, p.Title, p.Domain, timeToString(p.CreatedAt))
	return err
}

func (s *Store) GetProject(id string) (Project, error) {
	var p Project
	var createdAt string
	err := s.db.QueryRow(`SELECT id, title, domain, created_at FROM projects WHERE id = ?`, id).
		Scan(&p.ID, &p.Title, &p.Domain, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Project{}, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Project{}, err
	}
	p.CreatedAt = parseTime(createdAt)
	return p, nil
}

// --- evidence ---

type Evidence struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"project_id"`
	Kind           string    `json:"kind"`
	Title          string    `json:"title"`
	SourceURL      string    `json:"source_url"`
	RetrievalQuery string    `json:"retrieval_query"`
	CreatedAt      time.Time `json:"created_at"`
}

func (s *Store) AddEvidence(e Evidence) error {
	_, err := s.db.Exec(`INSERT INTO evidence (id, project_id, kind, title, source_url, retrieval_query, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ProjectID, e.Kind, e.Title, e.SourceURL, e.RetrievalQuery, timeToString(e.CreatedAt))
	return err
}

func (s *Store) GetEvidence(id string) (Evidence, error) {
	var e Evidence
	var createdAt string
	err := s.db.QueryRow(`SELECT id, project_id, kind, title, source_url, retrieval_query, created_at
		FROM evidence WHERE id = ?`, id).
		Scan(&e.ID, &e.ProjectID, &e.Kind, &e.Title, &e.SourceURL, &e.RetrievalQuery, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Evidence{}, fmt.Errorf("evidence %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Evidence{}, err
	}
	e.CreatedAt = parseTime(createdAt)
	return e, nil
}

func (s *Store) ListEvidence(projectID string) ([]Evidence, error) {
	rows, err := s.db.Query(`SELECT id, project_id, kind, title, source_url, retrieval_query, created_at
		FROM evidence WHERE project_id = ? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Evidence
	for rows.Next() {
		var e Evidence
		var createdAt string
		if err := rows.Scan(&e.ID, &e.ProjectID, &e.Kind, &e.Title, &e.SourceURL, &e.RetrievalQuery, &createdAt); err != nil {
			return nil, err
		}
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CountEvidence(projectID string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM evidence WHERE project_id = ?`, projectID).Scan(&n)
	return n, err
}

// --- embeddings ---

type Embedding struct {
	Vector     []float64
	TextHash   string
	Dimensions int
	UpdatedAt  time.Time
}

// PutIdeaEmbedding stores a project's idea vector. Embeddings are
// content-addressed: when the stored text hash matches, the write is a
// no-op and the call reports updated=false.
func (s *Store) PutIdeaEmbedding(projectID string, vec []float64, textHash string, now time.Time) (bool, error) {
	return s.putEmbedding("idea_embeddings", "project_id", projectID, vec, textHash, now)
}

func (s *Store) PutEvidenceEmbedding(evidenceID string, vec []float64, textHash string, now time.Time) (bool, error) {
	return s.putEmbedding("evidence_embeddings", "evidence_id", evidenceID, vec, textHash, now)
}

func (s *Store) putEmbedding(table, keyColumn, key string, vec []float64, textHash string, now time.Time) (bool, error) {
	var existing string
	err := s.db.QueryRow(fmt.Sprintf(`SELECT text_hash FROM %s WHERE %s = ?`, table, keyColumn), key).Scan(&existing)
	if err == nil && existing == textHash {
		return false, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	_, err = s.db.Exec(fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s, vector, text_hash, dimensions, updated_at)
		VALUES (?, ?, ?, ?, ?)`, table, keyColumn),
		key, marshalVector(vec), textHash, len(vec), timeToString(now))
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) GetIdeaEmbedding(projectID string) (Embedding, error) {
	return s.getEmbedding("idea_embeddings", "project_id", projectID)
}

func (s *Store) GetEvidenceEmbedding(evidenceID string) (Embedding, error) {
	return s.getEmbedding("evidence_embeddings", "evidence_id", evidenceID)
}

func (s *Store) getEmbedding(table, keyColumn, key string) (Embedding, error) {
	var e Embedding
	var vectorJSON, updatedAt string
	err := s.db.QueryRow(fmt.Sprintf(`SELECT vector, text_hash, dimensions, updated_at FROM %s WHERE %s = ?`, table, keyColumn), key).
		Scan(&vectorJSON, &e.TextHash, &e.Dimensions, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Embedding{}, fmt.Errorf("embedding for %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return Embedding{}, err
	}
	if err := json.Unmarshal([]byte(vectorJSON), &e.Vector); err != nil {
		return Embedding{}, fmt.Errorf("decode vector: %w", err)
	}
	e.UpdatedAt = parseTime(updatedAt)
	return e, nil
}

// --- similarity scores ---

type ScoreRow struct {
	ProjectID  string
	EvidenceID string
	Score      float64
	Kind       string
	ComputedAt time.Time
}

// UpsertSimilarityScore overwrites any prior score for the same
// (project, evidence) pair. Similarity is a derived cache, so
// last-writer-wins is fine; the ledger never records it row by row.
func (s *Store) UpsertSimilarityScore(tx *sqlx.Tx, row ScoreRow) error {
	_, err := tx.Exec(`INSERT OR REPLACE INTO similarity_scores (project_id, evidence_id, score, kind, computed_at)
		VALUES (?, ?, ?, ?, ?)`,
		row.ProjectID, row.EvidenceID, row.Score, row.Kind, timeToString(row.ComputedAt))
	return err
}

func (s *Store) ListSimilarityScores(projectID string) ([]ScoreRow, error) {
	rows, err := s.db.Query(`SELECT project_id, evidence_id, score, kind, computed_at
		FROM similarity_scores WHERE project_id = ? ORDER BY score DESC, evidence_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ScoreRow
	for rows.Next() {
		var r ScoreRow
		var computedAt string
		if err := rows.Scan(&r.ProjectID, &r.EvidenceID, &r.Score, &r.Kind, &computedAt); err != nil {
			return nil, err
		}
		r.ComputedAt = parseTime(computedAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- analysis state ---

type AnalysisState struct {
	ProjectID     string
	NoveltyRisk   string
	MaxScore      *float64
	TopEvidenceID string
	Notes         string
	UpdatedAt     time.Time
}

func (s *Store) SaveAnalysisState(st AnalysisState) error {
	var maxScore sql.NullFloat64
	if st.MaxScore != nil {
		maxScore = sql.NullFloat64{Float64: *st.MaxScore, Valid: true}
	}
	_, err := s.db.Exec(`INSERT OR REPLACE INTO analysis_states (project_id, novelty_risk, max_score, top_evidence_id, notes, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		st.ProjectID, st.NoveltyRisk, maxScore, st.TopEvidenceID, st.Notes, timeToString(st.UpdatedAt))
	return err
}

func (s *Store) GetAnalysisState(projectID string) (AnalysisState, bool, error) {
	var st AnalysisState
	var maxScore sql.NullFloat64
	var updatedAt string
	err := s.db.QueryRow(`SELECT project_id, novelty_risk, max_score, top_evidence_id, notes, updated_at
		FROM analysis_states WHERE project_id = ?`, projectID).
		Scan(&st.ProjectID, &st.NoveltyRisk, &maxScore, &st.TopEvidenceID, &st.Notes, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return AnalysisState{}, false, nil
	}
	if err != nil {
		return AnalysisState{}, false, err
	}
	if maxScore.Valid {
		v := maxScore.Float64
		st.MaxScore = &v
	}
	st.UpdatedAt = parseTime(updatedAt)
	return st, true, nil
}

// --- feedback ---

// InsertFeedback appends one record. There is no update or delete
// statement for user_feedback anywhere in this package.
func (s *Store) InsertFeedback(r feedback.Record) error {
	_, err := s.db.Exec(`INSERT INTO user_feedback (id, output_id, output_kind, project_id, feedback_kind, comment, submitter_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.OutputID, string(r.OutputKind), r.ProjectID, string(r.Kind), r.Comment, r.SubmitterHash, timeToString(r.CreatedAt))
	return err
}

func (s *Store) FeedbackForOutput(outputID string) ([]feedback.Record, error) {
	return s.queryFeedback(`SELECT id, output_id, output_kind, project_id, feedback_kind, comment, submitter_hash, created_at
		FROM user_feedback WHERE output_id = ? ORDER BY created_at DESC, id DESC`, outputID)
}

func (s *Store) FeedbackForProject(projectID string) ([]feedback.Record, error) {
	return s.queryFeedback(`SELECT id, output_id, output_kind, project_id, feedback_kind, comment, submitter_hash, created_at
		FROM user_feedback WHERE project_id = ? ORDER BY created_at DESC, id DESC`, projectID)
}

func (s *Store) queryFeedback(query string, arg string) ([]feedback.Record, error) {
	rows, err := s.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []feedback.Record
	for rows.Next() {
		var r feedback.Record
		var outputKind, kind, createdAt string
		if err := rows.Scan(&r.ID, &r.OutputID, &outputKind, &r.ProjectID, &kind, &r.Comment, &r.SubmitterHash, &createdAt); err != nil {
			return nil, err
		}
		r.OutputKind = feedback.OutputKind(outputKind)
		r.Kind = feedback.Kind(kind)
		r.CreatedAt = parseTime(createdAt)
		out = append(out, r)
	}
	return out, rows.Err()
}

// --- calibration snapshots ---

// CalibrationSnapshot is the last-known calibration persisted for
// display continuity. It is always recomputed before being served;
// the snapshot never substitutes for recomputation.
type CalibrationSnapshot struct {
	ProjectID              string
	Level                  string
	HumanReviewRecommended bool
	DisagreementFlag       bool
	NotesJSON              string
	MetricsJSON            string
	UpdatedAt              time.Time
}

func (s *Store) SaveCalibration(c CalibrationSnapshot) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO calibrations (project_id, confidence_level, human_review_recommended, disagreement_flag, notes, metrics, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.Level, boolToInt(c.HumanReviewRecommended), boolToInt(c.DisagreementFlag), c.NotesJSON, c.MetricsJSON, timeToString(c.UpdatedAt))
	return err
}

func (s *Store) GetCalibration(projectID string) (CalibrationSnapshot, bool, error) {
	var c CalibrationSnapshot
	var review, flag int
	var updatedAt string
	err := s.db.QueryRow(`SELECT project_id, confidence_level, human_review_recommended, disagreement_flag, notes, metrics, updated_at
		FROM calibrations WHERE project_id = ?`, projectID).
		Scan(&c.ProjectID, &c.Level, &review, &flag, &c.NotesJSON, &c.MetricsJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return CalibrationSnapshot{}, false, nil
	}
	if err != nil {
		return CalibrationSnapshot{}, false, err
	}
	c.HumanReviewRecommended = review != 0
	c.DisagreementFlag = flag != 0
	c.UpdatedAt = parseTime(updatedAt)
	return c, true, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
