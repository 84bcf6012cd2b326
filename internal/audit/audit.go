// Package audit maintains the append-only action ledger. Entries are
// only ever inserted; there is no update or delete path, and a ledger
// write failure never fails the operation that triggered it.
package audit

import (
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
)

// ActionType is the closed set of auditable actions. Unknown values are
// rejected at append time rather than stored as free text.
type ActionType string

const (
	ActionProjectCreated     ActionType = "PROJECT_CREATED"
	ActionFileUploaded       ActionType = "FILE_UPLOADED"
	ActionTextExtracted      ActionType = "TEXT_EXTRACTED"
	ActionEvidenceRetrieved  ActionType = "EVIDENCE_RETRIEVED"
	ActionSimilarityComputed ActionType = "SIMILARITY_COMPUTED"
	ActionNoveltyClassified  ActionType = "NOVELTY_CLASSIFIED"
	ActionDraftOptimized     ActionType = "DRAFT_OPTIMIZED"
	ActionClaimsGenerated    ActionType = "CLAIMS_GENERATED"
	ActionFeedbackSubmitted  ActionType = "FEEDBACK_SUBMITTED"
	ActionCalibrationUpdated ActionType = "CALIBRATION_UPDATED"
	ActionComplianceCheck    ActionType = "COMPLIANCE_CHECK"
	ActionSystemStartup      ActionType = "SYSTEM_STARTUP"
)

func (a ActionType) Valid() bool {
	switch a {
	case ActionProjectCreated, ActionFileUploaded, ActionTextExtracted,
		ActionEvidenceRetrieved, ActionSimilarityComputed, ActionNoveltyClassified,
		ActionDraftOptimized, ActionClaimsGenerated, ActionFeedbackSubmitted,
		ActionCalibrationUpdated, ActionComplianceCheck, ActionSystemStartup:
		return true
	}
	return false
}

type Entry struct {
	ID                   int64          `json:"id"`
	ActionType           ActionType     `json:"action_type"`
	EntityType           string         `json:"entity_type"`
	EntityID             string         `json:"entity_id"`
	Actor                string         `json:"actor"`
	Metadata             map[string]any `json:"metadata,omitempty"`
	ComplianceModeActive bool           `json:"compliance_mode_active"`
	CreatedAt            time.Time      `json:"created_at"`
}

// Recorder appends to and reads from the shared audit_log table. It
// owns its queries; the store package only provisions the schema.
type Recorder struct {
	db               *sqlx.DB
	enabled          bool
	complianceActive bool
	logf             func(format string, v ...any)
}

func NewRecorder(db *sqlx.DB, enabled, complianceActive bool) *Recorder {
	return &Recorder{
		db:               db,
		enabled:          enabled,
		complianceActive: complianceActive,
		logf:             log.Printf,
	}
}

// Append records one action. It reports whether the entry was written.
// Failures are logged loudly and swallowed so a broken ledger does not
// take the pipeline down with it. Append always runs outside the
// business transaction of the action it records.
func (r *Recorder) Append(action ActionType, entityType, entityID, actor string, metadata map[string]any) bool {
	if !r.enabled {
		return false
	}
	if !action.Valid() {
		r.logf("ERROR: invalid audit action type %q", string(action))
		return false
	}
	if actor == "" {
		actor = "system"
	}

	var metaJSON sql.NullString
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			r.logf("ERROR: failed to encode audit metadata: %v", err)
		} else {
			metaJSON = sql.NullString{String: string(b), Valid: true}
		}
	}

	_, err := r.db.Exec(`INSERT INTO audit_log (action_type, entity_type, entity_id, actor, metadata, compliance_mode_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(action), entityType, entityID, actor, metaJSON,
		boolToInt(r.complianceActive), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		r.logf("CRITICAL: failed to write audit log: %v", err)
		return false
	}
	return true
}

// ProjectTrail returns a project's entries, newest first.
func (r *Recorder) ProjectTrail(projectID string, limit int) ([]Entry, error) {
	return r.query(`SELECT id, action_type, entity_type, entity_id, actor, metadata, compliance_mode_active, created_at
		FROM audit_log WHERE entity_type = 'Project' AND entity_id = ?
		ORDER BY id DESC LIMIT ?`, projectID, limit)
}

// Recent returns the newest entries across all entities.
func (r *Recorder) Recent(limit int) ([]Entry, error) {
	return r.query(`SELECT id, action_type, entity_type, entity_id, actor, metadata, compliance_mode_active, created_at
		FROM audit_log ORDER BY id DESC LIMIT ?`, limit)
}

func (r *Recorder) query(q string, args ...any) ([]Entry, error) {
	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var action, createdAt string
		var metaJSON sql.NullString
		var compliance int
		if err := rows.Scan(&e.ID, &action, &e.EntityType, &e.EntityID, &e.Actor, &metaJSON, &compliance, &createdAt); err != nil {
			return nil, err
		}
		e.ActionType = ActionType(action)
		e.ComplianceModeActive = compliance != 0
		if metaJSON.Valid {
			if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
				return nil, err
			}
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count reports the ledger size, used by tests and the exporter to
// verify append-only growth.
func (r *Recorder) Count() (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM audit_log`).Scan(&n)
	return n, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
