package feedback

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Kind is a discrete human judgment on one AI output. The enumeration
// is closed: anything else is rejected before any write happens.
type Kind string

const (
	KindHelpful       Kind = "HELPFUL"
	KindNotHelpful    Kind = "NOT_HELPFUL"
	KindAgree         Kind = "AGREE"
	KindDisagree      Kind = "DISAGREE"
	KindNeedsRevision Kind = "NEEDS_REVISION"
	KindNeedsExpert   Kind = "NEEDS_EXPERT"
)

func (k Kind) Valid() bool {
	switch k {
	case KindHelpful, KindNotHelpful, KindAgree, KindDisagree, KindNeedsRevision, KindNeedsExpert:
		return true
	}
	return false
}

type OutputKind string

const (
	OutputSimilarity     OutputKind = "SIMILARITY"
	OutputSummaryKind    OutputKind = "SUMMARY"
	OutputDraft          OutputKind = "DRAFT"
	OutputClaim          OutputKind = "CLAIM"
	OutputRecommendation OutputKind = "RECOMMENDATION"
	OutputComparative    OutputKind = "COMPARATIVE"
)

func (k OutputKind) Valid() bool {
	switch k {
	case OutputSimilarity, OutputSummaryKind, OutputDraft, OutputClaim, OutputRecommendation, OutputComparative:
		return true
	}
	return false
}

// Record is immutable once stored. Disagreement is preserved as
// repeated rows, never collapsed into a counter.
type Record struct {
	ID            string     `db:"id" json:"id"`
	OutputID      string     `db:"output_id" json:"output_id"`
	OutputKind    OutputKind `db:"output_kind" json:"output_kind"`
	ProjectID     string     `db:"project_id" json:"project_id"`
	Kind          Kind       `db:"feedback_kind" json:"feedback_kind"`
	Comment       string     `db:"comment" json:"comment,omitempty"`
	SubmitterHash string     `db:"submitter_hash" json:"submitter_hash,omitempty"`
	CreatedAt     time.Time  `db:"-" json:"created_at"`
}

type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.Field, e.Value)
}

// HashSubmitter hashes a submitter identity (user id or client address)
// so abuse patterns stay traceable without storing the raw value.
func HashSubmitter(identity string) string {
	if identity == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(identity))
	return hex.EncodeToString(sum[:])[:32]
}
