package similarity

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

type EvidenceKind string

const (
	KindResearch EvidenceKind = "research"
	KindPatent   EvidenceKind = "patent"
)

func (k EvidenceKind) Valid() bool {
	return k == KindResearch || k == KindPatent
}

// DimensionMismatchError is fatal to a single comparison only; callers
// scoring a batch keep going with the remaining evidence.
type DimensionMismatchError struct {
	Want int
	Got  int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: want %d, got %d", e.Want, e.Got)
}

// Cosine returns the cosine similarity of two equal-length vectors in
// [-1, 1]. A zero-norm vector yields 0 rather than an error, which
// guards against degenerate all-zero embeddings. Accumulation is in
// index order, so identical inputs always produce the identical score.
func Cosine(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, &DimensionMismatchError{Want: len(a), Got: len(b)}
	}
	if len(a) == 0 {
		return 0, nil
	}
	normA := floats.Norm(a, 2)
	normB := floats.Norm(b, 2)
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return floats.Dot(a, b) / (normA * normB), nil
}

// Score is Cosine clamped to [0, 1]. Anti-similar directions carry no
// meaning for novelty overlap, so negative values report as 0.
func Score(a, b []float64) (float64, error) {
	c, err := Cosine(a, b)
	if err != nil {
		return 0, err
	}
	if c < 0 {
		return 0, nil
	}
	if c > 1 {
		return 1, nil
	}
	return c, nil
}
