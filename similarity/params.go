package similarity

import (
	"fmt"
	"math"

	"github.com/poiesic/etoile/core"
)

const (
	// DefaultThreshold is the minimum similarity a candidate must exceed.
	DefaultThreshold float32 = 0.5
	// DefaultTopK is the number of results returned.
	DefaultTopK = 20
	// DefaultCandidateCap is the number of ranked candidates considered before dedup.
	DefaultCandidateCap = 100
)

// DedupKey selects the identity used to collapse duplicate matches.
type DedupKey int

const (
	// DedupByID keeps one match per restaurant ID.
	DedupByID DedupKey = iota
	// DedupByName keeps one match per restaurant name. Names are not
	// globally unique, so unrelated restaurants sharing a name collapse.
	DedupByName
)

func (k DedupKey) String() string {
	switch k {
	case DedupByID:
		return "id"
	case DedupByName:
		return "name"
	default:
		return fmt.Sprintf("DedupKey(%d)", int(k))
	}
}

// ParseDedupKey parses "id" or "name".
func ParseDedupKey(s string) (DedupKey, error) {
	switch s {
	case "id", "":
		return DedupByID, nil
	case "name":
		return DedupByName, nil
	default:
		return 0, fmt.Errorf("%w: unknown dedup key %q", ErrInvalidParams, s)
	}
}

func (k DedupKey) identity(r *core.RestaurantRecord) any {
	if k == DedupByName {
		return r.Name
	}
	return r.ID
}

// Params controls a similarity query.
type Params struct {
	// Threshold is exclusive: only similarity > Threshold survives.
	Threshold float32
	// TopK is the maximum number of results after dedup.
	TopK int
	// CandidateCap is the number of ranked candidates kept before dedup.
	CandidateCap int
	// Dedup selects the identity used for deduplication.
	Dedup DedupKey
	// Filter restricts candidates by relational fields.
	Filter core.Filter
}

// DefaultParams returns threshold 0.5, top 20 of 100 candidates, dedup by ID.
func DefaultParams() Params {
	return Params{
		Threshold:    DefaultThreshold,
		TopK:         DefaultTopK,
		CandidateCap: DefaultCandidateCap,
		Dedup:        DedupByID,
	}
}

// Validate checks that the parameters are usable.
func (p Params) Validate() error {
	if math.IsNaN(float64(p.Threshold)) || p.Threshold < -1 || p.Threshold > 1 {
		return fmt.Errorf("%w: threshold %v outside [-1, 1]", ErrInvalidParams, p.Threshold)
	}
	if p.TopK < 1 {
		return fmt.Errorf("%w: topK must be positive", ErrInvalidParams)
	}
	if p.CandidateCap < 1 {
		return fmt.Errorf("%w: candidate cap must be positive", ErrInvalidParams)
	}
	if p.Dedup != DedupByID && p.Dedup != DedupByName {
		return fmt.Errorf("%w: %v", ErrInvalidParams, p.Dedup)
	}
	return nil
}
