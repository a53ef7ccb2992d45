package search

import "github.com/poiesic/etoile/similarity"

// Params controls a match. See similarity.Params.
type Params = similarity.Params

// Dedup keys.
const (
	DedupByID   = similarity.DedupByID
	DedupByName = similarity.DedupByName
)

// DefaultParams returns threshold 0.5, top 20 of 100 candidates, dedup by ID.
func DefaultParams() Params {
	return similarity.DefaultParams()
}
