package search

import (
	"github.com/poiesic/etoile/core"
)

// SearchMonitor provides hooks to observe the matching process.
// Implement this interface to track intermediate steps and results.
type SearchMonitor interface {
	Start(query string, params Params)
	AfterEmbedding(vector []float32)
	AfterRanking(results []*core.MatchResult)
	Finish(results []*core.MatchResult, err error)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ Params)              {}
func (n *noopMonitor) AfterEmbedding(_ []float32)            {}
func (n *noopMonitor) AfterRanking(_ []*core.MatchResult)    {}
func (n *noopMonitor) Finish(_ []*core.MatchResult, _ error) {}
