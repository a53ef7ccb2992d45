// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package similarity holds the ranking pipeline shared by every similarity
// search strategy: cosine scoring, strict threshold, deterministic ordering,
// candidate cap, identity dedup and top-K truncation.
package similarity

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/poiesic/etoile/core"
)

// Candidate is a scored record awaiting ranking.
type Candidate struct {
	Record *core.RestaurantRecord
	Score  float32
}

// Ranking is the outcome of scoring a corpus against a query vector.
type Ranking struct {
	Results []*core.MatchResult
	// Scored is the number of records a similarity was computed for.
	Scored int
	// Mismatched lists records whose vector length differs from the query.
	Mismatched []core.ID
	// ZeroMagnitude counts records skipped because a similarity was undefined.
	ZeroMagnitude int
}

// Rank scores records against query and ranks them. Records without a
// vector or rejected by p.Filter are not candidates. The records slice is
// not modified.
func Rank(query []float32, records []*core.RestaurantRecord, p Params) Ranking {
	var ranking Ranking
	candidates := make([]Candidate, 0, len(records))
	for _, record := range records {
		if record == nil || !record.HasEmbedding() || !p.Filter.Matches(record) {
			continue
		}
		score, err := Cosine(query, record.Vector)
		switch {
		case errors.Is(err, core.ErrMissingVectorDimension):
			ranking.Mismatched = append(ranking.Mismatched, record.ID)
			continue
		case err != nil:
			ranking.ZeroMagnitude++
			continue
		}
		ranking.Scored++
		candidates = append(candidates, Candidate{Record: record, Score: score})
	}
	ranking.Results = Finish(candidates, p)
	return ranking
}

// Finish applies the ranking steps that follow scoring:
//
//  1. keep candidates with Score > p.Threshold
//  2. order by Score descending, ties by ascending ID, then input order
//  3. keep the first p.CandidateCap
//  4. drop later occurrences of an identity already seen
//  5. keep the first p.TopK
//
// Store-delegated strategies call Finish on rows the store already scored so
// that ordering and dedup are identical across strategies.
func Finish(candidates []Candidate, p Params) []*core.MatchResult {
	kept := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Record == nil || math.IsNaN(float64(c.Score)) {
			continue
		}
		if c.Score > p.Threshold {
			kept = append(kept, c)
		}
	}

	slices.SortStableFunc(kept, func(a, b Candidate) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Record.ID, b.Record.ID)
	})

	if p.CandidateCap > 0 && len(kept) > p.CandidateCap {
		kept = kept[:p.CandidateCap]
	}

	seen := make(map[any]struct{}, len(kept))
	results := make([]*core.MatchResult, 0, min(len(kept), max(p.TopK, 0)))
	for _, c := range kept {
		if len(results) >= p.TopK {
			break
		}
		key := p.Dedup.identity(c.Record)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		results = append(results, &core.MatchResult{Record: c.Record, Score: c.Score})
	}
	return results
}
