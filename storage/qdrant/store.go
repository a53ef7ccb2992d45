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

// Package qdrant keeps the embedded part of the corpus in a Qdrant
// collection and delegates similarity ranking to it.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/poiesic/etoile/core"
	"github.com/poiesic/etoile/similarity"
	"github.com/poiesic/etoile/storage"
)

const (
	// DefaultCollection is the collection name used when none is configured.
	DefaultCollection = "restaurants"

	upsertBatchSize = 256
)

// Store is a Qdrant-backed storage.VectorSearcher.
type Store struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	dimension   int
	logger      *slog.Logger
}

var _ storage.VectorSearcher = (*Store)(nil)

// Open creates a Store connected to Qdrant at the given gRPC address.
// dimension is the vector size of the collection.
func Open(addr, collection string, dimension int) (*Store, error) {
	if dimension <= 0 {
		return nil, errors.New("qdrant: dimension must be positive")
	}
	if collection == "" {
		collection = DefaultCollection
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant: dial %s: %w", addr, err)
	}
	return &Store{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		dimension:   dimension,
		logger:      slog.Default().With("component", "qdrant-store", "collection", collection),
	}, nil
}

// Close closes the underlying gRPC connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// ReplaceCorpus recreates the collection and uploads every record whose
// vector is usable: present, of the collection dimension and non-zero.
// Returns the number of points written.
func (s *Store) ReplaceCorpus(ctx context.Context, records ...*core.RestaurantRecord) (int, error) {
	if err := s.recreateCollection(ctx); err != nil {
		return 0, err
	}

	points := make([]*pb.PointStruct, 0, upsertBatchSize)
	written, skipped := 0, 0
	flush := func() error {
		if len(points) == 0 {
			return nil
		}
		wait := true
		_, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		})
		if err != nil {
			return fmt.Errorf("qdrant: upsert %d points: %w", len(points), err)
		}
		written += len(points)
		points = points[:0]
		return nil
	}

	for _, r := range records {
		if !r.HasEmbedding() || len(r.Vector) != s.dimension || similarity.Magnitude(r.Vector) == 0 {
			skipped++
			continue
		}
		points = append(points, toPoint(r))
		if len(points) == upsertBatchSize {
			if err := flush(); err != nil {
				return written, err
			}
		}
	}
	if err := flush(); err != nil {
		return written, err
	}
	s.logger.Info("corpus uploaded", "points", written, "skipped", skipped)
	return written, nil
}

func (s *Store) recreateCollection(ctx context.Context) error {
	list, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("qdrant: list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == s.collection {
			if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection}); err != nil {
				return fmt.Errorf("qdrant: delete collection %s: %w", s.collection, err)
			}
			break
		}
	}

	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(s.dimension),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", s.collection, err)
	}
	return nil
}

// SearchSimilar ranks points by cosine similarity. Qdrant's score threshold
// is inclusive and its order among equal scores is unspecified, so the
// window is over-fetched to twice the candidate cap and finished with
// similarity.Finish. When more than twice the cap points tie at the boundary
// score, which of them survive the cap is still up to Qdrant and may differ
// from the other strategies.
// Returned records do not carry vectors.
func (s *Store) SearchSimilar(ctx context.Context, query storage.SimilarityQuery) ([]*core.MatchResult, error) {
	if err := query.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
	}
	if len(query.Vector) != s.dimension || similarity.Magnitude(query.Vector) == 0 {
		// Every stored point has the collection dimension and is non-zero.
		return nil, nil
	}

	req := buildSearchRequest(s.collection, query)
	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	candidates := make([]similarity.Candidate, 0, len(resp.GetResult()))
	for _, point := range resp.GetResult() {
		candidates = append(candidates, similarity.Candidate{
			Record: fromPayload(point.GetId().GetNum(), point.GetPayload()),
			Score:  point.GetScore(),
		})
	}
	s.logger.Debug("qdrant search complete", "candidates", len(candidates))
	return similarity.Finish(candidates, query.Params), nil
}

func buildSearchRequest(collection string, query storage.SimilarityQuery) *pb.SearchPoints {
	threshold := query.Params.Threshold
	req := &pb.SearchPoints{
		CollectionName: collection,
		Vector:         query.Vector,
		Limit:          uint64(2 * query.Params.CandidateCap),
		ScoreThreshold: &threshold,
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if must := filterConditions(query.Params.Filter); len(must) > 0 {
		req.Filter = &pb.Filter{Must: must}
	}
	return req
}

// filterConditions maps a relational filter onto payload conditions.
// Text fields match the lowercased *_key payload entries.
func filterConditions(f core.Filter) []*pb.Condition {
	var must []*pb.Condition
	if f.Country != "" {
		must = append(must, keywordMatch("country_key", strings.ToLower(f.Country)))
	}
	if f.ISOCode != "" {
		must = append(must, keywordMatch("iso_code_key", strings.ToLower(f.ISOCode)))
	}
	if f.Cuisine != "" {
		must = append(must, keywordMatch("cuisine_key", strings.ToLower(f.Cuisine)))
	}
	if len(f.Stars) > 0 {
		stars := make([]int64, len(f.Stars))
		for i, s := range f.Stars {
			stars[i] = int64(s)
		}
		must = append(must, fieldCondition(&pb.FieldCondition{
			Key: "stars",
			Match: &pb.Match{
				MatchValue: &pb.Match_Integers{Integers: &pb.RepeatedIntegers{Integers: stars}},
			},
		}))
	}
	if f.MinPrice > 0 || f.MaxPrice > 0 {
		r := &pb.Range{}
		if f.MinPrice > 0 {
			gte := float64(f.MinPrice)
			r.Gte = &gte
		}
		if f.MaxPrice > 0 {
			lte := float64(f.MaxPrice)
			r.Lte = &lte
		}
		must = append(must, fieldCondition(&pb.FieldCondition{Key: "price_symbol_count", Range: r}))
	}
	return must
}

func keywordMatch(key, value string) *pb.Condition {
	return fieldCondition(&pb.FieldCondition{
		Key: key,
		Match: &pb.Match{
			MatchValue: &pb.Match_Keyword{Keyword: value},
		},
	})
}

func fieldCondition(fc *pb.FieldCondition) *pb.Condition {
	return &pb.Condition{ConditionOneOf: &pb.Condition_Field{Field: fc}}
}
