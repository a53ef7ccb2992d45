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

package core

import (
	"encoding/binary"
	"strings"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// ID is the stable identifier of a restaurant. It is assigned once at
// ingestion and never reused. Zero is a valid ID.
type ID uint64

// HashDescription returns a content hash of a description using BLAKE2b.
// The hash is stored alongside an embedding so that a changed description
// invalidates the cached vector.
func HashDescription(text string) uint64 {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return binary.LittleEndian.Uint64(sum)
}

// Stars is the Michelin distinction of a restaurant.
type Stars int

const (
	// StarsNone means the distinction is unknown. It is distinct from StarsBib.
	StarsNone Stars = iota - 1
	// StarsBib is the Bib Gourmand / recommended tier.
	StarsBib
	// StarsOne is one Michelin star.
	StarsOne
	// StarsTwo is two Michelin stars.
	StarsTwo
	// StarsThree is three Michelin stars.
	StarsThree
)

// Valid reports whether s is StarsNone or one of the four tiers.
func (s Stars) Valid() bool {
	return s >= StarsNone && s <= StarsThree
}

// Known reports whether s carries a distinction.
func (s Stars) Known() bool {
	return s >= StarsBib && s <= StarsThree
}

func (s Stars) String() string {
	switch s {
	case StarsBib:
		return "Bib Gourmand"
	case StarsOne:
		return "One Star"
	case StarsTwo:
		return "Two Stars"
	case StarsThree:
		return "Three Stars"
	default:
		return "Unknown"
	}
}

// ParseStarsLabel maps a listing label such as "Two Stars: Excellent cooking"
// to its tier. Unrecognised labels map to StarsNone.
func ParseStarsLabel(label string) Stars {
	label = strings.TrimSpace(label)
	switch {
	case strings.HasPrefix(label, "Three Stars"):
		return StarsThree
	case strings.HasPrefix(label, "Two Stars"):
		return StarsTwo
	case strings.HasPrefix(label, "One Star"):
		return StarsOne
	case strings.HasPrefix(label, "Bib"):
		return StarsBib
	default:
		return StarsNone
	}
}

// Location is a geographic coordinate in decimal degrees.
type Location struct {
	Lat float64
	Lng float64
}

// RestaurantRecord is a single restaurant of the corpus.
// Vector is populated by the corpus embedder and stays nil for records
// with an empty description.
type RestaurantRecord struct {
	ID               ID
	Name             string
	Address          string
	Country          string
	ISOCode          string
	Cuisine          string
	Description      string
	Stars            Stars
	PriceSymbolCount int
	Location         *Location // nil when geocoding failed or was not run
	Vector           []float32 // Embedding of Description, nil until embedded
	DescriptionHash  uint64    // HashDescription(Description) at the time Vector was computed
}

// HasEmbedding reports whether the record carries a vector.
func (r *RestaurantRecord) HasEmbedding() bool {
	return len(r.Vector) > 0
}

// EmbeddingFresh reports whether the record's vector was computed from its
// current description.
func (r *RestaurantRecord) EmbeddingFresh() bool {
	return r.HasEmbedding() && r.DescriptionHash == HashDescription(r.Description)
}

// HasDescription reports whether the description has any non-space content.
func (r *RestaurantRecord) HasDescription() bool {
	return strings.TrimSpace(r.Description) != ""
}

// Clone returns a deep copy of the record.
func (r *RestaurantRecord) Clone() *RestaurantRecord {
	c := *r
	if r.Location != nil {
		loc := *r.Location
		c.Location = &loc
	}
	if r.Vector != nil {
		c.Vector = append([]float32(nil), r.Vector...)
	}
	return &c
}

// EmbeddingUpdate replaces the vector of one record. A nil Vector clears it.
type EmbeddingUpdate struct {
	ID              ID
	Vector          []float32
	DescriptionHash uint64
}

// EmbeddingManifest records which model produced the vectors of a corpus
// snapshot. Vectors from different models never share a corpus.
type EmbeddingManifest struct {
	Model     string
	Dimension int
	UpdatedAt time.Time
}

// MatchResult is a restaurant matched by a similarity query.
type MatchResult struct {
	Record *RestaurantRecord
	Score  float32 // Cosine similarity in [-1, 1]
}

// Neighbor is a restaurant ranked by distance from a point.
type Neighbor struct {
	Record   *RestaurantRecord
	Distance float64
}
