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

import "errors"

// Domain validation errors
var (
	// ErrInvalidRestaurant indicates a RestaurantRecord failed validation.
	ErrInvalidRestaurant = errors.New("invalid restaurant record")

	// ErrIDOutOfRange indicates an ID above math.MaxInt64. SQL stores keep
	// IDs in signed 64-bit columns.
	ErrIDOutOfRange = errors.New("restaurant id out of range")

	// ErrEmptyName indicates the Name field is empty.
	ErrEmptyName = errors.New("restaurant name cannot be empty")

	// ErrInvalidStars indicates a Stars value outside the known tiers.
	ErrInvalidStars = errors.New("invalid stars label")

	// ErrNegativePrice indicates a negative price symbol count.
	ErrNegativePrice = errors.New("price symbol count cannot be negative")

	// ErrInvalidLocation indicates a coordinate outside the valid range.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrOrphanEmbedding indicates a vector on a record without a description.
	ErrOrphanEmbedding = errors.New("embedding present without description")
)

// Matching errors
var (
	// ErrNoMatchFound indicates that no restaurant survived threshold and
	// dedup. Callers should treat it as an empty result.
	ErrNoMatchFound = errors.New("no matching restaurant found")

	// ErrMissingVectorDimension indicates a stored vector whose length
	// differs from the query vector. The record is excluded from candidacy.
	ErrMissingVectorDimension = errors.New("vector dimension mismatch")

	// ErrEmbeddingFailure indicates that embedding a single record failed.
	ErrEmbeddingFailure = errors.New("embedding failure")
)
