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
	"fmt"
	"math"
)

// ValidateRestaurant validates a RestaurantRecord according to domain rules.
//
// Validation rules:
//   - ID must not exceed math.MaxInt64
//   - Name must not be empty
//   - Stars must be StarsNone or a known tier
//   - PriceSymbolCount must not be negative
//   - Location, when present, must be a valid coordinate
//   - A record without description must not carry a vector
//
// NOT validated (populated by the corpus embedder):
//   - Vector dimension (checked against the model at match time)
//   - ID lower bound (0 is a valid identifier)
func ValidateRestaurant(record *RestaurantRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRestaurant)
	}

	if uint64(record.ID) > math.MaxInt64 {
		return fmt.Errorf("%w: %w: %d", ErrInvalidRestaurant, ErrIDOutOfRange, record.ID)
	}

	if record.Name == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRestaurant, ErrEmptyName)
	}

	if !record.Stars.Valid() {
		return fmt.Errorf("%w: %w: value %d", ErrInvalidRestaurant, ErrInvalidStars, record.Stars)
	}

	if record.PriceSymbolCount < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidRestaurant, ErrNegativePrice)
	}

	if record.Location != nil {
		if err := ValidateLocation(*record.Location); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRestaurant, err)
		}
	}

	if record.HasEmbedding() && !record.HasDescription() {
		return fmt.Errorf("%w: %w", ErrInvalidRestaurant, ErrOrphanEmbedding)
	}

	return nil
}

// ValidateLocation checks that a coordinate lies within latitude [-90, 90]
// and longitude [-180, 180].
func ValidateLocation(loc Location) error {
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return fmt.Errorf("%w: (%f, %f)", ErrInvalidLocation, loc.Lat, loc.Lng)
	}
	return nil
}
