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

package storage

import (
	"fmt"

	"github.com/poiesic/etoile/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	if err != nil {
		return 0, fmt.Errorf("%w: id: %v", ErrSerializationFailed, err)
	}
	return id, nil
}

// MarshalRestaurant serializes a RestaurantRecord to bytes.
func MarshalRestaurant(record *core.RestaurantRecord) []byte {
	buf := make([]byte, core.RestaurantMUS.Size(*record))
	core.RestaurantMUS.Marshal(*record, buf)
	return buf
}

// UnmarshalRestaurant deserializes a RestaurantRecord from bytes.
func UnmarshalRestaurant(data []byte) (*core.RestaurantRecord, error) {
	record, _, err := core.RestaurantMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: restaurant: %v", ErrSerializationFailed, err)
	}
	return &record, nil
}

// MarshalManifest serializes an EmbeddingManifest to bytes.
func MarshalManifest(manifest *core.EmbeddingManifest) []byte {
	buf := make([]byte, core.ManifestMUS.Size(*manifest))
	core.ManifestMUS.Marshal(*manifest, buf)
	return buf
}

// UnmarshalManifest deserializes an EmbeddingManifest from bytes.
func UnmarshalManifest(data []byte) (*core.EmbeddingManifest, error) {
	manifest, _, err := core.ManifestMUS.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrSerializationFailed, err)
	}
	return &manifest, nil
}
