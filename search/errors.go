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

package search

import "errors"

var (
	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrStrategyRequired is returned when a similarity strategy is not provided.
	ErrStrategyRequired = errors.New("similarity strategy required")

	// ErrRepositoryRequired is returned when a corpus repository is not provided.
	ErrRepositoryRequired = errors.New("corpus repository required")

	// ErrUnknownStrategy is returned for an unrecognised strategy name.
	ErrUnknownStrategy = errors.New("unknown similarity strategy")
)
