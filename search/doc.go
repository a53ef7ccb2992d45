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

// Package search matches free-text queries against the restaurant corpus.
//
// A Matcher embeds the query once and hands the vector to a SimilaritySearch
// strategy:
//   - InMemory ranks a read-only snapshot of the corpus in process
//   - Delegated sends the query to a store (badger, PostgreSQL, Qdrant)
//
// Both strategies share the ranking pipeline in package similarity, so they
// return the same ranking for the same corpus snapshot and query. An empty
// ranking is reported as core.ErrNoMatchFound.
package search
