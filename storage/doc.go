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

// Package storage provides the storage abstraction layer for étoile.
//
// This package defines the repository interfaces that decouple the corpus
// store from the matchers. Three backends implement them:
//
//   - storage/badger: embedded key-value store, the default corpus of record
//   - storage/postgres: PostgreSQL with the pgvector extension
//   - storage/qdrant: Qdrant vector database
//
// # Architecture
//
//   - CorpusRepository: restaurant records, embeddings and the embedding manifest
//   - VectorSearcher: similarity ranking executed inside the store
//
// Every VectorSearcher returns the same ranking as the in-process matcher
// for the same corpus snapshot and query; see similarity.Finish.
//
// # Usage
//
//	repo, err := badger.NewCorpusRepository(backend)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer repo.Close()
//
// Use in tests with in-memory storage:
//
//	repo, backend, err := badger.NewMemoryRepository()
//
// # Serialization
//
// Records are encoded with mus-go serializers defined in core. Vectors are
// written whole: a record either carries its full vector or none.
//
// # Context Support
//
// All repository methods accept context.Context for cancellation
// and timeout support.
package storage
