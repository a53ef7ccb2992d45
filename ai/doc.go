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

// Package ai provides the embedding abstraction used by étoile.
//
// The matchers, the corpus embedder and the stores depend on the Embedder
// interface rather than on a concrete model, so a local OpenAI-compatible
// server and the deterministic test double are interchangeable.
//
//   - Embedder: Generates vector embeddings from text
//   - AIProvider: Owns the embedder for the lifetime of the process
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Types
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. Test constructors (mock.NewMockEmbedder) return concrete
// types so tests can inject behavior and inspect call counts.
//
// # Usage Example
//
//	provider, err := openai.NewProvider(ctx, ai.DefaultConfig())
//	if errors.Is(err, ai.ErrModelUnavailable) {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "quiet omakase counter")
//
// A model is loaded once and shared. Every vector in a corpus must come
// from the same model; Model() and Dimension() identify it.
package ai
