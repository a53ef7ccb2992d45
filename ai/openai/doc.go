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

// Package openai provides the embedding generator backed by an
// OpenAI-compatible API.
//
// This package implements the ai.AIProvider interface using the langchaingo
// library to communicate with OpenAI or OpenAI-compatible services (such as
// Ollama, LocalAI, or vLLM). The default configuration targets a local
// Ollama serving all-MiniLM-L6-v2 ("all-minilm", 384 dimensions).
//
// # Usage
//
//	config := ai.NewConfig(ai.WithEmbeddingHost("http://localhost:11434"))
//
//	provider, err := openai.NewProvider(ctx, config)
//	if err != nil {
//	    log.Fatal(err) // wraps ai.ErrModelUnavailable
//	}
//	defer provider.Close()
//
//	vec, err := provider.Embedder().EmbedText(ctx, "seasonal tasting menu")
package openai
