// Package embeddings provides embedding generation via multiple providers.
//
// Supports FastEmbed (local ONNX inference) and OpenAI-compatible HTTP
// providers, including TEI. Factory pattern enables provider selection
// at runtime with automatic dimension detection for common models.
//
// Providers satisfy knowledge.Embedder and are injected into the fix
// knowledge store at wiring time.
package embeddings
