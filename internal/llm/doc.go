// Package llm provides HTTP completion clients for the model providers the
// remediation pipeline can run against.
//
// The package supports:
//   - Anthropic's messages API and OpenAI's chat completions API
//   - Client-side rate limiting (50 requests per minute, bursts of 5)
//   - Bounded retries with exponential backoff for transient failures
//
// # Usage
//
// Create a client from provider configuration:
//
//	completer, err := llm.NewClient(llm.Config{
//	    Provider: "anthropic",
//	    APIKey:   os.Getenv("ANTHROPIC_API_KEY"),
//	})
//
// The returned client satisfies pipeline.Completer and is handed straight to
// pipeline.New.
//
// # Error Handling
//
// Transport failures, 429 responses, and 5xx responses are retried up to
// three times with exponential backoff. Any other non-200 response fails
// immediately with the provider's error message. API keys live in unexported
// fields and are never logged or serialized.
package llm
