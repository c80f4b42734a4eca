// Package llm wraps the OpenAI-compatible chat and speech endpoints used to
// resolve insert commands.
//
// # Entry Points
//
// NewClient: construct a client from Config.
// Client.Complete: send system/user prompts, receive plain text.
// Client.Speak: synthesize text to WAV bytes.
// Client.HealthCheck: verify the API key and model availability.
//
// # Retry Behaviour
//
// The client retries on HTTP 408/429/5xx errors, network failures and empty
// completions with exponential backoff (base 1s, max 10s, up to 3 attempts
// by default). Context cancellation aborts retries immediately. Classify maps
// go-openai errors onto the services error markers so callers can tell
// retryable outages from configuration problems.
package llm
