// Package llm provides a provider-neutral abstraction layer for Large Language Model (LLM) APIs.
//
// Vendor clients live in the subpackages (anthropic, openai, gemini, ollama) and
// translate between their SDK types and the types defined here.
//
// # Core Concepts
//
//  1. Messages: The Message type represents a conversation message with role (user, assistant, system)
//     and content blocks (text, reasoning, tool use, tool results).
//
//  2. Client Interface: The Client interface provides Synchronous() for non-streaming calls
//     and Stream() for streaming calls. Events() adapts a Stream to a range-over-func iterator
//     and Accumulator folds a stream back into a Response.
//
//  3. Middleware: The Middleware and StreamMiddleware interfaces wrap a Client with
//     cross-cutting behavior. Hooks run in list order on both the request and the response
//     path. Stream hooks may hold events back and release them later, and a Responder may
//     answer a request without calling the vendor.
//
//  4. Provider options: ProviderOptions carries vendor-native settings such as thinking
//     budgets. Each client reads only its own variant.
//
//  5. Errors: The Error type classifies failures into a closed set of ErrorType values.
//     Error() returns only the user-safe message; the vendor error is kept for Unwrap.
//
// Usage Example
//
//	client := llm.WrapWithMiddleware(
//	    baseClient,
//	    loggingMiddleware,
//	    cachingMiddleware,
//	)
//
//	req := &llm.Request{
//	    Model: "claude-sonnet-4-20250514",
//	    Messages: []llm.Message{
//	        llm.NewTextMessage(llm.RoleUser, "Hello!"),
//	    },
//	}
//
//	resp, err := client.Synchronous(ctx, req)
package llm
