package llm

import (
	"context"
)

// Client provides a provider-neutral interface for making LLM API calls.
// Implementations should handle provider-specific details internally.
type Client interface {
	// Synchronous sends a request and returns a complete response.
	// This is for non-streaming use cases.
	Synchronous(ctx context.Context, req *Request) (*Response, error)

	// Stream sends a request and returns a stream of events.
	// The caller should read from the returned Stream until it's done or an error occurs.
	Stream(ctx context.Context, req *Request) (Stream, error)
}

// Stream represents a streaming response from an LLM.
type Stream interface {
	// Next advances to the next event in the stream.
	// Returns false when the stream is complete or an error occurs.
	Next() bool

	// Event returns the current event.
	// Should only be called after Next() returns true.
	Event() *StreamEvent

	// Err returns any error that occurred during streaming.
	Err() error

	// Close closes the stream and releases resources.
	Close() error
}

// Middleware provides hooks for decorating Client calls.
//
// Request hooks run in list order. Response hooks also run in list order, so
// the last middleware in the list performs the final transformation of what
// the caller sees.
type Middleware interface {
	// BeforeRequest is called before making an API request.
	// It can modify the request or return an error to abort the request.
	BeforeRequest(ctx context.Context, req *Request) (*Request, error)

	// AfterResponse is called after receiving a response.
	// It can modify the response or return an error.
	AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error)

	// OnError is called when an error occurs.
	// It can return a modified error or nil to keep the current error.
	OnError(ctx context.Context, req *Request, err error) error
}

// StreamMiddleware provides hooks for decorating streaming calls.
type StreamMiddleware interface {
	// BeforeStream is called before starting a stream.
	BeforeStream(ctx context.Context, req *Request) (*Request, error)

	// OnStreamEvent is called for each stream event. It returns the events to
	// pass downstream: an empty slice holds the event back, several events
	// release previously buffered content. Buffered content must be released
	// no later than the Stop event.
	OnStreamEvent(ctx context.Context, req *Request, event *StreamEvent) ([]*StreamEvent, error)

	// OnStreamError is called when a stream error occurs.
	OnStreamError(ctx context.Context, req *Request, err error) error
}

// StreamCloser is implemented by stream middleware holding per-stream state.
// OnStreamClose is called once when the wrapped stream is closed.
type StreamCloser interface {
	OnStreamClose(ctx context.Context, req *Request)
}

// Responder is implemented by middleware able to answer a request without
// calling the model, such as a response cache. Responses produced this way
// still pass through every AfterResponse and OnStreamEvent hook.
type Responder interface {
	Respond(ctx context.Context, req *Request) (*Response, bool)
	RespondStream(ctx context.Context, req *Request) ([]*StreamEvent, bool)
}

// MiddlewareFunc is a function type that implements Middleware.
type MiddlewareFunc struct {
	BeforeRequestFunc func(ctx context.Context, req *Request) (*Request, error)
	AfterResponseFunc func(ctx context.Context, req *Request, resp *Response) (*Response, error)
	OnErrorFunc       func(ctx context.Context, req *Request, err error) error
}

// BeforeRequest calls the BeforeRequestFunc if set.
func (f MiddlewareFunc) BeforeRequest(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeRequestFunc != nil {
		return f.BeforeRequestFunc(ctx, req)
	}
	return req, nil
}

// AfterResponse calls the AfterResponseFunc if set.
func (f MiddlewareFunc) AfterResponse(ctx context.Context, req *Request, resp *Response) (*Response, error) {
	if f.AfterResponseFunc != nil {
		return f.AfterResponseFunc(ctx, req, resp)
	}
	return resp, nil
}

// OnError calls the OnErrorFunc if set.
func (f MiddlewareFunc) OnError(ctx context.Context, req *Request, err error) error {
	if f.OnErrorFunc != nil {
		return f.OnErrorFunc(ctx, req, err)
	}
	return err
}

// StreamMiddlewareFunc is a function type that implements both Middleware
// and StreamMiddleware.
type StreamMiddlewareFunc struct {
	MiddlewareFunc
	BeforeStreamFunc  func(ctx context.Context, req *Request) (*Request, error)
	OnStreamEventFunc func(ctx context.Context, req *Request, event *StreamEvent) ([]*StreamEvent, error)
	OnStreamErrorFunc func(ctx context.Context, req *Request, err error) error
}

// BeforeStream calls the BeforeStreamFunc if set.
func (f StreamMiddlewareFunc) BeforeStream(ctx context.Context, req *Request) (*Request, error) {
	if f.BeforeStreamFunc != nil {
		return f.BeforeStreamFunc(ctx, req)
	}
	return req, nil
}

// OnStreamEvent calls the OnStreamEventFunc if set.
func (f StreamMiddlewareFunc) OnStreamEvent(ctx context.Context, req *Request, event *StreamEvent) ([]*StreamEvent, error) {
	if f.OnStreamEventFunc != nil {
		return f.OnStreamEventFunc(ctx, req, event)
	}
	return []*StreamEvent{event}, nil
}

// OnStreamError calls the OnStreamErrorFunc if set.
func (f StreamMiddlewareFunc) OnStreamError(ctx context.Context, req *Request, err error) error {
	if f.OnStreamErrorFunc != nil {
		return f.OnStreamErrorFunc(ctx, req, err)
	}
	return err
}

// WrapWithMiddleware wraps a Client with middleware and returns a new Client.
// Nil entries are skipped.
func WrapWithMiddleware(client Client, middleware ...Middleware) Client {
	chain := make([]Middleware, 0, len(middleware))
	for _, mw := range middleware {
		if mw != nil {
			chain = append(chain, mw)
		}
	}
	if len(chain) == 0 {
		return client
	}
	return &clientWithMiddleware{
		client:     client,
		middleware: chain,
	}
}

// clientWithMiddleware wraps a Client with middleware.
type clientWithMiddleware struct {
	client     Client
	middleware []Middleware
}

// Synchronous implements Client.Synchronous with middleware support.
func (c *clientWithMiddleware) Synchronous(ctx context.Context, req *Request) (*Response, error) {
	for _, mw := range c.middleware {
		var err error
		req, err = mw.BeforeRequest(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	var resp *Response
	served := false
	for _, mw := range c.middleware {
		if r, ok := mw.(Responder); ok {
			if resp, served = r.Respond(ctx, req); served {
				break
			}
		}
	}

	if !served {
		var err error
		resp, err = c.client.Synchronous(ctx, req)
		if err != nil {
			return nil, applyOnError(ctx, c.middleware, req, err)
		}
	}

	for _, mw := range c.middleware {
		var err error
		resp, err = mw.AfterResponse(ctx, req, resp)
		if err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Stream implements Client.Stream with middleware support.
func (c *clientWithMiddleware) Stream(ctx context.Context, req *Request) (Stream, error) {
	for _, mw := range c.middleware {
		if smw, ok := mw.(StreamMiddleware); ok {
			var err error
			req, err = smw.BeforeStream(ctx, req)
			if err != nil {
				return nil, err
			}
		}
	}

	var stream Stream
	for _, mw := range c.middleware {
		if r, ok := mw.(Responder); ok {
			if events, hit := r.RespondStream(ctx, req); hit {
				stream = NewReplayStream(events)
				break
			}
		}
	}

	if stream == nil {
		var err error
		stream, err = c.client.Stream(ctx, req)
		if err != nil {
			return nil, applyOnStreamError(ctx, c.middleware, req, err)
		}
	}

	return &streamWithMiddleware{
		stream:     stream,
		middleware: c.middleware,
		req:        req,
		ctx:        ctx,
	}, nil
}

func applyOnError(ctx context.Context, chain []Middleware, req *Request, err error) error {
	for _, mw := range chain {
		if next := mw.OnError(ctx, req, err); next != nil {
			err = next
		}
	}
	return err
}

func applyOnStreamError(ctx context.Context, chain []Middleware, req *Request, err error) error {
	for _, mw := range chain {
		if smw, ok := mw.(StreamMiddleware); ok {
			if next := smw.OnStreamError(ctx, req, err); next != nil {
				err = next
			}
		}
	}
	return err
}

// streamWithMiddleware wraps a Stream with middleware.
type streamWithMiddleware struct {
	stream     Stream
	middleware []Middleware
	req        *Request
	ctx        context.Context
	event      *StreamEvent
	pending    []*StreamEvent
	err        error
	done       bool
	closed     bool
}

// Next implements Stream.Next with middleware support.
func (s *streamWithMiddleware) Next() bool {
	for len(s.pending) == 0 {
		if s.done {
			return false
		}
		if !s.stream.Next() {
			s.done = true
			return false
		}
		event := s.stream.Event()
		if event == nil {
			continue
		}
		events, err := s.apply(event)
		if err != nil {
			s.err = err
			s.done = true
			return false
		}
		s.pending = events
	}

	s.event = s.pending[0]
	s.pending = s.pending[1:]
	return true
}

func (s *streamWithMiddleware) apply(event *StreamEvent) ([]*StreamEvent, error) {
	events := []*StreamEvent{event}
	for _, mw := range s.middleware {
		smw, ok := mw.(StreamMiddleware)
		if !ok {
			continue
		}
		var next []*StreamEvent
		for _, e := range events {
			out, err := smw.OnStreamEvent(s.ctx, s.req, e)
			if err != nil {
				return nil, err
			}
			for _, o := range out {
				if o != nil {
					next = append(next, o)
				}
			}
		}
		events = next
		if len(events) == 0 {
			break
		}
	}
	return events, nil
}

// Event implements Stream.Event.
func (s *streamWithMiddleware) Event() *StreamEvent {
	return s.event
}

// Err implements Stream.Err.
func (s *streamWithMiddleware) Err() error {
	if s.err != nil {
		return s.err
	}
	if err := s.stream.Err(); err != nil {
		return applyOnStreamError(s.ctx, s.middleware, s.req, err)
	}
	return nil
}

// Close implements Stream.Close.
func (s *streamWithMiddleware) Close() error {
	if !s.closed {
		s.closed = true
		for _, mw := range s.middleware {
			if sc, ok := mw.(StreamCloser); ok {
				sc.OnStreamClose(s.ctx, s.req)
			}
		}
	}
	return s.stream.Close()
}

// Ensure streamWithMiddleware implements Stream
var _ Stream = (*streamWithMiddleware)(nil)

// Ensure clientWithMiddleware implements Client
var _ Client = (*clientWithMiddleware)(nil)
