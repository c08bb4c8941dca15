package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmgate/llm"
)

const (
	DefaultCacheSize = 256
	DefaultCacheTTL  = 10 * time.Minute
)

// Cache answers repeated identical requests from memory. Synchronous
// responses and complete streams are cached separately.
type Cache struct {
	responses *expirable.LRU[string, *llm.Response]
	streams   *expirable.LRU[string, []*llm.StreamEvent]
	logger    zerolog.Logger

	served    sync.Map // *llm.Request -> struct{}, answered from cache
	recording sync.Map // *llm.Request -> *[]*llm.StreamEvent
}

var (
	_ llm.Middleware       = (*Cache)(nil)
	_ llm.StreamMiddleware = (*Cache)(nil)
	_ llm.StreamCloser     = (*Cache)(nil)
	_ llm.Responder        = (*Cache)(nil)
)

// NewCache creates a Cache holding at most size entries of each kind for ttl.
func NewCache(size int, ttl time.Duration, logger zerolog.Logger) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		responses: expirable.NewLRU[string, *llm.Response](size, nil, ttl),
		streams:   expirable.NewLRU[string, []*llm.StreamEvent](size, nil, ttl),
		logger:    logger.With().Str("component", "response_cache").Logger(),
	}
}

// RequestKey returns the SHA-256 digest identifying req. Correlation ids are
// not part of the key.
func RequestKey(req *llm.Request) (string, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

func (c *Cache) key(req *llm.Request) (string, bool) {
	key, err := RequestKey(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Request is not cacheable")
		return "", false
	}
	return key, true
}

// Respond implements llm.Responder.
func (c *Cache) Respond(_ context.Context, req *llm.Request) (*llm.Response, bool) {
	key, ok := c.key(req)
	if !ok {
		return nil, false
	}
	resp, ok := c.responses.Get(key)
	if !ok {
		return nil, false
	}
	c.served.Store(req, struct{}{})
	c.logger.Debug().Str("request_id", req.ID).Str("model", req.Model).Msg("Cache hit")

	out := *resp
	out.Content = append([]llm.ContentBlock(nil), resp.Content...)
	return &out, true
}

// RespondStream implements llm.Responder.
func (c *Cache) RespondStream(_ context.Context, req *llm.Request) ([]*llm.StreamEvent, bool) {
	key, ok := c.key(req)
	if !ok {
		return nil, false
	}
	events, ok := c.streams.Get(key)
	if !ok {
		return nil, false
	}
	c.served.Store(req, struct{}{})
	c.logger.Debug().Str("request_id", req.ID).Str("model", req.Model).Int("events", len(events)).Msg("Stream cache hit")
	return events, true
}

// BeforeRequest implements llm.Middleware.
func (c *Cache) BeforeRequest(_ context.Context, req *llm.Request) (*llm.Request, error) {
	return req, nil
}

// AfterResponse implements llm.Middleware.
func (c *Cache) AfterResponse(_ context.Context, req *llm.Request, resp *llm.Response) (*llm.Response, error) {
	if _, hit := c.served.LoadAndDelete(req); hit || resp == nil {
		return resp, nil
	}
	key, ok := c.key(req)
	if !ok {
		return resp, nil
	}

	stored := *resp
	stored.Content = append([]llm.ContentBlock(nil), resp.Content...)
	if _, exists := c.responses.Peek(key); !exists {
		c.responses.Add(key, &stored)
	}
	return resp, nil
}

// OnError implements llm.Middleware.
func (c *Cache) OnError(_ context.Context, req *llm.Request, err error) error {
	c.served.Delete(req)
	return err
}

// BeforeStream implements llm.StreamMiddleware.
func (c *Cache) BeforeStream(_ context.Context, req *llm.Request) (*llm.Request, error) {
	return req, nil
}

// OnStreamEvent implements llm.StreamMiddleware. Events of streams not served
// from the cache are recorded and stored once the stream stops.
func (c *Cache) OnStreamEvent(_ context.Context, req *llm.Request, event *llm.StreamEvent) ([]*llm.StreamEvent, error) {
	if _, hit := c.served.Load(req); hit {
		return []*llm.StreamEvent{event}, nil
	}

	v, _ := c.recording.LoadOrStore(req, new([]*llm.StreamEvent))
	rec := v.(*[]*llm.StreamEvent)
	*rec = append(*rec, event.Clone())

	if event.Type == llm.StreamEventTypeStop {
		if key, ok := c.key(req); ok {
			if _, exists := c.streams.Peek(key); !exists {
				c.streams.Add(key, *rec)
			}
		}
		c.recording.Delete(req)
	}
	return []*llm.StreamEvent{event}, nil
}

// OnStreamError implements llm.StreamMiddleware. Partial recordings are
// discarded.
func (c *Cache) OnStreamError(_ context.Context, req *llm.Request, err error) error {
	c.recording.Delete(req)
	return err
}

// OnStreamClose implements llm.StreamCloser.
func (c *Cache) OnStreamClose(_ context.Context, req *llm.Request) {
	c.served.Delete(req)
	c.recording.Delete(req)
}

// Len returns the number of cached responses and streams.
func (c *Cache) Len() int {
	return c.responses.Len() + c.streams.Len()
}

// Purge drops every cached entry.
func (c *Cache) Purge() {
	c.responses.Purge()
	c.streams.Purge()
}
