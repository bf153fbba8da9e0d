package services

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"pantau/internal/logging"
	"pantau/internal/metrics"
	"pantau/internal/protocol"
)

// StreamKind names one independently scheduled per-client stream.
type StreamKind string

const (
	StreamLatest             StreamKind = "latest_data"
	StreamTemperatureHistory StreamKind = "temperature_history"
	StreamPzemHistory        StreamKind = "pzem_history"
)

// PayloadFunc builds one stream payload. It must honour ctx cancellation.
type PayloadFunc func(ctx context.Context) (protocol.Event, error)

// StreamSpec describes a periodic stream: one payload on start, then one per Interval.
type StreamSpec struct {
	Kind     StreamKind
	Interval time.Duration
	Build    PayloadFunc
	// SuppressUnchanged skips ticks whose encoded payload equals the last one sent.
	SuppressUnchanged bool
}

// Broadcaster fans an event out to every client running the given stream kind.
type Broadcaster interface {
	Broadcast(ev protocol.Event, kind StreamKind) int
}

type stream struct {
	spec    StreamSpec
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
	sent    bool
	hash    uint64
}

// Client is one WebSocket connection as seen by the streaming core. The transport
// drains Outbound until Done is closed.
type Client struct {
	ID string

	send    chan []byte
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	logger  zerolog.Logger
	metrics *metrics.Metrics

	mu      sync.Mutex
	closed  bool
	streams map[StreamKind]*stream
	wg      sync.WaitGroup
}

func newClient(id string, buffer int, logger zerolog.Logger, m *metrics.Metrics) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:      id,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		logger:  logger.With().Str("client_id", id).Logger(),
		metrics: m,
		streams: make(map[StreamKind]*stream),
	}
}

// Outbound yields encoded frames in send order.
func (c *Client) Outbound() <-chan []byte {
	return c.send
}

// Done is closed once the client has been shut down.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Send encodes and queues an event. It returns false when the client is closed
// or its buffer is full.
func (c *Client) Send(ev protocol.Event) bool {
	data, err := protocol.Encode(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("event", ev.EventType()).Msg("encode event")
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked(data, ev.EventType())
}

func (c *Client) enqueueLocked(data []byte, event string) bool {
	if c.closed {
		c.logger.Debug().Str("event", event).Msg("send on closed client ignored")
		return false
	}
	select {
	case c.send <- data:
		c.metrics.MessageSent(event)
		return true
	default:
		c.metrics.FrameDropped()
		c.logger.Warn().Str("event", event).Msg("send buffer full, frame dropped")
		return false
	}
}

// HasStream reports whether a stream of the given kind is running.
func (c *Client) HasStream(kind StreamKind) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.streams[kind]
	return ok
}

// ActiveStreams returns the number of running streams.
func (c *Client) ActiveStreams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

// StartStream runs spec on its own goroutine, replacing any stream of the same
// kind. The replaced stream is fully stopped before StartStream returns.
func (c *Client) StartStream(spec StreamSpec) bool {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return false
	}
	old := c.streams[spec.Kind]
	if old != nil {
		old.stopped = true
		old.cancel()
		delete(c.streams, spec.Kind)
		c.metrics.StreamStopped(string(spec.Kind))
	}

	ctx, cancel := context.WithCancel(c.ctx)
	st := &stream{spec: spec, cancel: cancel, done: make(chan struct{})}
	c.streams[spec.Kind] = st
	c.wg.Add(1)
	c.metrics.StreamStarted(string(spec.Kind))
	c.mu.Unlock()

	if old != nil {
		<-old.done
		c.logger.Debug().Str("stream", string(spec.Kind)).Msg("stream replaced")
	}

	go c.runStream(ctx, st)
	return true
}

// StopStream cancels the stream of the given kind and waits for its goroutine.
// It reports whether a stream was running.
func (c *Client) StopStream(kind StreamKind) bool {
	c.mu.Lock()
	st := c.streams[kind]
	if st == nil {
		c.mu.Unlock()
		c.logger.Debug().Str("stream", string(kind)).Msg("stop for inactive stream")
		return false
	}
	st.stopped = true
	st.cancel()
	delete(c.streams, kind)
	c.metrics.StreamStopped(string(kind))
	c.mu.Unlock()

	<-st.done
	return true
}

// Go runs fn on a goroutine owned by the client. Close waits for it.
func (c *Client) Go(fn func(ctx context.Context)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn(c.ctx)
	}()
	return true
}

// Close cancels every stream and waits for all client goroutines. It is safe
// to call more than once; no frame is queued after it returns.
func (c *Client) Close() {
	c.mu.Lock()
	if !c.closed {
		c.closed = true
		c.cancel()
		for kind, st := range c.streams {
			st.stopped = true
			st.cancel()
			delete(c.streams, kind)
			c.metrics.StreamStopped(string(kind))
		}
		close(c.done)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

func (c *Client) runStream(ctx context.Context, st *stream) {
	defer c.wg.Done()
	defer close(st.done)

	c.tick(ctx, st)

	ticker := time.NewTicker(st.spec.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick(ctx, st)
		}
	}
}

func (c *Client) tick(ctx context.Context, st *stream) {
	started := time.Now()
	ev, err := st.spec.Build(ctx)
	c.metrics.ObserveTick(string(st.spec.Kind), time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.logger.Error().Err(err).Str("stream", string(st.spec.Kind)).Msg("stream tick failed")
		return
	}

	data, err := protocol.Encode(ev)
	if err != nil {
		c.logger.Error().Err(err).Str("stream", string(st.spec.Kind)).Msg("encode stream payload")
		return
	}
	hash := xxhash.Sum64(data)

	c.mu.Lock()
	defer c.mu.Unlock()
	if st.stopped || c.closed {
		return
	}
	if st.spec.SuppressUnchanged && st.sent && st.hash == hash {
		return
	}
	if c.enqueueLocked(data, ev.EventType()) {
		st.sent = true
		st.hash = hash
	}
}

// Registry owns the set of live clients.
type Registry struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	sendBuffer int
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// NewRegistry creates an empty registry. sendBuffer bounds each client's queue.
func NewRegistry(sendBuffer int, logger zerolog.Logger, m *metrics.Metrics) *Registry {
	if sendBuffer <= 0 {
		sendBuffer = 64
	}
	return &Registry{
		clients:    make(map[string]*Client),
		sendBuffer: sendBuffer,
		logger:     logging.Component(logger, "registry"),
		metrics:    m,
	}
}

// Register creates a client with a fresh id.
func (r *Registry) Register() *Client {
	client := newClient(uuid.NewString(), r.sendBuffer, r.logger, r.metrics)

	r.mu.Lock()
	r.clients[client.ID] = client
	total := len(r.clients)
	r.mu.Unlock()

	r.metrics.ClientConnected()
	r.logger.Info().Str("client_id", client.ID).Int("total", total).Msg("client connected")
	return client
}

// Unregister closes the client and removes it. It is idempotent and reports
// whether this call removed the client.
func (r *Registry) Unregister(id string) bool {
	r.mu.RLock()
	client, ok := r.clients[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	client.Close()

	r.mu.Lock()
	_, ok = r.clients[id]
	delete(r.clients, id)
	total := len(r.clients)
	r.mu.Unlock()

	if ok {
		r.metrics.ClientDisconnected()
		r.logger.Info().Str("client_id", id).Int("total", total).Msg("client disconnected")
	}
	return ok
}

// Get looks up a client by id.
func (r *Registry) Get(id string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[id]
	return c, ok
}

// Count returns the number of registered clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast queues ev on every client running a stream of the given kind and
// returns how many accepted it.
func (r *Registry) Broadcast(ev protocol.Event, kind StreamKind) int {
	data, err := protocol.Encode(ev)
	if err != nil {
		r.logger.Error().Err(err).Str("event", ev.EventType()).Msg("encode broadcast")
		return 0
	}

	r.mu.RLock()
	targets := make([]*Client, 0, len(r.clients))
	for _, c := range r.clients {
		targets = append(targets, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		c.mu.Lock()
		if _, ok := c.streams[kind]; ok && c.enqueueLocked(data, ev.EventType()) {
			delivered++
		}
		c.mu.Unlock()
	}
	return delivered
}

// CloseAll unregisters every client.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	ids := make([]string, 0, len(r.clients))
	for id := range r.clients {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		r.Unregister(id)
	}
}

var _ Broadcaster = (*Registry)(nil)
