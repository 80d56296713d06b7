package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// DefaultRequestTimeout bounds how long a guest waits for a host response.
// A crashed or navigated-away host cannot hold a block's promise open past
// this window.
const DefaultRequestTimeout = 5 * time.Second

var (
	// ErrTimeout is returned when no matching response arrives in time.
	// There is no automatic retry: the host may have performed the action,
	// so retrying is the block author's call.
	ErrTimeout = errors.New("bridge request timed out")

	// ErrClosed is returned by operations issued on (or in flight during)
	// a torn-down SDK.
	ErrClosed = errors.New("bridge is closed")
)

// StateListener observes state pushes. Listeners run on the SDK's receive
// goroutine in registration order; they must not block.
type StateListener func(state *BlockState)

// Config configures a guest SDK.
type Config struct {
	// InstanceID identifies this block instance. Required.
	InstanceID string

	// Transport is the channel to the host. Required; the SDK owns it and
	// closes it on Close.
	Transport Transport

	// Context optionally preloads the block context so GetContext never
	// pays a startup round trip.
	Context *BlockContext

	// RequestTimeout overrides DefaultRequestTimeout. Zero means default.
	RequestTimeout time.Duration
}

// SDK is the guest-side bridge runtime: the API surface block code calls
// inside the sandbox. All methods are safe for concurrent use.
//
// State reads are optimistic: SetState merges a pending overlay into the
// local cache before the host acknowledges, so a synchronous read after a
// write observes the write. The overlay is promoted into the confirmed
// layer on acknowledgment and reverted on rejection or timeout.
type SDK struct {
	instanceID string
	transport  Transport
	timeout    time.Duration

	mu        sync.Mutex
	counter   uint64
	pending   map[string]chan *Payload
	confirmed *BlockState
	overlays  []pendingWrite
	hasState  bool
	context   *BlockContext
	lastSeq   uint64
	listeners []registeredListener
	nextLID   int
	closed    bool

	done chan struct{}
}

type pendingWrite struct {
	requestID string
	updates   *StateUpdates
}

type registeredListener struct {
	id int
	fn StateListener
}

// New creates a guest SDK over the given transport and starts its receive
// loop. Call Close when the instance is torn down.
func New(cfg Config) (*SDK, error) {
	if cfg.InstanceID == "" {
		return nil, fmt.Errorf("instance id cannot be empty")
	}
	if cfg.Transport == nil {
		return nil, fmt.Errorf("transport cannot be nil")
	}

	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = DefaultRequestTimeout
	}

	s := &SDK{
		instanceID: cfg.InstanceID,
		transport:  cfg.Transport,
		timeout:    timeout,
		pending:    make(map[string]chan *Payload),
		context:    cfg.Context,
		done:       make(chan struct{}),
	}

	go s.receiveLoop()
	return s, nil
}

// InstanceID returns the id this SDK speaks for.
func (s *SDK) InstanceID() string {
	return s.instanceID
}

// Ready announces the block has initialised. Fire-and-forget.
func (s *SDK) Ready() error {
	return s.send(&Payload{Kind: KindReady})
}

// GetState returns the instance's state. Served from the local cache when
// one exists (including pending optimistic writes); otherwise a round trip.
func (s *SDK) GetState(ctx context.Context) (*BlockState, error) {
	s.mu.Lock()
	if s.hasState {
		state := s.mergedLocked()
		s.mu.Unlock()
		return state, nil
	}
	s.mu.Unlock()

	resp, err := s.roundTrip(ctx, &Payload{Kind: KindGetState})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.confirmed = resp.State.Clone()
	s.hasState = true
	state := s.mergedLocked()
	s.mu.Unlock()
	return state, nil
}

// CachedState returns the current merged state view without any I/O.
// The second return is false when no state has been cached yet.
func (s *SDK) CachedState() (*BlockState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.hasState {
		return nil, false
	}
	return s.mergedLocked(), true
}

// SetState merges the updates into the instance's state.
//
// The write is applied to the local cache immediately, then sent to the host
// and awaited. On rejection or timeout the optimistic overlay is reverted,
// so the cache converges back to what the host confirmed.
func (s *SDK) SetState(ctx context.Context, updates *StateUpdates) error {
	if updates == nil {
		return fmt.Errorf("updates cannot be nil")
	}

	requestID := s.nextRequestID()

	s.mu.Lock()
	s.overlays = append(s.overlays, pendingWrite{requestID: requestID, updates: updates})
	s.hasState = true
	s.mu.Unlock()

	resp, err := s.roundTripWithID(ctx, requestID, &Payload{Kind: KindSetState, Updates: updates})
	if err != nil {
		s.dropOverlay(requestID, false)
		return err
	}

	// Confirmed: fold the overlay into the confirmed layer. The host's
	// state_update push will shortly replace it wholesale anyway.
	s.dropOverlay(requestID, true)
	_ = resp
	return nil
}

// ExecuteAction invokes one of the element's declared actions on the host
// and returns the structured result.
func (s *SDK) ExecuteAction(ctx context.Context, actionID string, args any) (json.RawMessage, error) {
	if actionID == "" {
		return nil, fmt.Errorf("action id cannot be empty")
	}

	raw, err := marshalArg(args)
	if err != nil {
		return nil, err
	}

	resp, err := s.roundTrip(ctx, &Payload{Kind: KindExecuteAction, ActionID: actionID, Args: raw})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// GetInput resolves a connected input's current value from the host.
func (s *SDK) GetInput(ctx context.Context, inputID string) (json.RawMessage, error) {
	if inputID == "" {
		return nil, fmt.Errorf("input id cannot be empty")
	}

	resp, err := s.roundTrip(ctx, &Payload{Kind: KindGetInput, InputID: inputID})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// EmitOutput broadcasts an output value. Fire-and-forget: propagation to
// connected targets happens via the sync channel, and a source never blocks
// on its own fan-out.
func (s *SDK) EmitOutput(outputID string, data any) error {
	if outputID == "" {
		return fmt.Errorf("output id cannot be empty")
	}

	raw, err := marshalArg(data)
	if err != nil {
		return err
	}
	return s.send(&Payload{Kind: KindEmitOutput, OutputID: outputID, Data: raw})
}

// GetContext returns the block context. Served from the preloaded or cached
// context when available; otherwise a round trip.
func (s *SDK) GetContext(ctx context.Context) (*BlockContext, error) {
	s.mu.Lock()
	if s.context != nil {
		cached := *s.context
		s.mu.Unlock()
		return &cached, nil
	}
	s.mu.Unlock()

	resp, err := s.roundTrip(ctx, &Payload{Kind: KindGetContext})
	if err != nil {
		return nil, err
	}
	if resp.Context == nil {
		return nil, fmt.Errorf("host returned no context")
	}

	s.mu.Lock()
	s.context = resp.Context
	cached := *s.context
	s.mu.Unlock()
	return &cached, nil
}

// Notify asks the host to show a user-facing notification. Fire-and-forget.
func (s *SDK) Notify(message, level string) error {
	return s.send(&Payload{Kind: KindNotify, Message: message, Level: level})
}

// Log forwards a debug message to the host. Fire-and-forget, errors ignored.
func (s *SDK) Log(args ...any) {
	_ = s.send(&Payload{Kind: KindLog, Level: "log", Message: fmt.Sprintln(args...)})
}

// Error forwards an error message to the host. Fire-and-forget.
func (s *SDK) Error(args ...any) {
	_ = s.send(&Payload{Kind: KindLog, Level: "error", Message: fmt.Sprintln(args...)})
}

// CreatePost publishes a post through the host. Content is validated locally
// first - an empty or oversized post would be rejected by the host anyway,
// so it never costs a round trip.
func (s *SDK) CreatePost(ctx context.Context, opts PostOptions) (json.RawMessage, error) {
	content := strings.TrimSpace(opts.Content)
	if content == "" {
		return nil, fmt.Errorf("post content cannot be empty")
	}
	if utf8.RuneCountInString(opts.Content) > MaxPostContentLength {
		return nil, fmt.Errorf("post content exceeds %d characters", MaxPostContentLength)
	}

	resp, err := s.roundTrip(ctx, &Payload{Kind: KindCreatePost, Post: &opts})
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

// GetMembers fetches members visible to this instance. The page limit is
// clamped into [1, MaxMemberLimit] before the request is sent.
func (s *SDK) GetMembers(ctx context.Context, query MemberQuery) ([]Member, error) {
	if query.Limit < 1 {
		query.Limit = 1
	}
	if query.Limit > MaxMemberLimit {
		query.Limit = MaxMemberLimit
	}

	resp, err := s.roundTrip(ctx, &Payload{Kind: KindGetMembers, Query: &query})
	if err != nil {
		return nil, err
	}
	return resp.Members, nil
}

// OnStateChange registers a listener for state pushes and returns its
// unsubscribe function. If a state is already cached the listener fires
// immediately and synchronously with it, so subscribers never special-case
// first render.
func (s *SDK) OnStateChange(fn StateListener) func() {
	s.mu.Lock()
	id := s.nextLID
	s.nextLID++
	s.listeners = append(s.listeners, registeredListener{id: id, fn: fn})

	var initial *BlockState
	if s.hasState {
		initial = s.mergedLocked()
	}
	s.mu.Unlock()

	if initial != nil {
		fn(initial)
	}

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// PendingRequests reports the number of in-flight round trips. Exposed for
// tests and diagnostics.
func (s *SDK) PendingRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close tears the SDK down: every pending request is rejected immediately
// with ErrClosed, listeners are cleared, and the transport is closed. No
// promise ever resolves into torn-down block code.
func (s *SDK) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.pending = make(map[string]chan *Payload)
	s.listeners = nil
	s.overlays = nil
	close(s.done)
	s.mu.Unlock()

	return s.transport.Close()
}

// receiveLoop drains the transport, dropping anything that fails envelope
// validation. Runs until the transport's receive channel closes.
func (s *SDK) receiveLoop() {
	for env := range s.transport.Receive() {
		if !env.ValidFromHost() {
			continue
		}

		p := env.Payload
		switch {
		case p.Kind.isResponse():
			s.dispatchResponse(p)
		case p.Kind == KindStateUpdate:
			s.applyStateUpdate(p)
		case p.Kind == KindContextUpdate:
			s.mu.Lock()
			s.context = p.Context
			s.mu.Unlock()
		default:
			// Unknown push kinds from a newer host are ignored.
		}
	}
}

// dispatchResponse resolves the matching pending request. Responses with no
// match - late arrivals after timeout eviction, or stray frames - are
// dropped without affecting anything else.
func (s *SDK) dispatchResponse(p *Payload) {
	s.mu.Lock()
	ch, ok := s.pending[p.RequestID]
	if ok {
		delete(s.pending, p.RequestID)
	}
	s.mu.Unlock()

	if ok {
		ch <- p
	}
}

// applyStateUpdate replaces the confirmed layer wholesale and re-invokes
// every listener with the merged view, in registration order. Pushes that
// arrive out of order (stale seq) are dropped.
func (s *SDK) applyStateUpdate(p *Payload) {
	s.mu.Lock()
	if p.Seq != 0 && p.Seq <= s.lastSeq {
		s.mu.Unlock()
		return
	}
	if p.Seq != 0 {
		s.lastSeq = p.Seq
	}
	s.confirmed = p.State.Clone()
	s.hasState = true
	state := s.mergedLocked()
	listeners := make([]registeredListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(state)
	}
}

// mergedLocked returns the confirmed layer with all pending overlays applied,
// as a fresh copy. Caller must hold s.mu.
func (s *SDK) mergedLocked() *BlockState {
	state := s.confirmed.Clone()
	for _, w := range s.overlays {
		w.updates.ApplyTo(state)
	}
	return state
}

// dropOverlay removes the overlay for the given write. When the write was
// confirmed the overlay is folded into the confirmed layer first; otherwise
// removal reverts the optimistic merge.
func (s *SDK) dropOverlay(requestID string, confirmed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.overlays {
		if w.requestID != requestID {
			continue
		}
		if confirmed {
			if s.confirmed == nil {
				s.confirmed = &BlockState{Shared: map[string]any{}, Personal: map[string]any{}}
			}
			w.updates.ApplyTo(s.confirmed)
		}
		s.overlays = append(s.overlays[:i], s.overlays[i+1:]...)
		return
	}
}

// nextRequestID composes a request id unique within this guest lifetime:
// instance id, a monotonic counter, and the wall clock.
func (s *SDK) nextRequestID() string {
	s.mu.Lock()
	s.counter++
	n := s.counter
	s.mu.Unlock()
	return fmt.Sprintf("%s-%d-%d", s.instanceID, n, time.Now().UnixMilli())
}

// roundTrip sends a request payload and waits for the matching response,
// the timeout, context cancellation, or teardown - whichever comes first.
func (s *SDK) roundTrip(ctx context.Context, p *Payload) (*Payload, error) {
	return s.roundTripWithID(ctx, s.nextRequestID(), p)
}

func (s *SDK) roundTripWithID(ctx context.Context, requestID string, p *Payload) (*Payload, error) {
	p.RequestID = requestID

	ch := make(chan *Payload, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.pending[requestID] = ch
	s.mu.Unlock()

	if err := s.send(p); err != nil {
		s.evict(requestID)
		return nil, err
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return nil, errors.New(resp.Error)
		}
		return resp, nil
	case <-timer.C:
		s.evict(requestID)
		return nil, ErrTimeout
	case <-ctx.Done():
		s.evict(requestID)
		return nil, ctx.Err()
	case <-s.done:
		return nil, ErrClosed
	}
}

func (s *SDK) evict(requestID string) {
	s.mu.Lock()
	delete(s.pending, requestID)
	s.mu.Unlock()
}

func (s *SDK) send(p *Payload) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	return s.transport.Send(&Envelope{
		Source:      SourceGuest,
		InstanceID:  s.instanceID,
		TimestampMs: time.Now().UnixMilli(),
		Payload:     p,
	})
}

func marshalArg(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal argument: %w", err)
	}
	return raw, nil
}
