// Package broker implements the Session state machine of spec.md §4.2: it
// mediates between a downstream user Transport Port and an upstream LLM
// connector, performing the handshake choreography and then running two
// concurrent relay pumps until closed.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dohr-michael/ozzie/internal/brokerrors"
	"github.com/dohr-michael/ozzie/internal/events"
	"github.com/dohr-michael/ozzie/internal/questionnaire"
	"github.com/dohr-michael/ozzie/internal/scaffolding"
	"github.com/dohr-michael/ozzie/internal/transport"
	"github.com/dohr-michael/ozzie/internal/upstream"
)

// State is one of the four Session lifecycle states (spec.md §4.2).
type State int

const (
	StateNew State = iota
	StateInitializing
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateInitializing:
		return "INITIALIZING"
	case StateActive:
		return "ACTIVE"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

const defaultHandshakeTimeout = 5 * time.Second

// Config is the subset of config the Session consults directly. The full
// raw config mapping is also carried, since the upstream snapshot must
// include a deep copy of it verbatim (spec.md §4.2 step 6).
type Config struct {
	Raw            map[string]any
	LLM            map[string]any
	ReceiveTimeout time.Duration
}

// Session mediates one conversation between a user Transport Port and an
// upstream connector resolved through a Dispatcher.
type Session struct {
	mu sync.Mutex

	id        string
	createdAt time.Time
	updatedAt time.Time

	state    map[string]any
	metadata map[string]any
	config   Config

	userPort   transport.Port
	dispatcher *upstream.Dispatcher
	scaffold   scaffolding.Scaffolding

	upstreamPort  transport.Port
	upstreamLabel string

	lifecycle     State
	closed        bool
	transportErr  error
	pumpCancel    context.CancelFunc
	pumpsDone     sync.WaitGroup

	bus *events.Bus
}

// Option configures a Session at construction.
type Option func(*Session)

func WithSessionID(id string) Option {
	return func(s *Session) { s.id = id }
}

func WithState(state map[string]any) Option {
	return func(s *Session) { s.state = cloneMap(state) }
}

func WithMetadata(metadata map[string]any) Option {
	return func(s *Session) { s.metadata = cloneMap(metadata) }
}

func WithConfig(cfg Config) Option {
	return func(s *Session) { s.config = cfg }
}

func WithUserPort(p transport.Port) Option {
	return func(s *Session) { s.userPort = p }
}

func WithScaffolding(sc scaffolding.Scaffolding) Option {
	return func(s *Session) { s.scaffold = sc }
}

// New constructs a Session in state NEW. initialize() is the only way to
// progress it; without a user port it will fail with *session-error*.
func New(dispatcher *upstream.Dispatcher, opts ...Option) *Session {
	now := time.Now().UTC()
	s := &Session{
		id:         strings.ReplaceAll(uuid.NewString(), "-", ""),
		createdAt:  now,
		updatedAt:  now,
		state:      make(map[string]any),
		metadata:   make(map[string]any),
		dispatcher: dispatcher,
		lifecycle:  StateNew,
		bus:        events.NewBus(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the session's opaque identifier.
func (s *Session) ID() string { return s.id }

// Bus returns the session's event bus.
func (s *Session) Bus() *events.Bus { return s.bus }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lifecycle
}

// Get returns a value from the mutable state map.
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.state[key]
	return v, ok
}

// Set writes a value into the mutable state map. Fails on a closed session.
func (s *Session) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return brokerrors.ErrSessionClosed
	}
	s.state[key] = value
	s.updatedAt = time.Now().UTC()
	return nil
}

// Delete removes a key from the mutable state map.
func (s *Session) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return brokerrors.ErrSessionClosed
	}
	delete(s.state, key)
	s.updatedAt = time.Now().UTC()
	return nil
}

// SetDefault sets key to value only if it is absent, returning the
// resulting value either way.
func (s *Session) SetDefault(key string, value any) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, brokerrors.ErrSessionClosed
	}
	if existing, ok := s.state[key]; ok {
		return existing, nil
	}
	s.state[key] = value
	s.updatedAt = time.Now().UTC()
	return value, nil
}

// Update merges updates into the mutable state map.
func (s *Session) Update(updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return brokerrors.ErrSessionClosed
	}
	for k, v := range updates {
		s.state[k] = v
	}
	s.updatedAt = time.Now().UTC()
	return nil
}

// Snapshot returns a deep-copied view of the session (spec.md Invariant 8).
func (s *Session) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() map[string]any {
	snap := map[string]any{
		"id":         s.id,
		"created_at": s.createdAt,
		"updated_at": s.updatedAt,
		"state":      deepCloneMap(s.state),
		"metadata":   deepCloneMap(s.metadata),
		"config":     deepCloneMap(s.config.Raw),
	}
	if s.config.LLM != nil {
		snap["llm"] = deepCloneMap(s.config.LLM)
	}
	if s.scaffold != nil {
		if tools := s.scaffold.Tools(); len(tools) > 0 {
			snap["tools"] = tools
		}
	}
	return snap
}

// Initialize runs the handshake choreography of spec.md §4.2. It is
// idempotent: calling it again once ACTIVE is a no-op.
func (s *Session) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.lifecycle == StateActive {
		s.mu.Unlock()
		return nil
	}
	if s.lifecycle != StateNew {
		s.mu.Unlock()
		return fmt.Errorf("%w: initialize called in state %s", brokerrors.ErrSessionError, s.lifecycle)
	}
	if s.userPort == nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: no user port attached", brokerrors.ErrSessionError)
	}
	s.lifecycle = StateInitializing
	s.mu.Unlock()

	if err := s.handshake(ctx); err != nil {
		s.forceClose(ctx)
		return err
	}

	s.mu.Lock()
	s.lifecycle = StateActive
	s.mu.Unlock()

	s.startPumps()
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	connector, err := s.dispatcher.Resolve()
	if err != nil {
		return fmt.Errorf("%w: %v", brokerrors.ErrSessionError, err)
	}

	port, err := connector(ctx)
	if err != nil {
		return fmt.Errorf("%w: connect upstream: %v", brokerrors.ErrSessionError, err)
	}

	s.mu.Lock()
	s.upstreamPort = port
	s.upstreamLabel = "openai"
	s.mu.Unlock()

	if err := port.Accept(ctx); err != nil {
		return fmt.Errorf("%w: upstream accept: %v", brokerrors.ErrSessionError, err)
	}

	timeout := s.config.ReceiveTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	hsCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	handshake, err := port.Receive(hsCtx)
	if err != nil {
		if errors.Is(hsCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: handshake timeout", brokerrors.ErrSessionError)
		}
		return fmt.Errorf("%w: handshake receive: %v", brokerrors.ErrSessionError, err)
	}

	if err := s.userPort.Accept(ctx); err != nil {
		return fmt.Errorf("%w: user accept: %v", brokerrors.ErrSessionError, err)
	}

	if err := s.userPort.Send(ctx, handshake); err != nil {
		return fmt.Errorf("%w: forward handshake: %v", brokerrors.ErrSessionError, err)
	}

	snapshot := s.Snapshot()
	if err := port.Send(ctx, map[string]any{"type": "session.update", "session": snapshot}); err != nil {
		return fmt.Errorf("%w: send session.update: %v", brokerrors.ErrSessionError, err)
	}

	content, err := s.buildPromptContent()
	if err != nil {
		return err
	}
	if len(content) > 0 {
		item := map[string]any{
			"type":    "conversation.item.create",
			"item":    map[string]any{"type": "message", "role": "user", "content": content},
		}
		if err := port.Send(ctx, item); err != nil {
			return fmt.Errorf("%w: send conversation.item.create: %v", brokerrors.ErrSessionError, err)
		}
		if err := port.Send(ctx, map[string]any{"type": "response.create"}); err != nil {
			return fmt.Errorf("%w: send response.create: %v", brokerrors.ErrSessionError, err)
		}
	}

	return nil
}

func (s *Session) buildPromptContent() ([]map[string]any, error) {
	if s.scaffold == nil {
		return nil, nil
	}

	state := cloneMap(s.state)
	var content []map[string]any

	if tmpl := strings.TrimSpace(s.scaffold.InitialMessageTemplate()); tmpl != "" {
		rendered, err := questionnaire.RenderText(tmpl, state)
		if err != nil {
			return nil, fmt.Errorf("%w: initial message: %v", brokerrors.ErrRenderError, err)
		}
		rendered = strings.TrimSpace(rendered)
		if rendered != "" {
			content = append(content, map[string]any{
				"type": "input_text",
				"text": "<system>" + rendered + "</system>",
			})
		}
	}

	if rendered, ok := s.scaffold.RenderQuestionnaire(state); ok && strings.TrimSpace(rendered) != "" {
		content = append(content, map[string]any{
			"type": "input_text",
			"text": "<questionnaire>" + rendered + "</questionnaire>",
		})
	}

	return content, nil
}

func (s *Session) startPumps() {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.pumpCancel = cancel
	s.mu.Unlock()

	s.pumpsDone.Add(2)
	go s.runPump(ctx, "upstream->user", s.upstreamPort, s.userPort)
	go s.runPump(ctx, "user->upstream", s.userPort, s.upstreamPort)
}

func (s *Session) runPump(ctx context.Context, label string, from, to transport.Port) {
	defer s.pumpsDone.Done()
	for {
		msg, err := from.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosedOK) || errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			s.recordTransportError(err)
			return
		}
		if err := to.Send(ctx, msg); err != nil {
			if errors.Is(err, transport.ErrClosedOK) || errors.Is(ctx.Err(), context.Canceled) {
				return
			}
			s.recordTransportError(err)
			return
		}
	}
}

func (s *Session) recordTransportError(err error) {
	s.mu.Lock()
	if s.transportErr == nil {
		s.transportErr = err
		slog.Error("broker: relay pump failed", "session_id", s.id, "error", err)
	}
	s.mu.Unlock()
	go s.Close(context.Background())
}

// TransportError returns the first fatal error recorded by either relay
// pump, if any.
func (s *Session) TransportError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transportErr
}

// Close tears the session down: cancels both pumps, closes both ports
// (best-effort), fails pending waiters, and drops the handler/waiter
// registries. Idempotent.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.lifecycle = StateClosed
	cancel := s.pumpCancel
	upstreamPort := s.upstreamPort
	userPort := s.userPort
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.pumpsDone.Wait()

	if upstreamPort != nil {
		_ = upstreamPort.Close(ctx)
	}
	if userPort != nil {
		_ = userPort.Close(ctx)
	}

	s.bus.Close()
	return nil
}

// forceClose is used when handshake fails before pumps have started.
func (s *Session) forceClose(ctx context.Context) {
	s.mu.Lock()
	s.closed = true
	s.lifecycle = StateClosed
	upstreamPort := s.upstreamPort
	userPort := s.userPort
	s.mu.Unlock()

	if upstreamPort != nil {
		_ = upstreamPort.Close(ctx)
	}
	if userPort != nil {
		_ = userPort.Close(ctx)
	}
	s.bus.Close()
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// deepCloneMap recursively copies m, descending into nested map[string]any
// and []any values so a snapshot's config/llm never alias the session's
// live state (spec.md §4.2 step 6, matching the original's recursive
// _snapshot_config in session.py).
func deepCloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCloneValue(v)
	}
	return out
}

func deepCloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = deepCloneValue(item)
		}
		return out
	default:
		return v
	}
}
