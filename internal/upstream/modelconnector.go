package upstream

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/ozzie/internal/models"
	"github.com/dohr-michael/ozzie/internal/transport"
)

// NewModelConnector adapts a configured eino ToolCallingChatModel provider
// into the Connector contract (spec.md §4.7): calling it opens a ModelPort
// whose first received message is the synthetic handshake, and whose
// Send/Receive pair translate the wire protocol of §6.1 into chat turns
// against the model.
//
// This is the concrete connector the broker registers as its default; a
// legacy shim can be registered over it via Dispatcher.Register("legacy", ...).
func NewModelConnector(registry *models.Registry, providerName string) Connector {
	return func(ctx context.Context) (transport.Port, error) {
		resolvedName := providerName
		if resolvedName == "" {
			resolvedName = registry.DefaultName()
		}

		var (
			m   model.ToolCallingChatModel
			err error
		)
		if providerName == "" {
			m, err = registry.Default(ctx)
		} else {
			m, err = registry.Get(ctx, providerName)
		}
		if err != nil {
			return nil, fmt.Errorf("upstream: resolve model provider: %w", err)
		}
		return newModelPort(m, resolvedName, registry.ContextWindow(resolvedName)), nil
	}
}

// ModelPort implements transport.Port over a chat model, translating the
// session-relay wire protocol (spec.md §6.1) into Generate calls.
type ModelPort struct {
	model         model.ToolCallingChatModel
	providerName  string
	contextWindow int

	mu       sync.Mutex
	messages []*schema.Message
	out      chan any
	closed   bool
	accepted bool
}

func newModelPort(m model.ToolCallingChatModel, providerName string, contextWindow int) *ModelPort {
	return &ModelPort{model: m, providerName: providerName, contextWindow: contextWindow, out: make(chan any, 16)}
}

// Accept seeds the handshake message the Session awaits immediately after
// connect (spec.md §4.2 step 3), reporting the resolved upstream provider
// name and its context window so the session can surface them unchanged.
func (p *ModelPort) Accept(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accepted {
		return nil
	}
	p.accepted = true
	handshake := map[string]any{"type": "session.created"}
	if p.providerName != "" {
		handshake["model"] = p.providerName
	}
	if p.contextWindow > 0 {
		handshake["context_window"] = p.contextWindow
	}
	select {
	case p.out <- handshake:
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

// Send interprets one outgoing wire message. "conversation.item.create"
// appends its text content as a user turn; "response.create" runs the
// model against the accumulated conversation and queues the reply for
// Receive; "session.update" is ignored. A non-map message is appended as a
// user turn holding its %v text; any other map is appended as a user turn
// only when it carries a string "text" field, and is dropped otherwise.
func (p *ModelPort) Send(ctx context.Context, msg any) error {
	m, ok := msg.(map[string]any)
	if !ok {
		return p.appendUserText(ctx, fmt.Sprintf("%v", msg))
	}

	switch m["type"] {
	case "session.update":
		return nil
	case "conversation.item.create":
		return p.appendItemContent(ctx, m)
	case "response.create":
		return p.generate(ctx)
	default:
		if text, ok := m["text"].(string); ok {
			return p.appendUserText(ctx, text)
		}
		return nil
	}
}

func (p *ModelPort) appendItemContent(ctx context.Context, m map[string]any) error {
	item, _ := m["item"].(map[string]any)
	var parts []map[string]any
	switch content := item["content"].(type) {
	case []map[string]any:
		parts = content
	case []any:
		for _, c := range content {
			if part, ok := c.(map[string]any); ok {
				parts = append(parts, part)
			}
		}
	}
	for _, part := range parts {
		text, _ := part["text"].(string)
		if text == "" {
			continue
		}
		if err := p.appendUserText(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

func (p *ModelPort) appendUserText(_ context.Context, text string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, &schema.Message{Role: schema.User, Content: text})
	return nil
}

func (p *ModelPort) generate(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return transport.ErrClosedOK
	}
	msgs := append([]*schema.Message(nil), p.messages...)
	p.mu.Unlock()

	reply, err := p.model.Generate(ctx, msgs)
	if err != nil {
		return models.HandleError(err)
	}

	p.mu.Lock()
	p.messages = append(p.messages, reply)
	p.mu.Unlock()

	out := map[string]any{
		"type": "response.completed",
		"response": map[string]any{
			"output_text": reply.Content,
		},
	}
	select {
	case p.out <- out:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive blocks for the next queued upstream message.
func (p *ModelPort) Receive(ctx context.Context) (any, error) {
	select {
	case msg, ok := <-p.out:
		if !ok {
			return nil, transport.ErrClosedOK
		}
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close is idempotent; it unblocks any pending Receive with ErrClosedOK.
func (p *ModelPort) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.out)
	return nil
}
