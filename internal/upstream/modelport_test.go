package upstream

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dohr-michael/ozzie/internal/transport"
)

// fakeChatModel is a minimal model.ToolCallingChatModel double whose
// Generate always returns its fixed reply, grounded on the three methods
// internal/models' provider implementations expose.
type fakeChatModel struct {
	reply string
}

func (f *fakeChatModel) Generate(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return &schema.Message{Role: schema.Assistant, Content: f.reply}, nil
}

func (f *fakeChatModel) Stream(ctx context.Context, messages []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

func (f *fakeChatModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	return f, nil
}

func TestModelPortHandshakeIsSessionCreated(t *testing.T) {
	port := newModelPort(&fakeChatModel{reply: "hi"}, "test-provider", 128000)
	ctx := context.Background()

	require.NoError(t, port.Accept(ctx))
	msg, err := port.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"type":           "session.created",
		"model":          "test-provider",
		"context_window": 128000,
	}, msg)
}

func TestModelPortGeneratesOnResponseCreate(t *testing.T) {
	port := newModelPort(&fakeChatModel{reply: "the answer"}, "test-provider", 128000)
	ctx := context.Background()
	require.NoError(t, port.Accept(ctx))
	_, err := port.Receive(ctx) // drain handshake

	require.NoError(t, port.Send(ctx, map[string]any{
		"type": "conversation.item.create",
		"item": map[string]any{
			"type": "message",
			"role": "user",
			"content": []any{
				map[string]any{"type": "input_text", "text": "<system>hello"},
			},
		},
	}))
	require.NoError(t, port.Send(ctx, map[string]any{"type": "response.create"}))

	msg, err := port.Receive(ctx)
	require.NoError(t, err)
	out := msg.(map[string]any)
	assert.Equal(t, "response.completed", out["type"])
	resp := out["response"].(map[string]any)
	assert.Equal(t, "the answer", resp["output_text"])
	require.NoError(t, err)
}

func TestModelPortCloseUnblocksReceive(t *testing.T) {
	port := newModelPort(&fakeChatModel{reply: "x"}, "test-provider", 0)
	ctx := context.Background()

	require.NoError(t, port.Close(ctx))
	require.NoError(t, port.Close(ctx)) // idempotent

	_, err := port.Receive(ctx)
	assert.ErrorIs(t, err, transport.ErrClosedOK)
}
