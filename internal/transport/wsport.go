package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
)

// WSPort adapts a github.com/coder/websocket connection to the Port
// contract. It serves both sides: NewServerPort wraps a connection accepted
// by an http.Handler (the user side), NewClientPort dials out to a remote
// endpoint (the upstream side). Both share the same framing and close
// semantics, following the read/write split the teacher's
// internal/gateway/ws.Client uses.
type WSPort struct {
	conn *websocket.Conn

	acceptFn func(ctx context.Context) (*websocket.Conn, error)
	mu       sync.Mutex
	accepted bool
	closed   bool
}

// NewServerPort builds a Port that completes the WebSocket upgrade lazily on
// the first Accept call, using w/r captured from the inbound HTTP request.
func NewServerPort(w http.ResponseWriter, r *http.Request, opts *websocket.AcceptOptions) *WSPort {
	req := r
	p := &WSPort{}
	p.acceptFn = func(ctx context.Context) (*websocket.Conn, error) {
		return websocket.Accept(w, req, opts)
	}
	return p
}

// NewClientPort builds a Port already connected to url. Accept is a no-op
// for client ports: the dial itself is the handshake.
func NewClientPort(ctx context.Context, url string, opts *websocket.DialOptions) (*WSPort, error) {
	conn, _, err := websocket.Dial(ctx, url, opts)
	if err != nil {
		return nil, err
	}
	return &WSPort{conn: conn, accepted: true}, nil
}

// NewPortFromConn wraps an already-open connection (e.g. one obtained from
// a test harness or an alternate dialer).
func NewPortFromConn(conn *websocket.Conn) *WSPort {
	return &WSPort{conn: conn, accepted: true}
}

func (p *WSPort) Accept(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.accepted {
		return nil
	}
	if p.acceptFn == nil {
		return errors.New("transport: port has no pending accept")
	}
	conn, err := p.acceptFn(ctx)
	if err != nil {
		return err
	}
	p.conn = conn
	p.accepted = true
	return nil
}

func (p *WSPort) Send(ctx context.Context, msg any) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	return p.conn.Write(ctx, websocket.MessageText, data)
}

func (p *WSPort) Receive(ctx context.Context) (any, error) {
	_, data, err := p.conn.Read(ctx)
	if err != nil {
		if isGracefulClose(err) {
			return nil, ErrClosedOK
		}
		return nil, err
	}
	return decodeMessage(data), nil
}

func (p *WSPort) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.conn == nil {
		p.closed = true
		return nil
	}
	p.closed = true
	return p.conn.Close(websocket.StatusNormalClosure, "")
}

func isGracefulClose(err error) bool {
	return websocket.CloseStatus(err) != -1
}

// encodeMessage serializes msg to its wire form. []byte and string pass
// through unchanged; everything else is JSON-encoded.
func encodeMessage(msg any) ([]byte, error) {
	switch v := msg.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return json.Marshal(msg)
	}
}

// decodeMessage parses data as JSON into a generic value; if parsing fails
// the raw string is returned instead, per the Port contract.
func decodeMessage(data []byte) any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}
