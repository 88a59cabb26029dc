// pkg/devtools/transport_ws.go
package devtools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	json "github.com/go-json-experiment/json"
	"github.com/gorilla/websocket"
)

const wsWriteBufferSize = 1 << 20

// WebSocketTransport carries protocol messages as WebSocket text frames. It lets the
// same session engine attach to a browser started with --remote-debugging-port.
type WebSocketTransport struct {
	conn *websocket.Conn

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

var _ Transport = (*WebSocketTransport)(nil)

// DialWebSocket connects to a browser-level DevTools WebSocket endpoint.
func DialWebSocket(ctx context.Context, wsURL string) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 60 * time.Second,
		Proxy:            http.ProxyFromEnvironment,
		WriteBufferSize:  wsWriteBufferSize,
	}
	conn, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", wsURL, err)
	}
	// Devtools messages (screenshots, large evaluations) can be big.
	conn.SetReadLimit(-1)
	return &WebSocketTransport{conn: conn}, nil
}

// NewWebSocketTransport wraps an established connection.
func NewWebSocketTransport(conn *websocket.Conn) *WebSocketTransport {
	return &WebSocketTransport{conn: conn}
}

// Read returns the payload of the next text or binary frame.
func (t *WebSocketTransport) Read() ([]byte, error) {
	_, buf, err := t.conn.ReadMessage()
	if err != nil {
		var closeErr *websocket.CloseError
		if errors.As(err, &closeErr) || isClosedErr(err) {
			return nil, ErrClosed
		}
		return nil, &TransportError{Op: "read", Err: err}
	}
	return buf, nil
}

// Write sends msg as one text frame.
func (t *WebSocketTransport) Write(msg []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	if err := t.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) || isClosedErr(err) {
			return ErrClosed
		}
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}

// Close sends a normal closure frame and closes the socket.
func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		t.wmu.Lock()
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		t.wmu.Unlock()
		if err := t.conn.Close(); err != nil && !isClosedErr(err) {
			t.closeErr = err
		}
	})
	return t.closeErr
}

// versionInfo is the body of the /json/version discovery endpoint.
type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// BrowserWebSocketURL discovers the browser-level WebSocket URL exposed on a debug port.
func BrowserWebSocketURL(ctx context.Context, host string, port int) (string, error) {
	if host == "" {
		host = "localhost"
	}
	url := fmt.Sprintf("http://%s:%d/json/version", host, port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build discovery request: %w", err)
	}
	response, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to connect to debug port: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status code: %d", response.StatusCode)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	var info versionInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return "", fmt.Errorf("failed to parse JSON response: %w", err)
	}
	if info.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("no browser WebSocket URL found")
	}
	return info.WebSocketDebuggerURL, nil
}
