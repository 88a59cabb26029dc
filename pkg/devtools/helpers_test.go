// pkg/devtools/helpers_test.go
package devtools

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	json "github.com/go-json-experiment/json"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	testTargetID  target.ID        = "T1"
	testSessionID target.SessionID = "S1"
)

// wireCommand is a command as the browser end sees it.
type wireCommand struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params Value  `json:"params"`
}

// fakeBrowser is the browser end of a pair of in-memory pipes. Its methods must only be
// called from the test goroutine.
type fakeBrowser struct {
	t *testing.T
	r *bufio.Reader

	rc io.Closer
	w  io.WriteCloser

	wmu sync.Mutex
}

func newPipePair(t *testing.T) (*PipeTransport, *fakeBrowser) {
	t.Helper()
	toHostR, toHostW := io.Pipe()
	toBrowserR, toBrowserW := io.Pipe()

	tr := NewPipeTransport(toHostR, toBrowserW)
	fb := &fakeBrowser{
		t:  t,
		r:  bufio.NewReader(toBrowserR),
		rc: toBrowserR,
		w:  toHostW,
	}
	return tr, fb
}

func (b *fakeBrowser) close() {
	_ = b.w.Close()
	_ = b.rc.Close()
}

// recv reads the next command written by the host.
func (b *fakeBrowser) recv() wireCommand {
	b.t.Helper()
	raw, err := b.r.ReadBytes(0)
	require.NoError(b.t, err)
	var cmd wireCommand
	require.NoError(b.t, json.Unmarshal(raw[:len(raw)-1], &cmd), "frame: %s", raw)
	return cmd
}

// recvInner reads the next target-routed command and unwraps it.
func (b *fakeBrowser) recvInner() (outer, inner wireCommand) {
	b.t.Helper()
	outer = b.recv()
	require.Equal(b.t, methodSendMessageToTarget, outer.Method)

	var p sendMessageToTargetParams
	require.NoError(b.t, json.Unmarshal(outer.Params, &p))
	require.Equal(b.t, testSessionID, p.SessionID)
	require.NoError(b.t, json.Unmarshal([]byte(p.Message), &inner))
	require.Equal(b.t, outer.ID, inner.ID, "outer and inner envelopes must share the id")
	return outer, inner
}

func (b *fakeBrowser) sendRaw(msg string) {
	b.t.Helper()
	b.wmu.Lock()
	defer b.wmu.Unlock()
	_, err := b.w.Write(append([]byte(msg), 0))
	require.NoError(b.t, err)
}

func (b *fakeBrowser) sendJSON(v any) {
	b.t.Helper()
	buf, err := json.Marshal(v)
	require.NoError(b.t, err)
	b.sendRaw(string(buf))
}

// relayFrom delivers inner as a message from the given session.
func (b *fakeBrowser) relayFrom(sessionID target.SessionID, inner string) {
	b.t.Helper()
	b.sendJSON(map[string]any{
		"method": methodReceivedMessageFromTarget,
		"params": receivedMessageFromTargetParams{SessionID: sessionID, Message: inner, TargetID: testTargetID},
	})
}

func (b *fakeBrowser) relay(inner string) {
	b.t.Helper()
	b.relayFrom(testSessionID, inner)
}

func (b *fakeBrowser) replyInner(id int64, result string) {
	b.t.Helper()
	b.relay(fmt.Sprintf(`{"id":%d,"result":%s}`, id, result))
}

func (b *fakeBrowser) errorInner(id int64, message string) {
	b.t.Helper()
	msg, err := json.Marshal(message)
	require.NoError(b.t, err)
	b.relay(fmt.Sprintf(`{"id":%d,"error":{"code":-32000,"message":%s}}`, id, msg))
}

// ack answers the outer Target.sendMessageToTarget envelope the way Chromium does.
func (b *fakeBrowser) ack(id int64) {
	b.t.Helper()
	b.sendRaw(fmt.Sprintf(`{"id":%d,"result":{}}`, id))
}

func (b *fakeBrowser) bindingCalled(name string, seq int64, contextID runtime.ExecutionContextID, args ...string) {
	b.t.Helper()
	values := make([]Value, len(args))
	for i, a := range args {
		values[i] = Value(a)
	}
	payload, err := json.Marshal(bindingPayload{Name: name, Seq: seq, Args: values})
	require.NoError(b.t, err)
	inner, err := json.Marshal(map[string]any{
		"method": methodBindingCalled,
		"params": runtime.EventBindingCalled{Name: name, Payload: string(payload), ExecutionContextID: contextID},
	})
	require.NoError(b.t, err)
	b.relay(string(inner))
}

// newAttachedSession returns a session that skipped the handshake and is already
// dispatching. The returned teardown stops the loop and waits for it.
func newAttachedSession(t *testing.T, opts Options) (*Session, *fakeBrowser, func()) {
	t.Helper()
	tr, fb := newPipePair(t)
	logger := opts.Logger
	if logger == nil {
		logger = zaptest.NewLogger(t)
	}
	s := newSession(tr, logger, opts)
	s.targetID = testTargetID
	s.sessionID = testSessionID
	go s.readLoop()

	teardown := func() {
		_ = s.Shutdown()
		fb.close()
		<-s.Done()
	}
	return s, fb, teardown
}

type callOutcome struct {
	value Value
	err   error
}

func callAsync(ctx context.Context, s *Session, method string, params any) <-chan callOutcome {
	ch := make(chan callOutcome, 1)
	go func() {
		v, err := s.Call(ctx, method, params)
		ch <- callOutcome{value: v, err: err}
	}()
	return ch
}

func evaluateParams(t *testing.T, cmd wireCommand) runtime.EvaluateParams {
	t.Helper()
	require.Equal(t, runtime.CommandEvaluate, cmd.Method)
	var p runtime.EvaluateParams
	require.NoError(t, json.Unmarshal(cmd.Params, &p))
	return p
}
