// pkg/devtools/message_test.go
package devtools

import (
	"testing"

	fuzz "github.com/AdaLogics/go-fuzz-headers"
	"github.com/chromedp/cdproto/target"
	json "github.com/go-json-experiment/json"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeTargetCommand(t *testing.T) {
	raw, err := encodeTargetCommand(5, "S9", "Runtime.evaluate", map[string]any{"expression": "1+1"})
	require.NoError(t, err)

	var outer wireCommand
	require.NoError(t, json.Unmarshal(raw, &outer))
	assert.Equal(t, int64(5), outer.ID)
	assert.Equal(t, methodSendMessageToTarget, outer.Method)

	var p sendMessageToTargetParams
	require.NoError(t, json.Unmarshal(outer.Params, &p))
	assert.Equal(t, target.SessionID("S9"), p.SessionID)

	var inner wireCommand
	require.NoError(t, json.Unmarshal([]byte(p.Message), &inner))
	assert.Equal(t, int64(5), inner.ID)
	assert.Equal(t, "Runtime.evaluate", inner.Method)
	assert.JSONEq(t, `{"expression":"1+1"}`, string(inner.Params))
}

func TestEncodeCommand_NilParams(t *testing.T) {
	raw, err := encodeCommand(0, "Page.enable", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":0,"method":"Page.enable","params":{}}`, string(raw))
}

func TestEncodeCommand_Unencodable(t *testing.T) {
	_, err := encodeCommand(3, "Bad.params", map[string]any{"ch": make(chan int)})
	assert.Error(t, err)
}

func TestDecodeFrame(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    frame
		wantErr bool
	}{
		{
			name: "reply with result",
			raw:  `{"id":4,"result":{"frameId":"F"}}`,
			want: replyFrame{ID: 4, Result: Value(`{"frameId":"F"}`)},
		},
		{
			name: "reply with error",
			raw:  `{"id":0,"error":{"message":"nope"}}`,
			want: replyFrame{ID: 0, Error: Value(`{"message":"nope"}`)},
		},
		{
			name: "target destroyed",
			raw:  `{"method":"Target.targetDestroyed","params":{"targetId":"T1"}}`,
			want: targetDestroyedFrame{TargetID: "T1"},
		},
		{
			name: "relayed message",
			raw:  `{"method":"Target.receivedMessageFromTarget","params":{"sessionId":"S1","message":"{\"id\":2}","targetId":"T1"}}`,
			want: targetMessageFrame{SessionID: "S1", Message: `{"id":2}`},
		},
		{
			name: "binding call",
			raw:  `{"method":"Runtime.bindingCalled","params":{"name":"add","payload":"{\"name\":\"add\",\"seq\":3,\"args\":[1,\"x\"]}","executionContextId":9}}`,
			want: bindingFrame{Name: "add", ContextID: 9, Payload: bindingPayload{Name: "add", Seq: 3, Args: []Value{Value(`1`), Value(`"x"`)}}},
		},
		{
			name: "unrouted event",
			raw:  `{"method":"Page.loadEventFired","params":{"timestamp":12.5}}`,
			want: eventFrame{Method: "Page.loadEventFired", Params: Value(`{"timestamp":12.5}`)},
		},
		{
			name:    "not json",
			raw:     `<html>`,
			wantErr: true,
		},
		{
			name:    "neither id nor method",
			raw:     `{"params":{}}`,
			wantErr: true,
		},
		{
			name:    "binding payload not json",
			raw:     `{"method":"Runtime.bindingCalled","params":{"name":"add","payload":"oops","executionContextId":1}}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeFrame([]byte(tt.raw))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decodeFrame() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeFrame_TargetCreated(t *testing.T) {
	f, err := decodeFrame([]byte(pageTargetCreated))
	require.NoError(t, err)
	created, ok := f.(targetCreatedFrame)
	require.True(t, ok)
	require.NotNil(t, created.Info)
	assert.Equal(t, testTargetID, created.Info.TargetID)
	assert.Equal(t, "page", created.Info.Type)
	assert.Equal(t, methodTargetCreated, created.frameMethod())
}

func TestDecodeFrame_BindingNameFallsBackToEvent(t *testing.T) {
	f, err := decodeFrame([]byte(`{"method":"Runtime.bindingCalled","params":{"name":"fn","payload":"{\"seq\":1,\"args\":[]}","executionContextId":1}}`))
	require.NoError(t, err)
	b, ok := f.(bindingFrame)
	require.True(t, ok)
	assert.Equal(t, "fn", b.Payload.Name)
	assert.Equal(t, int64(1), b.Payload.Seq)
}

func TestIsSet(t *testing.T) {
	assert.False(t, isSet(nil))
	assert.False(t, isSet(Value(`null`)))
	assert.True(t, isSet(Value(`0`)))
	assert.True(t, isSet(Value(`""`)))
	assert.True(t, isSet(Value(`{}`)))
}

// FuzzDecodeFrame checks that arbitrary input never panics the decoder.
func FuzzDecodeFrame(f *testing.F) {
	f.Add([]byte(`{"id":2,"result":{"result":{"type":"number","value":2}}}`))
	f.Add([]byte(`{"method":"Target.receivedMessageFromTarget","params":{"sessionId":"S1","message":"{}"}}`))
	f.Add([]byte(`{"method":"Runtime.bindingCalled","params":{"name":"a","payload":"{}"}}`))
	f.Add([]byte(`{"id":`))

	f.Fuzz(func(t *testing.T, data []byte) {
		fr, err := decodeFrame(data)
		if err == nil && fr == nil {
			t.Fatalf("decodeFrame returned neither frame nor error for %q", data)
		}
		if err == nil {
			if reply, ok := fr.(replyFrame); ok {
				_, _ = classifyReply(reply)
			}
		}
	})
}

// FuzzBindingPayload round-trips structured payloads through the binding event path.
func FuzzBindingPayload(f *testing.F) {
	f.Fuzz(func(t *testing.T, data []byte) {
		consumer := fuzz.NewConsumer(data)
		name, err := consumer.GetString()
		if err != nil || name == "" {
			return
		}
		seq, err := consumer.GetInt()
		if err != nil {
			return
		}
		arg, err := consumer.GetString()
		if err != nil {
			return
		}
		argJSON, err := json.Marshal(arg)
		if err != nil {
			// Invalid UTF-8 is rejected by the encoder.
			return
		}

		payload, err := json.Marshal(bindingPayload{Name: name, Seq: int64(seq), Args: []Value{argJSON}})
		if err != nil {
			return
		}
		msg, err := json.Marshal(map[string]any{
			"method": methodBindingCalled,
			"params": map[string]any{"name": name, "payload": string(payload), "executionContextId": 1},
		})
		require.NoError(t, err)

		fr, err := decodeFrame(msg)
		require.NoError(t, err)
		b, ok := fr.(bindingFrame)
		require.True(t, ok)
		assert.Equal(t, name, b.Payload.Name)
		assert.Equal(t, int64(seq), b.Payload.Seq)
		require.Len(t, b.Payload.Args, 1)

		var got string
		require.NoError(t, json.Unmarshal(b.Payload.Args[0], &got))
		assert.Equal(t, arg, got)
	})
}
