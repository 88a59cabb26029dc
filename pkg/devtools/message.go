// pkg/devtools/message.go
package devtools

import (
	"fmt"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	json "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Value is an undecoded JSON value as it appeared on the wire.
type Value = jsontext.Value

// Methods the session routes on. Everything else is passed through untouched.
const (
	methodTargetCreated             = "Target.targetCreated"
	methodTargetDestroyed           = "Target.targetDestroyed"
	methodReceivedMessageFromTarget = "Target.receivedMessageFromTarget"
	methodSendMessageToTarget       = "Target.sendMessageToTarget"
	methodConsoleAPICalled          = "Runtime.consoleAPICalled"
	methodExceptionThrown           = "Runtime.exceptionThrown"
	methodBindingCalled             = "Runtime.bindingCalled"
)

// Handshake ids. Session-level calls are numbered from reservedIDs upwards.
const (
	discoverID  int64 = 0
	attachID    int64 = 1
	reservedIDs int64 = 2
)

// command is the {id, method, params} envelope shared by direct and target-routed messages.
type command struct {
	ID     int64  `json:"id"`
	Method string `json:"method"`
	Params any    `json:"params"`
}

type sendMessageToTargetParams struct {
	Message   string           `json:"message"`
	SessionID target.SessionID `json:"sessionId"`
}

type receivedMessageFromTargetParams struct {
	SessionID target.SessionID `json:"sessionId"`
	Message   string           `json:"message"`
	TargetID  target.ID        `json:"targetId,omitempty"`
}

// encodeCommand renders a browser-level command.
func encodeCommand(id int64, method string, params any) ([]byte, error) {
	if params == nil {
		params = struct{}{}
	}
	buf, err := json.Marshal(command{ID: id, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	return buf, nil
}

// encodeTargetCommand wraps a command for the attached page inside Target.sendMessageToTarget.
// Both envelopes carry the same id.
func encodeTargetCommand(id int64, sessionID target.SessionID, method string, params any) ([]byte, error) {
	inner, err := encodeCommand(id, method, params)
	if err != nil {
		return nil, err
	}
	return encodeCommand(id, methodSendMessageToTarget, sendMessageToTargetParams{
		Message:   string(inner),
		SessionID: sessionID,
	})
}

// envelope is the shape shared by every inbound message before classification.
type envelope struct {
	ID     *int64 `json:"id"`
	Method string `json:"method"`
	Params Value  `json:"params"`
	Result Value  `json:"result"`
	Error  Value  `json:"error"`
}

// frame is one classified inbound message. Exactly one of the concrete types below.
type frame interface {
	frameMethod() string
}

// replyFrame answers an earlier command with the same id.
type replyFrame struct {
	ID     int64
	Result Value
	Error  Value
}

type targetCreatedFrame struct {
	Info *target.Info
}

type targetDestroyedFrame struct {
	TargetID target.ID
}

// targetMessageFrame is a message relayed from an attached target. Message holds the
// inner JSON document, which is classified again with decodeFrame.
type targetMessageFrame struct {
	SessionID target.SessionID
	Message   string
}

type consoleFrame struct {
	Event *runtime.EventConsoleAPICalled
}

type exceptionFrame struct {
	Event *runtime.EventExceptionThrown
}

// bindingFrame is a page-side call through an injected binding stub.
type bindingFrame struct {
	Name      string
	ContextID runtime.ExecutionContextID
	Payload   bindingPayload
}

// eventFrame is any event the session does not route.
type eventFrame struct {
	Method string
	Params Value
}

func (replyFrame) frameMethod() string           { return "" }
func (targetCreatedFrame) frameMethod() string   { return methodTargetCreated }
func (targetDestroyedFrame) frameMethod() string { return methodTargetDestroyed }
func (targetMessageFrame) frameMethod() string   { return methodReceivedMessageFromTarget }
func (consoleFrame) frameMethod() string         { return methodConsoleAPICalled }
func (exceptionFrame) frameMethod() string       { return methodExceptionThrown }
func (bindingFrame) frameMethod() string         { return methodBindingCalled }
func (f eventFrame) frameMethod() string         { return f.Method }

// bindingPayload is the JSON string the binding stub forwards to the host.
type bindingPayload struct {
	Name string  `json:"name"`
	Seq  int64   `json:"seq"`
	Args []Value `json:"args"`
}

// decodeFrame parses raw once and returns its typed variant. It is used for top-level
// messages and again for the inner document of a relayed target message.
func decodeFrame(raw []byte) (frame, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	if env.ID != nil {
		return replyFrame{ID: *env.ID, Result: env.Result, Error: env.Error}, nil
	}

	switch env.Method {
	case "":
		return nil, fmt.Errorf("malformed message: neither id nor method present")

	case methodTargetCreated:
		var ev target.EventTargetCreated
		if err := json.Unmarshal(env.Params, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Method, err)
		}
		return targetCreatedFrame{Info: ev.TargetInfo}, nil

	case methodTargetDestroyed:
		var ev target.EventTargetDestroyed
		if err := json.Unmarshal(env.Params, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Method, err)
		}
		return targetDestroyedFrame{TargetID: ev.TargetID}, nil

	case methodReceivedMessageFromTarget:
		var p receivedMessageFromTargetParams
		if err := json.Unmarshal(env.Params, &p); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Method, err)
		}
		return targetMessageFrame{SessionID: p.SessionID, Message: p.Message}, nil

	case methodBindingCalled:
		var ev runtime.EventBindingCalled
		if err := json.Unmarshal(env.Params, &ev); err != nil {
			return nil, fmt.Errorf("malformed %s: %w", env.Method, err)
		}
		var payload bindingPayload
		if err := json.Unmarshal([]byte(ev.Payload), &payload); err != nil {
			return nil, fmt.Errorf("malformed binding payload for %q: %w", ev.Name, err)
		}
		if payload.Name == "" {
			payload.Name = ev.Name
		}
		return bindingFrame{Name: ev.Name, ContextID: ev.ExecutionContextID, Payload: payload}, nil

	// Diagnostic events fall back to the raw form when the typed decode
	// rejects a field it does not know yet; they are still worth logging.
	case methodConsoleAPICalled:
		var ev runtime.EventConsoleAPICalled
		if err := json.Unmarshal(env.Params, &ev); err != nil {
			return eventFrame{Method: env.Method, Params: env.Params}, nil
		}
		return consoleFrame{Event: &ev}, nil

	case methodExceptionThrown:
		var ev runtime.EventExceptionThrown
		if err := json.Unmarshal(env.Params, &ev); err != nil {
			return eventFrame{Method: env.Method, Params: env.Params}, nil
		}
		return exceptionFrame{Event: &ev}, nil
	}

	return eventFrame{Method: env.Method, Params: env.Params}, nil
}

// isSet reports whether v holds something other than absence or JSON null.
func isSet(v Value) bool {
	return len(v) > 0 && v.Kind() != 'n'
}
