// pkg/devtools/call.go
package devtools

import (
	"context"
	"errors"
	"fmt"

	json "github.com/go-json-experiment/json"
	"go.uber.org/zap"
)

var jsonNull = Value("null")

type callResult struct {
	value Value
	err   error
}

// Call sends method to the attached page and blocks until its reply arrives or ctx ends.
// A protocol-level failure is returned as *JSError. When ctx ends first the request id
// is abandoned: a reply that shows up later is discarded.
//
// With a context that never ends, a call issued to a session whose dispatch loop has
// stopped blocks forever. Callers that need liveness should watch Done.
func (s *Session) Call(ctx context.Context, method string, params any) (Value, error) {
	ch := make(chan callResult, 1)
	id, err := s.send(method, params, func(v Value, err error) {
		ch <- callResult{value: v, err: err}
	})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		s.forget(id)
		return nil, ctx.Err()
	}
}

// callInto is Call followed by decoding the reply into out.
func (s *Session) callInto(ctx context.Context, method string, params, out any) error {
	v, err := s.Call(ctx, method, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(v, out); err != nil {
		return fmt.Errorf("failed to decode %s reply: %w", method, err)
	}
	return nil
}

// send registers onReply under a fresh id and writes the target-routed envelope. The
// pending entry exists before the bytes leave, so the reply can never outrun it.
func (s *Session) send(method string, params any, onReply replyFunc) (int64, error) {
	id := s.nextID.Add(1)
	msg, err := encodeTargetCommand(id, s.sessionID, method, params)
	if err != nil {
		return 0, err
	}

	s.pendingMu.Lock()
	s.pending[id] = onReply
	s.pendingMu.Unlock()

	if err := s.transport.Write(msg); err != nil {
		s.forget(id)
		if errors.Is(err, ErrClosed) {
			s.logger.Debug("Dropping command, transport already closed.", zap.String("method", method), zap.Int64("id", id))
		}
		return 0, fmt.Errorf("%s: %w", method, err)
	}
	return id, nil
}

// sendAsync fires a command whose reply is only logged. It never waits on the dispatch
// loop, so it is safe to use from the dispatch goroutine itself.
func (s *Session) sendAsync(method string, params any) {
	_, err := s.send(method, params, func(_ Value, err error) {
		if err != nil {
			s.logger.Warn("Asynchronous command failed.", zap.String("method", method), zap.Error(err))
		}
	})
	if err != nil && !errors.Is(err, ErrClosed) {
		s.logger.Error("Failed to send asynchronous command.", zap.String("method", method), zap.Error(err))
	}
}

// forget retires id without settling it.
func (s *Session) forget(id int64) {
	s.pendingMu.Lock()
	delete(s.pending, id)
	s.pendingMu.Unlock()
}

// settle delivers a reply to whoever is waiting on its id and retires the id.
func (s *Session) settle(r replyFrame) {
	s.pendingMu.Lock()
	onReply, ok := s.pending[r.ID]
	delete(s.pending, r.ID)
	s.pendingMu.Unlock()

	if !ok {
		s.logger.Debug("Discarding reply with no pending request.", zap.Int64("id", r.ID))
		return
	}
	onReply(classifyReply(r))
}

// pendingCount is the number of requests still waiting on a reply.
func (s *Session) pendingCount() int {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	return len(s.pending)
}

type protocolError struct {
	Message Value `json:"message"`
}

type remoteObject struct {
	Type        string `json:"type"`
	Subtype     string `json:"subtype"`
	Value       Value  `json:"value"`
	Description Value  `json:"description"`
}

type exceptionDetails struct {
	Exception *remoteObject `json:"exception"`
}

// evaluationResult covers Runtime.evaluate and Runtime.callFunctionOn replies.
type evaluationResult struct {
	Result           *remoteObject     `json:"result"`
	ExceptionDetails *exceptionDetails `json:"exceptionDetails"`
}

// classifyReply turns a reply into Ok(value) or Err(value):
//   - a CDP error object yields its message;
//   - a thrown exception yields the exception value;
//   - an evaluation returning an Error instance yields its description;
//   - an evaluation returning anything else yields the value by value;
//   - any other result object is returned whole.
func classifyReply(r replyFrame) (Value, error) {
	if isSet(r.Error) {
		var pe protocolError
		if err := json.Unmarshal(r.Error, &pe); err == nil && isSet(pe.Message) {
			return nil, &JSError{Value: pe.Message}
		}
		return nil, &JSError{Value: r.Error}
	}

	if !isSet(r.Result) {
		return jsonNull, nil
	}

	var er evaluationResult
	if err := json.Unmarshal(r.Result, &er); err != nil {
		return r.Result, nil
	}

	if er.ExceptionDetails != nil && er.ExceptionDetails.Exception != nil && isSet(er.ExceptionDetails.Exception.Value) {
		return nil, &JSError{Value: er.ExceptionDetails.Exception.Value}
	}

	if er.Result != nil {
		if er.Result.Type == "object" && er.Result.Subtype == "error" {
			desc := er.Result.Description
			if !isSet(desc) {
				desc = jsonNull
			}
			return nil, &JSError{Value: desc}
		}
		if er.Result.Type != "" {
			if !isSet(er.Result.Value) {
				return jsonNull, nil
			}
			return er.Result.Value, nil
		}
	}

	return r.Result, nil
}
