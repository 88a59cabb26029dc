// pkg/devtools/binding.go
package devtools

import (
	"context"
	"errors"
	"fmt"
	goruntime "runtime"
	"sync/atomic"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	json "github.com/go-json-experiment/json"
	"go.uber.org/zap"
)

// BindingFunc handles one page-side call of a binding. It runs on the dispatch
// goroutine and must not block: long work belongs on another goroutine behind
// BindingCall.Detach.
//
// Unless the handler detaches, the call is completed with null as soon as the handler
// returns (or panics) without having completed it.
type BindingFunc func(call *BindingCall)

// HostFunc is a binding that computes its result synchronously. Each call runs on its
// own goroutine.
type HostFunc func(args []Value) (any, error)

// BindingCall is one outstanding invocation of a binding from the page. The promise on
// the page side settles exactly once, through the first of Resolve, Reject or Complete.
type BindingCall struct {
	session   *Session
	name      string
	seq       int64
	args      []Value
	contextID runtime.ExecutionContextID

	completed atomic.Bool
	detached  atomic.Bool
}

// Name is the binding that was called.
func (c *BindingCall) Name() string { return c.name }

// Seq is the page-side sequence number of this call.
func (c *BindingCall) Seq() int64 { return c.seq }

// Args are the call arguments as JSON values, in order.
func (c *BindingCall) Args() []Value { return c.args }

// ContextID is the execution context the call came from.
func (c *BindingCall) ContextID() runtime.ExecutionContextID { return c.contextID }

// Completed reports whether the page-side promise has been settled.
func (c *BindingCall) Completed() bool { return c.completed.Load() }

// Resolve fulfils the page-side promise with v encoded as JSON.
func (c *BindingCall) Resolve(v any) { c.Complete(v, nil) }

// Reject rejects the page-side promise with v encoded as JSON.
func (c *BindingCall) Reject(v any) {
	raw, err := encodeValue(v)
	if err != nil {
		raw = errorValue(err)
	}
	c.finish(false, raw)
}

// Complete settles the call: rejected with err when err is non-nil, otherwise
// fulfilled with v. A *JSError is rejected with its raw value, any other error with
// its message.
func (c *BindingCall) Complete(v any, err error) {
	if err != nil {
		c.finish(false, errorValue(err))
		return
	}
	raw, encErr := encodeValue(v)
	if encErr != nil {
		c.finish(false, errorValue(encErr))
		return
	}
	c.finish(true, raw)
}

// Detach takes the call out of the handler's scope. The caller becomes responsible
// for completing it; if it is dropped without completion the promise is fulfilled
// with null when the call is garbage collected.
func (c *BindingCall) Detach() {
	if c.detached.Swap(true) {
		return
	}
	goruntime.SetFinalizer(c, func(c *BindingCall) {
		if !c.completed.Load() {
			c.session.logger.Warn("Binding call dropped without completion.",
				zap.String("binding", c.name), zap.Int64("seq", c.seq))
			c.finish(true, jsonNull)
		}
	})
}

func (c *BindingCall) finish(ok bool, value Value) {
	if c.completed.Swap(true) {
		c.session.logger.Debug("Ignoring second completion of binding call.",
			zap.String("binding", c.name), zap.Int64("seq", c.seq))
		return
	}
	params := runtime.Evaluate(completionScript(c.name, c.seq, ok, value))
	if c.contextID != 0 {
		params = params.WithContextID(c.contextID)
	}
	// Never wait here: this may run on the dispatch goroutine, which is the
	// only thing that could deliver the reply.
	c.session.sendAsync(runtime.CommandEvaluate, params)
}

// BindAsync exposes fn to the page as window[name]. Page code calling it gets a
// promise that settles when the call is completed.
func (s *Session) BindAsync(ctx context.Context, name string, fn BindingFunc) error {
	if name == "" {
		return errors.New("binding name must not be empty")
	}
	s.bindingsMu.Lock()
	s.bindings[name] = fn
	s.bindingsMu.Unlock()

	if _, err := s.Call(ctx, runtime.CommandAddBinding, runtime.AddBinding(name)); err != nil {
		return err
	}
	return s.InjectScript(ctx, bindingScript(name))
}

// Bind exposes fn to the page as window[name]. Each call runs fn on its own goroutine
// and settles the page-side promise with its result. A panic in fn rejects the call.
func (s *Session) Bind(ctx context.Context, name string, fn HostFunc) error {
	return s.BindAsync(ctx, name, func(call *BindingCall) {
		call.Detach()
		go func() {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("Panic in host function.", zap.String("binding", call.name), zap.Any("panic_value", r))
					call.Reject(fmt.Sprintf("panic in %s: %v", call.name, r))
				}
			}()
			call.Complete(fn(call.Args()))
		}()
	})
}

// bindingCalled runs the handler for one page-side call and completes the call with
// null once the handler is finished with it, however it exits.
func (s *Session) bindingCalled(f bindingFrame) {
	s.bindingsMu.RLock()
	fn, ok := s.bindings[f.Name]
	s.bindingsMu.RUnlock()
	if !ok {
		s.logger.Debug("Ignoring call of unknown binding.", zap.String("binding", f.Name))
		return
	}

	args := f.Payload.Args
	if args == nil {
		args = []Value{}
	}
	call := &BindingCall{
		session:   s,
		name:      f.Payload.Name,
		seq:       f.Payload.Seq,
		args:      args,
		contextID: f.ContextID,
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic in binding handler.", zap.String("binding", call.name), zap.Any("panic_value", r))
		}
		if !call.detached.Load() && !call.completed.Load() {
			call.finish(true, jsonNull)
		}
	}()
	fn(call)
}

func encodeValue(v any) (Value, error) {
	switch v := v.(type) {
	case nil:
		return jsonNull, nil
	case Value:
		if len(v) == 0 {
			return jsonNull, nil
		}
		if !v.IsValid() {
			return nil, fmt.Errorf("invalid JSON value %q", clip(v))
		}
		return v, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode binding result: %w", err)
	}
	return raw, nil
}

func errorValue(err error) Value {
	var jsErr *JSError
	if errors.As(err, &jsErr) && len(jsErr.Value) > 0 {
		return jsErr.Value
	}
	raw, encErr := json.Marshal(err.Error())
	if encErr != nil {
		return jsonNull
	}
	return raw
}

// bindingScript replaces the raw binding installed by Runtime.addBinding with a
// function returning a promise. Calls are numbered per binding and forwarded to the
// host as a JSON string; the host settles them through completionScript.
func bindingScript(name string) string {
	quoted, _ := json.Marshal(name)
	return fmt.Sprintf(`(() => {
	const bindingName = %s;
	const binding = window[bindingName];
	if (!binding || binding.callbacks) {
		return;
	}
	const stub = (...args) => {
		const seq = (stub.lastSeq || 0) + 1;
		stub.lastSeq = seq;
		const promise = new Promise((resolve, reject) => {
			stub.callbacks.set(seq, resolve);
			stub.errors.set(seq, reject);
		});
		binding(JSON.stringify({name: bindingName, seq, args}));
		return promise;
	};
	stub.callbacks = new Map();
	stub.errors = new Map();
	window[bindingName] = stub;
})();`, quoted)
}

// completionScript settles call seq of binding name with value and forgets it.
func completionScript(name string, seq int64, ok bool, value Value) string {
	quoted, _ := json.Marshal(name)
	settle := "errors"
	if ok {
		settle = "callbacks"
	}
	return fmt.Sprintf(`(() => {
	const stub = window[%s];
	if (!stub || !stub.callbacks) {
		return;
	}
	const settle = stub.%s.get(%d);
	stub.callbacks.delete(%d);
	stub.errors.delete(%d);
	if (settle) {
		settle(%s);
	}
})();`, quoted, settle, seq, seq, seq, value)
}

// InjectScript evaluates source now and on every future document.
func (s *Session) InjectScript(ctx context.Context, source string) error {
	if _, err := s.Call(ctx, page.CommandAddScriptToEvaluateOnNewDocument, page.AddScriptToEvaluateOnNewDocument(source)); err != nil {
		return err
	}
	_, err := s.Call(ctx, runtime.CommandEvaluate, runtime.Evaluate(source))
	return err
}
