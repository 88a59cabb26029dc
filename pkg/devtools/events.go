// pkg/devtools/events.go
package devtools

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/chromedp/cdproto/runtime"
	json "github.com/go-json-experiment/json"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

const (
	defaultEventLogLimit rate.Limit = 20
	defaultEventLogBurst            = 50
)

// eventLogger writes page console output and uncaught exceptions to the host log.
// A chatty page is throttled so it cannot flood the log; throttled events are counted
// and still delivered to Options.OnEvent.
type eventLogger struct {
	logger  *zap.Logger
	limiter *rate.Limiter
	drops   atomic.Uint64
}

func newEventLogger(logger *zap.Logger, limit rate.Limit, burst int) *eventLogger {
	if limit == 0 {
		limit = defaultEventLogLimit
	}
	if burst <= 0 {
		burst = defaultEventLogBurst
	}
	return &eventLogger{
		logger:  logger,
		limiter: rate.NewLimiter(limit, burst),
	}
}

func (l *eventLogger) console(e *runtime.EventConsoleAPICalled) {
	if !l.allow() {
		return
	}
	level := zapcore.InfoLevel
	switch e.Type {
	case runtime.APITypeError, runtime.APITypeAssert:
		level = zapcore.ErrorLevel
	case runtime.APITypeWarning:
		level = zapcore.WarnLevel
	case runtime.APITypeDebug, runtime.APITypeTrace:
		level = zapcore.DebugLevel
	}
	if ce := l.logger.Check(level, consoleText(e.Args)); ce != nil {
		ce.Write(zap.String("type", string(e.Type)))
	}
}

func (l *eventLogger) exception(e *runtime.EventExceptionThrown) {
	if e.ExceptionDetails == nil || !l.allow() {
		return
	}
	// The description usually carries the stack trace.
	text := e.ExceptionDetails.Text
	if e.ExceptionDetails.Exception != nil && e.ExceptionDetails.Exception.Description != "" {
		text = e.ExceptionDetails.Exception.Description
	}
	l.logger.Error("Uncaught exception in page.",
		zap.String("text", text),
		zap.Int64("line", e.ExceptionDetails.LineNumber),
		zap.Int64("column", e.ExceptionDetails.ColumnNumber),
	)
}

func (l *eventLogger) allow() bool {
	if l.limiter.Allow() {
		return true
	}
	l.drops.Add(1)
	return false
}

func (l *eventLogger) dropped() uint64 { return l.drops.Load() }

// consoleText flattens console arguments the way a devtools console would print them.
func consoleText(args []*runtime.RemoteObject) string {
	var b strings.Builder
	for i, arg := range args {
		if i > 0 {
			b.WriteString(" ")
		}
		var val any
		if len(arg.Value) > 0 && json.Unmarshal([]byte(arg.Value), &val) == nil {
			fmt.Fprintf(&b, "%v", val)
		} else if arg.Description != "" {
			b.WriteString(arg.Description)
		} else {
			fmt.Fprintf(&b, "[%s]", arg.Type)
		}
	}
	return b.String()
}
