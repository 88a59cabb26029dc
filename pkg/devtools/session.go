// pkg/devtools/session.go
package devtools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/css"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/log"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/performance"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/security"
	"github.com/chromedp/cdproto/target"
	json "github.com/go-json-experiment/json"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Command is one protocol method invocation.
type Command struct {
	Method string
	Params any
}

// DefaultDomains is the enable sequence every session runs right after attaching.
// Each entry is idempotent on the browser side.
func DefaultDomains() []Command {
	return []Command{
		{page.CommandEnable, page.Enable()},
		{target.CommandSetAutoAttach, target.SetAutoAttach(true, false)},
		{network.CommandEnable, network.Enable()},
		{runtime.CommandEnable, runtime.Enable()},
		{security.CommandEnable, security.Enable()},
		{performance.CommandEnable, performance.Enable()},
		{log.CommandEnable, log.Enable()},
		{dom.CommandEnable, dom.Enable()},
		{css.CommandEnable, css.Enable()},
	}
}

// DomainCommands maps domain names such as "Page" or "Runtime" to enable commands, in
// the order given. Names covered by DefaultDomains reuse its command; any other name
// gets a plain "<Name>.enable". An empty list yields nil so DefaultDomains applies.
func DomainCommands(names []string) []Command {
	if len(names) == 0 {
		return nil
	}
	known := make(map[string]Command)
	for _, c := range DefaultDomains() {
		domain, _, _ := strings.Cut(c.Method, ".")
		known[domain] = c
	}
	cmds := make([]Command, 0, len(names))
	for _, name := range names {
		if c, ok := known[name]; ok {
			cmds = append(cmds, c)
			continue
		}
		cmds = append(cmds, Command{Method: name + ".enable"})
	}
	return cmds
}

// Options tunes a Session. The zero value is usable.
type Options struct {
	Logger *zap.Logger

	// Headless skips window id resolution; bounds operations are unavailable.
	Headless bool

	// Domains overrides DefaultDomains when non-nil.
	Domains []Command

	// OnTargetDestroyed runs on the dispatch goroutine when the attached page target
	// is destroyed, before the loop stops. Launchers use it to kill the process.
	OnTargetDestroyed func()

	// OnEvent receives every event from the attached target that is not a reply or a
	// binding call: *runtime.EventConsoleAPICalled, *runtime.EventExceptionThrown, or
	// *RawEvent. It runs on the dispatch goroutine and must not block.
	OnEvent func(ev any)

	// TerminateOnMalformed stops the dispatch loop on an unparseable frame instead of
	// skipping it.
	TerminateOnMalformed bool

	// EventLogLimit and EventLogBurst throttle page console/exception logging.
	// Zero means 20 events per second with a burst of 50.
	EventLogLimit rate.Limit
	EventLogBurst int
}

// RawEvent is an event from the attached target the session does not decode.
type RawEvent struct {
	Method string
	Params Value
}

// replyFunc receives the settled outcome of one request id.
type replyFunc func(Value, error)

// Session is an attached control channel to the browser's single page target. It owns
// the transport; all methods are safe for concurrent use.
type Session struct {
	transport Transport
	logger    *zap.Logger
	opts      Options

	nextID    atomic.Int64
	targetID  target.ID
	sessionID target.SessionID
	windowID  atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]replyFunc

	bindingsMu sync.RWMutex
	bindings   map[string]BindingFunc

	eventLog *eventLogger

	done    chan struct{}
	doneErr error
}

// New runs the handshake over t: discover the page target, attach to it, start the
// dispatch loop, enable the configured domains and, unless headless, resolve the
// window id. Cancelling ctx during the handshake closes t.
//
// The transport belongs to the session from here on, including on failure.
func New(ctx context.Context, t Transport, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := newSession(t, logger.Named("devtools"), opts)

	stop := context.AfterFunc(ctx, func() { _ = t.Close() })
	defer stop()

	fail := func(step string, err error) (*Session, error) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%v)", ctxErr, err)
		}
		_ = t.Close()
		return nil, &HandshakeError{Step: step, Err: err}
	}

	targetID, err := s.findTarget()
	if err != nil {
		return fail("discover", err)
	}
	s.targetID = targetID
	s.logger.Debug("Page target found.", zap.String("target_id", string(targetID)))

	sessionID, err := s.attach()
	if err != nil {
		return fail("attach", err)
	}
	s.sessionID = sessionID
	s.logger = s.logger.With(zap.String("session_id", string(sessionID)))
	s.logger.Debug("Attached to page target.")

	go s.readLoop()

	domains := opts.Domains
	if domains == nil {
		domains = DefaultDomains()
	}
	if err := s.enable(ctx, domains); err != nil {
		return fail("enable", err)
	}

	if !opts.Headless {
		windowID, err := s.resolveWindow(ctx)
		if err != nil {
			return fail("window", err)
		}
		s.windowID.Store(int64(windowID))
	}
	return s, nil
}

func newSession(t Transport, logger *zap.Logger, opts Options) *Session {
	s := &Session{
		transport: t,
		logger:    logger,
		opts:      opts,
		pending:   make(map[int64]replyFunc),
		bindings:  make(map[string]BindingFunc),
		done:      make(chan struct{}),
	}
	s.eventLog = newEventLogger(logger.Named("page"), opts.EventLogLimit, opts.EventLogBurst)
	s.nextID.Store(reservedIDs - 1)
	return s
}

// findTarget announces target discovery and waits for the first page target.
// There is no timeout: a browser that never creates a page hangs here.
func (s *Session) findTarget() (target.ID, error) {
	msg, err := encodeCommand(discoverID, target.CommandSetDiscoverTargets, target.SetDiscoverTargets(true))
	if err != nil {
		return "", err
	}
	if err := s.transport.Write(msg); err != nil {
		return "", err
	}

	for {
		raw, err := s.transport.Read()
		if err != nil {
			return "", err
		}
		f, err := decodeFrame(raw)
		if err != nil {
			return "", err
		}
		created, ok := f.(targetCreatedFrame)
		if !ok || created.Info == nil {
			continue
		}
		if created.Info.Type == "page" {
			return created.Info.TargetID, nil
		}
	}
}

// attach opens a session on the discovered target and waits for its id.
func (s *Session) attach() (target.SessionID, error) {
	msg, err := encodeCommand(attachID, target.CommandAttachToTarget, target.AttachToTarget(s.targetID))
	if err != nil {
		return "", err
	}
	if err := s.transport.Write(msg); err != nil {
		return "", err
	}

	for {
		raw, err := s.transport.Read()
		if err != nil {
			return "", err
		}
		f, err := decodeFrame(raw)
		if err != nil {
			return "", err
		}
		reply, ok := f.(replyFrame)
		if !ok || reply.ID != attachID {
			continue
		}
		if isSet(reply.Error) {
			return "", &JSError{Value: reply.Error}
		}
		var res target.AttachToTargetReturns
		if err := json.Unmarshal(reply.Result, &res); err != nil {
			return "", fmt.Errorf("malformed attach reply: %w", err)
		}
		if res.SessionID == "" {
			return "", errors.New("attach reply carried no session id")
		}
		return res.SessionID, nil
	}
}

// enable runs the domain enable sequence, stopping at the first failure.
func (s *Session) enable(ctx context.Context, domains []Command) error {
	for _, d := range domains {
		if _, err := s.Call(ctx, d.Method, d.Params); err != nil {
			return fmt.Errorf("%s: %w", d.Method, err)
		}
	}
	return nil
}

func (s *Session) resolveWindow(ctx context.Context) (browser.WindowID, error) {
	var res browser.GetWindowForTargetReturns
	err := s.callInto(ctx, browser.CommandGetWindowForTarget,
		browser.GetWindowForTarget().WithTargetID(s.targetID), &res)
	if err != nil {
		return 0, err
	}
	return res.WindowID, nil
}

// TargetID is the attached page target.
func (s *Session) TargetID() target.ID { return s.targetID }

// SessionID is the id returned by the attach call.
func (s *Session) SessionID() target.SessionID { return s.sessionID }

// WindowID is the platform window of the page, zero when headless.
func (s *Session) WindowID() browser.WindowID { return browser.WindowID(s.windowID.Load()) }

// Done is closed when the dispatch loop has stopped. Calls issued after that never
// receive a reply unless their context ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// Err reports why the dispatch loop stopped. It is nil while the session is live.
func (s *Session) Err() error {
	select {
	case <-s.done:
		return s.doneErr
	default:
		return nil
	}
}

// Shutdown closes the transport. The dispatch loop stops on its next read.
func (s *Session) Shutdown() error {
	return s.transport.Close()
}
