// internal/browser/browser.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/cdpipe/internal/config"
	"github.com/xkilldash9x/cdpipe/pkg/devtools"
)

// ErrCloseTimeout is returned by CloseBlocking when the browser outlives the timeout.
var ErrCloseTimeout = errors.New("browser did not exit before the close timeout")

// Browser is one launched browser window and its attached page session.
type Browser struct {
	id      string
	logger  *zap.Logger
	cfg     config.BrowserConfig
	proc    *Process
	session *devtools.Session

	// profileDir is removed on Shutdown when ownsProfile is set.
	profileDir  string
	ownsProfile bool

	waited       atomic.Bool
	shutdownOnce sync.Once
	shutdownErr  error
}

// Launch locates and starts the browser pointed at content, then attaches to its page.
// ctx bounds the launch and handshake only.
func Launch(ctx context.Context, cfg config.Interface, content Content, logger *zap.Logger) (*Browser, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.NewString()
	bcfg := cfg.Browser()
	scfg := cfg.Session()

	b := &Browser{
		id:     id,
		logger: logger.Named("browser").With(zap.String("instance_id", id)),
		cfg:    bcfg,
	}

	path, err := Locate(bcfg.Path)
	if err != nil {
		return nil, err
	}

	b.profileDir = bcfg.UserDataDir
	if b.profileDir == "" {
		dir, err := os.MkdirTemp("", "cdpipe-"+id+"-")
		if err != nil {
			return nil, fmt.Errorf("failed to create profile directory: %w", err)
		}
		b.profileDir = dir
		b.ownsProfile = true
	}

	args := BuildArgs(bcfg, content, b.profileDir)
	b.logger.Debug("Launching browser.", zap.String("path", path), zap.Strings("args", args))

	proc, err := startProcess(ctx, path, args, b.logger)
	if err != nil {
		b.removeProfile()
		return nil, err
	}
	b.proc = proc

	session, err := devtools.New(ctx, proc.Transport(), devtools.Options{
		Logger:               b.logger,
		Headless:             bcfg.Headless,
		Domains:              devtools.DomainCommands(scfg.Domains),
		OnTargetDestroyed:    proc.Kill,
		TerminateOnMalformed: !scfg.SkipMalformed,
		EventLogLimit:        rate.Limit(scfg.EventRate),
		EventLogBurst:        scfg.EventBurst,
	})
	if err != nil {
		proc.Kill()
		_ = proc.Wait()
		b.removeProfile()
		return nil, fmt.Errorf("failed to attach to browser: %w", err)
	}
	b.session = session

	b.logger.Info("Browser ready.",
		zap.String("target_id", string(session.TargetID())),
		zap.Int64("window_id", int64(session.WindowID())))
	return b, nil
}

// ID is the per-launch instance id.
func (b *Browser) ID() string { return b.id }

// Session exposes the underlying protocol session.
func (b *Browser) Session() *devtools.Session { return b.session }

// ProfileDir is the user data directory in use.
func (b *Browser) ProfileDir() string { return b.profileDir }

// Load navigates the page to content.
func (b *Browser) Load(ctx context.Context, content Content) error {
	return b.session.Navigate(ctx, content.String())
}

// Eval evaluates js in the page and returns its value.
func (b *Browser) Eval(ctx context.Context, js string) (devtools.Value, error) {
	return b.session.Evaluate(ctx, js)
}

// Bind exposes fn to the page as window[name]. Each call runs on its own goroutine.
func (b *Browser) Bind(ctx context.Context, name string, fn devtools.HostFunc) error {
	return b.session.Bind(ctx, name, fn)
}

// BindAsync exposes fn to the page as window[name]. fn runs on the dispatch goroutine
// and must not block; it completes the call itself or detaches it.
func (b *Browser) BindAsync(ctx context.Context, name string, fn devtools.BindingFunc) error {
	return b.session.BindAsync(ctx, name, fn)
}

// LoadJS runs script now and on every later document.
func (b *Browser) LoadJS(ctx context.Context, script string) error {
	return b.session.InjectScript(ctx, script)
}

// LoadCSS adds a stylesheet to the current document.
func (b *Browser) LoadCSS(ctx context.Context, css string) error {
	return b.session.InjectStylesheet(ctx, css)
}

// SetBounds changes the window geometry or state.
func (b *Browser) SetBounds(ctx context.Context, bounds cdpbrowser.Bounds) error {
	return b.session.SetBounds(ctx, bounds)
}

// Bounds reports the window geometry and state.
func (b *Browser) Bounds(ctx context.Context) (cdpbrowser.Bounds, error) {
	return b.session.Bounds(ctx)
}

// Close asks the browser to exit and returns immediately.
func (b *Browser) Close() {
	b.session.Close()
}

// CloseBlocking asks the browser to exit and waits up to timeout for it to do so.
// A zero timeout waits forever.
func (b *Browser) CloseBlocking(timeout time.Duration) error {
	b.Close()
	if timeout <= 0 {
		_ = b.Wait()
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-b.proc.Done():
		b.waited.Store(true)
		return nil
	case <-timer.C:
		return ErrCloseTimeout
	}
}

// Done closes when the browser process has exited.
func (b *Browser) Done() <-chan struct{} { return b.proc.Done() }

// Wait blocks until the browser process exits.
func (b *Browser) Wait() error {
	err := b.proc.Wait()
	b.waited.Store(true)
	return err
}

// Shutdown closes the browser if nobody has waited for it yet, kills it if it does not
// exit within the configured close timeout, tears down the session and removes a
// temporary profile. It is safe to call more than once.
func (b *Browser) Shutdown() error {
	b.shutdownOnce.Do(func() {
		if !b.waited.Load() && !b.proc.Exited() {
			if err := b.CloseBlocking(b.cfg.CloseTimeout); err != nil {
				b.logger.Warn("Browser ignored close, killing it.", zap.Error(err))
				b.proc.Kill()
			}
		}
		_ = b.proc.Wait()

		if err := b.session.Shutdown(); err != nil {
			b.logger.Debug("Error closing debugging pipe.", zap.Error(err))
		}
		<-b.session.Done()

		b.shutdownErr = b.removeProfile()
		b.logger.Info("Browser shut down.")
	})
	return b.shutdownErr
}

func (b *Browser) removeProfile() error {
	if !b.ownsProfile || b.profileDir == "" {
		return nil
	}
	if err := os.RemoveAll(b.profileDir); err != nil {
		b.logger.Warn("Failed to remove profile directory.", zap.String("dir", b.profileDir), zap.Error(err))
		return fmt.Errorf("failed to remove profile directory: %w", err)
	}
	return nil
}
