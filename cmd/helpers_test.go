// File: cmd/helpers_test.go
package cmd

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/cdpipe/internal/browser"
	"github.com/xkilldash9x/cdpipe/internal/config"
	"github.com/xkilldash9x/cdpipe/pkg/devtools"
)

// fakeWindow stands in for a launched browser.
type fakeWindow struct {
	mu        sync.Mutex
	evals     []string
	bound     []string
	evalValue devtools.Value
	evalErr   error

	done      chan struct{}
	doneOnce  sync.Once
	closes    int
	shutdowns int
}

func newFakeWindow() *fakeWindow {
	return &fakeWindow{done: make(chan struct{}), evalValue: devtools.Value(`null`)}
}

func (w *fakeWindow) Eval(_ context.Context, js string) (devtools.Value, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evals = append(w.evals, js)
	return w.evalValue, w.evalErr
}

func (w *fakeWindow) Bind(_ context.Context, name string, _ devtools.HostFunc) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bound = append(w.bound, name)
	return nil
}

func (w *fakeWindow) Done() <-chan struct{} { return w.done }

// exit simulates the user closing the window.
func (w *fakeWindow) exit() { w.doneOnce.Do(func() { close(w.done) }) }

func (w *fakeWindow) CloseBlocking(time.Duration) error {
	w.mu.Lock()
	w.closes++
	w.mu.Unlock()
	w.exit()
	return nil
}

func (w *fakeWindow) Shutdown() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.shutdowns++
	return nil
}

// launchRecord captures what a command asked to launch.
type launchRecord struct {
	cfg     config.BrowserConfig
	content browser.Content
}

// newTestApp wires an app to w and a test logger, with a private viper instance.
func newTestApp(t *testing.T, w *fakeWindow) (*app, *launchRecord) {
	t.Helper()
	rec := &launchRecord{}
	a := &app{
		v: viper.New(),
		launch: func(_ context.Context, cfg config.Interface, content browser.Content, _ *zap.Logger) (window, error) {
			rec.cfg = cfg.Browser()
			rec.content = content
			return w, nil
		},
		newLogger: func(config.LoggerConfig) *zap.Logger { return zaptest.NewLogger(t) },
	}
	return a, rec
}

// execute runs the command tree with args and returns what it printed.
func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(a)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func requireBound(t *testing.T, w *fakeWindow, names ...string) {
	t.Helper()
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, n := range names {
		require.Contains(t, w.bound, n)
	}
}
