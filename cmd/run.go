// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/cdpipe/internal/browser"
	"github.com/xkilldash9x/cdpipe/internal/hostfns"
)

// errWindowClosed stops the run group when the user closes the window.
var errWindowClosed = errors.New("browser window closed")

func newRunCmd(a *app) *cobra.Command {
	var (
		html       string
		noHostFns  bool
		initScript string
	)

	runCmd := &cobra.Command{
		Use:   "run [url|path]",
		Short: "Opens a page in an app window and waits for it to close",
		Long: `Opens a URL, or a local file resolved against the working directory, in a
Chromium app window. The page can call readFile, writeFile and readDir on the host.
The command returns when the window is closed or on SIGINT/SIGTERM.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}

			content := browser.URL("about:blank")
			switch {
			case html != "" && len(args) > 0:
				return errors.New("--html cannot be combined with a url")
			case html != "":
				content = browser.HTML(html)
			case len(args) == 1:
				target, err := browser.NormalizeURL(args[0])
				if err != nil {
					return err
				}
				content = browser.URL(target)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := a.launch(ctx, cfg, content, a.logger)
			if err != nil {
				return fmt.Errorf("failed to launch browser: %w", err)
			}
			defer func() {
				if err := w.Shutdown(); err != nil {
					a.logger.Warn("Browser shutdown incomplete.", zap.Error(err))
				}
			}()

			if !noHostFns {
				if err := hostfns.NewFiles(a.logger).Register(ctx, w); err != nil {
					return err
				}
			}
			if initScript != "" {
				if _, err := w.Eval(ctx, initScript); err != nil {
					return fmt.Errorf("init script failed: %w", err)
				}
			}

			a.logger.Info("Window open.", zap.String("url", content.String()))
			return waitForWindow(ctx, w, cfg.Browser().CloseTimeout, a.logger)
		},
	}

	runCmd.Flags().StringVar(&html, "html", "", "inline HTML document to show instead of a URL")
	runCmd.Flags().BoolVar(&noHostFns, "no-host-fns", false, "do not expose filesystem functions to the page")
	runCmd.Flags().StringVar(&initScript, "eval", "", "script to evaluate once the window is open")
	runCmd.Flags().Bool("headless", false, "run without a window")
	runCmd.Flags().Bool("kiosk", false, "open fullscreen without browser chrome")
	runCmd.Flags().Int("width", 0, "window width")
	runCmd.Flags().Int("height", 0, "window height")
	runCmd.Flags().String("browser", "", "path to the browser binary")

	for key, flag := range map[string]string{
		"browser.headless": "headless",
		"browser.kiosk":    "kiosk",
		"browser.width":    "width",
		"browser.height":   "height",
		"browser.path":     "browser",
	} {
		_ = a.v.BindPFlag(key, runCmd.Flags().Lookup(flag))
	}
	return runCmd
}

// waitForWindow blocks until the window goes away on its own, or until ctx ends, in
// which case the browser is asked to close and given closeTimeout to exit.
func waitForWindow(ctx context.Context, w window, closeTimeout time.Duration, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-w.Done():
			return errWindowClosed
		case <-gctx.Done():
			return nil
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		select {
		case <-w.Done():
			return nil
		default:
		}
		logger.Info("Shutting down, closing browser.")
		return w.CloseBlocking(closeTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errWindowClosed) {
		return err
	}
	return nil
}
