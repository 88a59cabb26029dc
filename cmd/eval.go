// File: cmd/eval.go
package cmd

import (
	"context"
	"errors"
	"fmt"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cdpipe/internal/browser"
	"github.com/xkilldash9x/cdpipe/pkg/devtools"
)

func newEvalCmd(a *app) *cobra.Command {
	var (
		pageURL string
		compact bool
	)

	evalCmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluates a JavaScript expression in a headless page and prints the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd.Context())
			if err != nil {
				return err
			}
			cfg.SetBrowserHeadless(true)
			cfg.SetBrowserKiosk(false)

			target, err := browser.NormalizeURL(pageURL)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Session().CallTimeout)
			defer cancel()

			w, err := a.launch(ctx, cfg, browser.URL(target), a.logger)
			if err != nil {
				return fmt.Errorf("failed to launch browser: %w", err)
			}
			defer func() {
				if err := w.Shutdown(); err != nil {
					a.logger.Warn("Browser shutdown incomplete.", zap.Error(err))
				}
			}()

			result, err := w.Eval(ctx, args[0])
			if err != nil {
				var jsErr *devtools.JSError
				if errors.As(err, &jsErr) {
					return fmt.Errorf("evaluation threw: %s", formatValue(jsErr.Value, true))
				}
				return fmt.Errorf("evaluation failed: %w", err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), formatValue(result, compact))
			return err
		},
	}

	evalCmd.Flags().StringVar(&pageURL, "url", "about:blank", "page to load before evaluating")
	evalCmd.Flags().BoolVar(&compact, "compact", false, "print the result on one line")
	return evalCmd
}

// json sorts object keys so printed results are stable.
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// formatValue re-encodes a protocol value for the terminal. Values that do not
// parse are printed as received.
func formatValue(v devtools.Value, compact bool) string {
	var decoded any
	if err := json.Unmarshal(v, &decoded); err != nil {
		return string(v)
	}
	var (
		out []byte
		err error
	)
	if compact {
		out, err = json.Marshal(decoded)
	} else {
		out, err = json.MarshalIndent(decoded, "", "  ")
	}
	if err != nil {
		return string(v)
	}
	return string(out)
}
