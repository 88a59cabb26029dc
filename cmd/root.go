// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cdpipe/internal/browser"
	"github.com/xkilldash9x/cdpipe/internal/config"
	"github.com/xkilldash9x/cdpipe/internal/observability"
	"github.com/xkilldash9x/cdpipe/pkg/devtools"
)

type contextKey string

const configKey contextKey = "config"

// window is the part of *browser.Browser the commands drive.
type window interface {
	Eval(ctx context.Context, js string) (devtools.Value, error)
	Bind(ctx context.Context, name string, fn devtools.HostFunc) error
	Done() <-chan struct{}
	CloseBlocking(timeout time.Duration) error
	Shutdown() error
}

type launchFunc func(ctx context.Context, cfg config.Interface, content browser.Content, logger *zap.Logger) (window, error)

func launchBrowser(ctx context.Context, cfg config.Interface, content browser.Content, logger *zap.Logger) (window, error) {
	b, err := browser.Launch(ctx, cfg, content, logger)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// app carries what the commands share. Tests swap launch and newLogger.
type app struct {
	v         *viper.Viper
	cfgFile   string
	launch    launchFunc
	newLogger func(config.LoggerConfig) *zap.Logger
	logger    *zap.Logger
}

func newApp() *app {
	return &app{
		v:      viper.New(),
		launch: launchBrowser,
		newLogger: func(cfg config.LoggerConfig) *zap.Logger {
			observability.InitializeLogger(cfg)
			return observability.GetLogger()
		},
	}
}

// newRootCmd builds the command tree around a.
func newRootCmd(a *app) *cobra.Command {
	config.SetDefaults(a.v)

	rootCmd := &cobra.Command{
		Use:           "cdpipe",
		Short:         "cdpipe drives a Chromium window over the DevTools debugging pipe.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.initializeConfig(); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			cfg, err := config.NewConfigFromViper(a.v)
			if err != nil {
				return fmt.Errorf("failed to load or validate config: %w", err)
			}

			a.logger = a.newLogger(cfg.Logger())
			a.logger.Debug("Starting cdpipe", zap.String("version", Version))

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			cmd.SetContext(context.WithValue(ctx, configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&a.cfgFile, "config", "c", "", "config file (default is ./cdpipe.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newRunCmd(a), newEvalCmd(a), newVersionCmd())
	return rootCmd
}

// initializeConfig reads the config file, if any, and environment overrides.
func (a *app) initializeConfig() error {
	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
	} else {
		a.v.AddConfigPath(".")
		a.v.SetConfigName("cdpipe")
		a.v.SetConfigType("yaml")
	}

	a.v.SetEnvPrefix("CDPIPE")
	a.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	a.v.AutomaticEnv()

	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// configFrom returns the config stored by the root command's pre-run.
func configFrom(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, errors.New("configuration not loaded")
	}
	return cfg, nil
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd(newApp()).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		observability.Sync()
		os.Exit(1)
	}
	observability.Sync()
}
