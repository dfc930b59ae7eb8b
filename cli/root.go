package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	otelapi "go.opentelemetry.io/otel"

	"github.com/petal-labs/multitool/journal"
	mtotel "github.com/petal-labs/multitool/otel"
	"github.com/petal-labs/multitool/registry"
	"github.com/petal-labs/multitool/runtime"
)

const instrumentationName = "github.com/petal-labs/multitool"

// NewRootCmd creates the multitool root command. Flag parsing is left to the
// dispatcher because the option schema depends on the selected tool.
func NewRootCmd(reg *registry.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multitool tool-name [options]",
		Short: "Run one of the registered device tools",
		Long: "multitool selects a registered tool by name, merges the general options with the tool's " +
			"own, and runs the tool on simulated or hardware devices.",
		Args:               cobra.ArbitraryArgs,
		DisableFlagParsing: true,
		// SilenceUsage prevents printing usage on every error
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoot(cmd, reg, args)
		},
	}
	cmd.CompletionOptions.DisableDefaultCmd = true
	return cmd
}

func runRoot(cmd *cobra.Command, reg *registry.Registry, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	stderr := cmd.ErrOrStderr()

	settings, err := loadRootSettings()
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError(exitValidation, "%v", err)
	}
	logger := NewLogger(stderr, resolveLogLevel(settings))

	shutdown, err := mtotel.Setup(ctx)
	if err != nil {
		logger.Warn("telemetry disabled", "error", err)
	} else {
		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	handlers, closeJournal, err := buildEventHandlers(settings, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError(exitRuntime, "%v", err)
	}
	defer closeJournal()

	tracing := mtotel.NewTracingHandler(otelapi.GetTracerProvider().Tracer(instrumentationName))
	manager := runtime.NewManager(runtime.ManagerConfig{
		Devices:               runtime.NewDevicePool(settings.Devices),
		Images:                &runtime.ImageStore{Dir: settings.ImageDir},
		EventHandler:          runtime.MultiEventHandler(handlers...),
		EventEmitterDecorator: mtotel.EnrichEmitter(tracing),
		Logger:                logger,
	})

	d := &Dispatcher{
		Registry: reg,
		Backend:  manager,
		Settings: settings,
		Program:  cmd.Root().Name(),
		Stdout:   cmd.OutOrStdout(),
		Stderr:   stderr,
		Logger:   logger,
	}
	_, err = d.Dispatch(ctx, args)
	if err != nil && !alreadyReported(err) {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return err
}

// loadRootSettings discovers and loads the settings file. Without one the
// zero Settings apply.
func loadRootSettings() (*Settings, error) {
	path, found, err := DiscoverSettingsPath()
	if err != nil {
		return nil, err
	}
	if !found {
		return &Settings{}, nil
	}
	return LoadSettings(path)
}

// resolveLogLevel applies the settings level, then $MULTITOOL_LOG_LEVEL.
func resolveLogLevel(settings *Settings) slog.Level {
	level := slog.LevelInfo
	if lvl, ok := ParseLogLevel(settings.LogLevel); ok {
		level = lvl
	}
	if lvl, ok := ParseLogLevel(os.Getenv(EnvLogLevel)); ok {
		level = lvl
	}
	return level
}

// buildEventHandlers returns the metrics handler and, when a journal path is
// configured, the journal subscriber. The returned close func is never nil.
// Tracing is not in the list: EnrichEmitter drives it.
func buildEventHandlers(settings *Settings, logger *slog.Logger) ([]runtime.EventHandler, func(), error) {
	var handlers []runtime.EventHandler
	closeFn := func() {}

	metrics, err := mtotel.NewMetricsHandler(otelapi.GetMeterProvider().Meter(instrumentationName))
	if err != nil {
		logger.Warn("metrics disabled", "error", err)
	} else {
		handlers = append(handlers, metrics.Handle)
	}

	if settings.Journal != "" {
		store, err := journal.NewSQLiteStore(journal.SQLiteStoreConfig{
			DSN:           settings.Journal,
			RetentionRuns: settings.JournalRetention,
		})
		if err != nil {
			return nil, closeFn, fmt.Errorf("opening run journal: %w", err)
		}
		handlers = append(handlers, journal.NewSubscriber(store, logger).Handle)
		closeFn = func() {
			if err := store.Close(); err != nil {
				logger.Warn("closing run journal", "error", err)
			}
		}
	}
	return handlers, closeFn, nil
}

// alreadyReported reports errors the dispatcher or backend has already
// written to the user.
func alreadyReported(err error) bool {
	var (
		usageErr   *UsageError
		unknownErr *UnknownToolError
		exitErr    *ExitError
	)
	return errors.As(err, &usageErr) || errors.As(err, &unknownErr) || errors.As(err, &exitErr)
}

// Execute runs the root command with args and returns the process exit status.
func Execute(ctx context.Context, reg *registry.Registry, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	root := NewRootCmd(reg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return ExitCode(root.ExecuteContext(ctx))
}
