package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/trustm-go/internal/cli/config"
	"github.com/yndnr/trustm-go/internal/cli/output"
	"github.com/yndnr/trustm-go/internal/core/domain"
	"github.com/yndnr/trustm-go/internal/element"
	"github.com/yndnr/trustm-go/internal/element/emulator"
	"github.com/yndnr/trustm-go/internal/element/pkcs11dev"
	"github.com/yndnr/trustm-go/internal/infra/shutdown"
	"github.com/yndnr/trustm-go/internal/telemetry/logger"
	"github.com/yndnr/trustm-go/internal/telemetry/metric"
)

// shutdownTimeout bounds session close and metrics export.
const shutdownTimeout = 5 * time.Second

// runtime holds what one command invocation needs.
type runtime struct {
	cfg     *config.CLIConfig
	logger  *slog.Logger
	metrics *metric.Registry
	out     io.Writer
	format  output.Format
	text    bool

	ctx      context.Context
	shutdown *shutdown.Handler
}

// newRuntime loads configuration and builds the logger and metrics. The
// caller must call close.
func newRuntime(c *cli.Context) (*runtime, error) {
	format, err := output.ParseFormat(c.String("format"))
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithCause(err)
	}
	cfg, err := config.Load(c.String("config"), overrides(c))
	if err != nil {
		return nil, domain.ErrInvalidArgument.WithDetails("configuration").WithCause(err)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: c.App.ErrWriter,
	})
	h, ctx := shutdown.NewHandler(logger.WithLogger(c.Context, log), shutdownTimeout)

	rt := &runtime{
		cfg:      cfg,
		logger:   log,
		metrics:  metric.NewRegistry(),
		out:      c.App.Writer,
		format:   format,
		text:     format == output.FormatText && !cfg.Quiet,
		ctx:      ctx,
		shutdown: h,
	}
	if cfg.MetricsFile != "" {
		h.OnShutdown(func(context.Context) error {
			if err := rt.metrics.WriteTextfile(cfg.MetricsFile); err != nil {
				rt.logger.Error("metrics export failed", "path", cfg.MetricsFile, "error", err)
				return err
			}
			return nil
		})
	}
	return rt, nil
}

// close runs the shutdown hooks. Hook failures are logged, not returned.
func (rt *runtime) close() {
	_ = rt.shutdown.Shutdown()
}

// newDevice builds the configured element driver.
func newDevice(cfg *config.CLIConfig, log *slog.Logger) (element.Device, error) {
	switch cfg.Backend {
	case config.BackendEmulator:
		return emulator.New(emulator.Config{
			Dir:     cfg.Emulator.Dir,
			Secret:  []byte(cfg.Emulator.Secret),
			Latency: cfg.Emulator.Latency,
			Logger:  log,
		}), nil
	case config.BackendPKCS11:
		return pkcs11dev.New(pkcs11dev.Config{
			ModulePath: cfg.PKCS11.ModulePath,
			TokenLabel: cfg.PKCS11.TokenLabel,
			Pin:        cfg.PKCS11.Pin,
			Logger:     log,
		}), nil
	default:
		return nil, domain.ErrInvalidArgument.WithDetails("backend %q", cfg.Backend)
	}
}

// openSession opens a session on the configured element and registers its
// close as a shutdown hook.
func (rt *runtime) openSession() (*element.Session, error) {
	dev, err := newDevice(rt.cfg, rt.logger)
	if err != nil {
		return nil, err
	}

	opts := []element.Option{
		element.WithLogger(rt.logger),
		element.WithMetrics(rt.metrics),
		element.WithAwaitTimeout(rt.cfg.Timeout),
	}
	if rt.cfg.Rate.PerSecond > 0 {
		opts = append(opts, element.WithRateLimit(rt.cfg.Rate.PerSecond, rt.cfg.Rate.Burst))
	}

	s, err := element.Open(rt.ctx, dev, opts...)
	if err != nil {
		return nil, err
	}
	rt.shutdown.OnShutdown(func(context.Context) error {
		return s.Close()
	})
	return s, nil
}

// emit writes a result in the selected format. Text results are skipped in
// quiet mode.
func (rt *runtime) emit(v any) error {
	if rt.format == output.FormatText && rt.cfg.Quiet {
		return nil
	}
	return rt.emitAs(rt.format, v)
}

// emitAs writes v in format regardless of the selected one.
func (rt *runtime) emitAs(format output.Format, v any) error {
	if err := output.NewFormatter(format).Format(rt.out, v); err != nil {
		return domain.ErrWriteFailed.WithDetails("stdout").WithCause(err)
	}
	return nil
}

// printf writes progress text in text mode only.
func (rt *runtime) printf(format string, args ...any) {
	if rt.text {
		fmt.Fprintf(rt.out, format, args...)
	}
}

// field writes an aligned progress field in text mode only.
func (rt *runtime) field(label, value string) {
	if rt.text {
		output.Field(rt.out, label, value)
	}
}
