package main

import (
	"context"
	"fmt"
	"io"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	babble "github.com/babblebot-server/server-sub000"
	"github.com/babblebot-server/server-sub000/internal/audit"
	"github.com/babblebot-server/server-sub000/internal/config"
	"github.com/babblebot-server/server-sub000/internal/logger"
	"github.com/babblebot-server/server-sub000/internal/models"
	"github.com/babblebot-server/server-sub000/internal/tracer"
)

// app holds what every command needs.
type app struct {
	cfg    *config.Config
	log    logger.Logger
	db     *babble.DB
	tp     *sdktrace.TracerProvider
	out    io.Writer
	closer func() error

	ignores       *models.Ignores
	announcements *models.Announcements
	plugins       *models.Plugins
}

func newApp(ctx context.Context, path string, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, out: stdout}
	if a.log, a.closer, err = logger.New(cfg.Logging.Backend, cfg.Logging.Level, cfg.Logging.Format, stderr); err != nil {
		return nil, err
	}

	opts := []babble.Option{babble.WithLogger(a.log)}
	level, err := audit.ParseLevel(cfg.Logging.Audit)
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	if level != audit.None {
		opts = append(opts, babble.WithQueryHook(audit.New(a.log, level).Hook()))
	}
	if cfg.Tracing.Enabled {
		a.tp = sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(&spanLogger{log: a.log}))
		opts = append(opts, babble.WithTracer(tracer.NewOtelTracer(a.tp.Tracer(cfg.Tracing.ServiceName))))
	}

	if a.db, err = babble.Open(ctx, cfg.Database, opts...); err != nil {
		a.close(ctx)
		return nil, err
	}
	if err := models.CreateTables(ctx, a.db); err != nil {
		a.close(ctx)
		return nil, err
	}

	a.ignores = models.NewIgnores(a.db)
	a.announcements = models.NewAnnouncements(a.db)
	a.plugins = models.NewPlugins(a.db)
	return a, nil
}

func (a *app) close(ctx context.Context) {
	if a.db != nil {
		_ = a.db.Close()
	}
	if a.tp != nil {
		_ = a.tp.Shutdown(ctx)
	}
	if a.closer != nil {
		_ = a.closer()
	}
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// spanLogger reports finished spans through the logger.
type spanLogger struct {
	log logger.Logger
}

var _ sdktrace.SpanProcessor = (*spanLogger)(nil)

func (p *spanLogger) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

func (p *spanLogger) OnEnd(s sdktrace.ReadOnlySpan) {
	p.log.Debug("span finished",
		"name", s.Name(),
		"trace_id", s.SpanContext().TraceID().String(),
		"duration", s.EndTime().Sub(s.StartTime()).Round(time.Microsecond),
		"status", s.Status().Code.String())
}

func (p *spanLogger) Shutdown(context.Context) error   { return nil }
func (p *spanLogger) ForceFlush(context.Context) error { return nil }
