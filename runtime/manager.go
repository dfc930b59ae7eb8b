package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/petal-labs/multitool/core"
)

// Exit statuses returned by Manager.Run.
const (
	ExitSuccess  = 0
	ExitFailure  = 1
	ExitCanceled = 130
)

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Devices hands out devices. Defaults to a pool with no hardware.
	Devices *DevicePool

	// Images persists and restores executable images. Defaults to the
	// working directory.
	Images *ImageStore

	// EventHandler receives every run and stage event.
	EventHandler EventHandler

	// EventEmitterDecorator wraps the event handler, e.g. to attach trace IDs.
	EventEmitterDecorator EventEmitterDecorator

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now provides the current time (for testing). If nil, uses time.Now.
	Now func() time.Time

	// NewRunID generates run IDs (for testing). If nil, uses uuid.NewString.
	NewRunID func() string
}

// Manager runs a tool's executable work against attached devices.
type Manager struct {
	cfg ManagerConfig
}

// NewManager creates a Manager, filling in defaults.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Devices == nil {
		cfg.Devices = NewDevicePool(0)
	}
	if cfg.Images == nil {
		cfg.Images = &ImageStore{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewRunID == nil {
		cfg.NewRunID = uuid.NewString
	}
	return &Manager{cfg: cfg}
}

// Run builds (or loads) the image for builder, optionally saves it, and
// executes it unless cfg.CompileOnly is set. Devices are attached before the
// build unless cfg.DeferAttach is set, in which case they are attached right
// before execution, and never in compile-only mode. The returned value is the
// process exit status.
func (m *Manager) Run(ctx context.Context, toolName string, builder core.Builder, cfg core.RuntimeConfig) int {
	r := &run{
		m:     m,
		id:    m.cfg.NewRunID(),
		tool:  toolName,
		start: m.cfg.Now(),
		emit:  m.cfg.EventHandler,
		log:   m.cfg.Logger.With("tool", toolName),
	}
	if r.emit == nil {
		r.emit = func(Event) {}
	}
	if m.cfg.EventEmitterDecorator != nil {
		r.emit = m.cfg.EventEmitterDecorator(r.emit)
	}
	r.log = r.log.With("run_id", r.id)

	r.send(NewEvent(EventRunStarted, r.id, toolName).
		WithPayload("device_count", cfg.DeviceCount).
		WithPayload("simulated", cfg.UseSimulator).
		WithPayload("image", cfg.ImagePath))

	err := r.execute(ctx, builder, cfg)

	finished := NewEvent(EventRunFinished, r.id, toolName).WithElapsed(m.cfg.Now().Sub(r.start))
	if err != nil {
		r.send(finished.WithPayload("status", StatusFailed).WithPayload("error", err.Error()))
		if errors.Is(err, context.Canceled) {
			r.log.Warn("run canceled", "error", err)
			return ExitCanceled
		}
		r.log.Error("run failed", "error", err)
		return ExitFailure
	}
	r.send(finished.WithPayload("status", StatusCompleted))
	r.log.Debug("run completed", "elapsed", m.cfg.Now().Sub(r.start))
	return ExitSuccess
}

type run struct {
	m     *Manager
	id    string
	tool  string
	start time.Time
	seq   uint64
	emit  EventHandler
	log   *slog.Logger
}

func (r *run) send(e Event) {
	r.seq++
	e.Seq = r.seq
	e.Time = r.m.cfg.Now()
	r.emit(e)
}

// stage wraps fn with stage.started and stage.finished/stage.failed events.
func (r *run) stage(ctx context.Context, stage Stage, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := r.m.cfg.Now()
	r.send(NewEvent(EventStageStarted, r.id, r.tool).WithStage(stage))
	r.log.Debug("stage started", "stage", stage)

	err := fn(ctx)
	elapsed := r.m.cfg.Now().Sub(started)
	if err != nil {
		r.send(NewEvent(EventStageFailed, r.id, r.tool).WithStage(stage).WithElapsed(elapsed).WithPayload("error", err.Error()))
		return fmt.Errorf("%s: %w", stage, err)
	}
	r.send(NewEvent(EventStageFinished, r.id, r.tool).WithStage(stage).WithElapsed(elapsed))
	r.log.Debug("stage finished", "stage", stage, "elapsed", elapsed)
	return nil
}

func (r *run) execute(ctx context.Context, builder core.Builder, cfg core.RuntimeConfig) error {
	if builder == nil {
		return errors.New("tool returned no executable work")
	}
	target := cfg.Target()
	devices := r.m.cfg.Devices

	var device *core.Device
	attach := func() error {
		return r.stage(ctx, StageAttach, func(context.Context) error {
			d, err := devices.Acquire(cfg.DeviceCount, cfg.UseSimulator)
			if err != nil {
				return err
			}
			device = d
			r.log.Info("attached devices", "ids", d.IDs, "simulated", d.Simulated)
			return nil
		})
	}
	defer func() {
		if device != nil {
			_ = r.stage(context.WithoutCancel(ctx), StageDetach, func(context.Context) error {
				devices.Release(device)
				return nil
			})
		}
	}()

	if !cfg.DeferAttach {
		if err := attach(); err != nil {
			return err
		}
	}

	var image core.Image
	if cfg.Restore {
		err := r.stage(ctx, StageLoad, func(context.Context) error {
			img, err := r.m.cfg.Images.Load(cfg.ImagePath, r.tool, target)
			image = img
			return err
		})
		if err != nil {
			return err
		}
		r.log.Info("loaded executable", "path", r.m.cfg.Images.Path(cfg.ImagePath))
	} else {
		err := r.stage(ctx, StageBuild, func(ctx context.Context) error {
			img, err := builder.Build(ctx, target)
			if err != nil {
				return err
			}
			img.Tool = r.tool
			img.Target = target
			image = img
			return nil
		})
		if err != nil {
			return err
		}
		if cfg.Persist {
			err := r.stage(ctx, StageSave, func(context.Context) error {
				path, err := r.m.cfg.Images.Save(cfg.ImagePath, image)
				if err == nil {
					r.log.Info("saved executable", "path", path)
				}
				return err
			})
			if err != nil {
				return err
			}
		}
	}

	if cfg.CompileOnly {
		if !cfg.Persist {
			r.log.Warn("compile-only set without save-exe: the compiled image is discarded")
		}
		r.log.Info("compile-only: skipping execution")
		return nil
	}

	if device == nil {
		if err := attach(); err != nil {
			return err
		}
	}

	return r.stage(ctx, StageExecute, func(ctx context.Context) error {
		return builder.Execute(ctx, image, device)
	})
}
