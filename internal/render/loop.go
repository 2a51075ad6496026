package render

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/themkat/shade-eval-print-loop/internal/command"
	"github.com/themkat/shade-eval-print-loop/internal/shader"
)

type size struct{ w, h uint32 }

// LoopConfig wires a Loop to its channels.
type LoopConfig struct {
	Interval   time.Duration
	Continuous bool
	Width      uint32
	Height     uint32

	Commands <-chan command.RenderCommand
	Updates  chan<- command.StateUpdateCommand
	// Reload signals that the shader file changed. May be nil.
	Reload <-chan struct{}
}

// Loop is the render side: it applies commands, reloads the shader and
// draws. Everything it owns is touched only from the goroutine running it.
type Loop struct {
	Store  *Store
	Shader *shader.Coordinator
	Drv    Drawer

	cfg         LoopConfig
	resize      chan size
	width       uint32
	height      uint32
	sizePending bool
	frameID     uint64
	t0          time.Time
	log         zerolog.Logger

	// metrics (last durations in ms)
	Last struct {
		FrameID uint64
		DrawMS  float64
		TotalMS float64
	}
}

func NewLoop(store *Store, coord *shader.Coordinator, drv Drawer, cfg LoopConfig, log zerolog.Logger) (*Loop, error) {
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, errors.New("invalid dimensions")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("invalid frame interval")
	}
	return &Loop{
		Store:       store,
		Shader:      coord,
		Drv:         drv,
		cfg:         cfg,
		resize:      make(chan size, 1),
		width:       cfg.Width,
		height:      cfg.Height,
		sizePending: true,
		t0:          time.Now(),
		log:         log,
	}, nil
}

// Resize requests a new screen size. It may be called from any goroutine;
// the latest request wins and is applied on the next tick.
func (l *Loop) Resize(w, h uint32) {
	for {
		select {
		case l.resize <- size{w, h}:
			return
		default:
			select {
			case <-l.resize:
			default:
			}
		}
	}
}

// Now returns seconds since the loop was created.
func (l *Loop) Now() float32 { return float32(time.Since(l.t0).Seconds()) }

// Tick runs one iteration: resize, apply at most one command, reload if
// signalled, then draw if anything changed or the loop is continuous.
func (l *Loop) Tick() error {
	start := time.Now()

	select {
	case s := <-l.resize:
		if s.w != 0 && s.h != 0 && (s.w != l.width || s.h != l.height) {
			l.width, l.height = s.w, s.h
			l.sizePending = true
			l.Store.RequestRedraw()
		}
	default:
	}
	if l.sizePending {
		l.emitSize()
	}

	l.Store.DrainOne(l.cfg.Commands)

	if l.cfg.Reload != nil {
		select {
		case <-l.cfg.Reload:
			l.Shader.Reload()
			// a failed reload still changes the overlay text
			l.Store.RequestRedraw()
		default:
		}
	}

	if !l.cfg.Continuous && !l.Store.NeedsRedraw() {
		return nil
	}
	l.Store.ClearRedraw()

	l.frameID++
	f := Frame{
		ID:       l.frameID,
		Program:  l.Shader.Program(),
		Uniforms: l.Store.Snapshot(),
		Elapsed:  l.Now(),
		Width:    l.width,
		Height:   l.height,
	}
	if d, ok := l.Shader.Diagnostic(); ok {
		f.Diagnostic = d.Text()
	}

	drawStart := time.Now()
	var err error
	if l.Drv != nil {
		err = l.Drv.Draw(f)
	}
	l.Last.FrameID = f.ID
	l.Last.DrawMS = float64(time.Since(drawStart).Microseconds()) / 1000.0
	l.Last.TotalMS = float64(time.Since(start).Microseconds()) / 1000.0
	return err
}

func (l *Loop) emitSize() {
	select {
	case l.cfg.Updates <- command.ScreenSizeChanged{Width: l.width, Height: l.height}:
		l.sizePending = false
	default:
		// retried on the next tick
	}
}

// Run ticks at the configured interval until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	tick := time.NewTicker(l.cfg.Interval)
	defer tick.Stop()
	defer l.Store.Close()
	l.log.Info().Dur("interval", l.cfg.Interval).Uint32("width", l.width).Uint32("height", l.height).Msg("render loop started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if err := l.Tick(); err != nil {
				l.log.Warn().Err(err).Uint64("frame", l.frameID).Msg("draw failed")
			}
		}
	}
}
