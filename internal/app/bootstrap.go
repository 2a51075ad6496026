package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/themkat/shade-eval-print-loop/internal/command"
	"github.com/themkat/shade-eval-print-loop/internal/config"
	"github.com/themkat/shade-eval-print-loop/internal/driver/fake"
	"github.com/themkat/shade-eval-print-loop/internal/driver/preview"
	"github.com/themkat/shade-eval-print-loop/internal/mirror"
	"github.com/themkat/shade-eval-print-loop/internal/render"
	"github.com/themkat/shade-eval-print-loop/internal/repl"
	"github.com/themkat/shade-eval-print-loop/internal/session"
	"github.com/themkat/shade-eval-print-loop/internal/shader"
	"github.com/themkat/shade-eval-print-loop/internal/ws"
)

// Options selects collaborators. Zero values pick the real ones.
type Options struct {
	Compiler shader.Compiler
	// Headless draws into a frame counter instead of the status hub.
	Headless bool
	// NoWatch disables hot reload.
	NoWatch bool
	Log     zerolog.Logger
}

// drawer is what the render loop draws through and uploads to.
type drawer interface {
	render.Drawer
	render.Uploader
}

// Core is the whole preview process: render loop, scripting loop, REPL
// server and status hub.
type Core struct {
	Cfg        config.Config
	Hub        *ws.Hub
	Loop       *render.Loop
	Mirror     *mirror.Mirror
	Session    *session.Session
	Dispatcher *repl.Dispatcher
	Server     *repl.Server
	Watcher    *shader.Watcher
	Drv        drawer

	updates  chan command.StateUpdateCommand
	done     chan struct{}
	status   *http.Server
	statusLn net.Listener
	log      zerolog.Logger
}

// InitCore builds every component. Failures here are startup failures:
// an unreadable shader or an address that cannot be bound.
func InitCore(cfg config.Config, opts Options) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	interval, _ := cfg.FrameInterval()
	log := opts.Log
	comp := opts.Compiler
	if comp == nil {
		comp = shader.NagaCompiler{}
	}

	c := &Core{
		Cfg:     cfg,
		Hub:     ws.NewHub(log.With().Str("component", "hub").Logger()),
		Mirror:  mirror.New(cfg.Screen.Width, cfg.Screen.Height),
		updates: make(chan command.StateUpdateCommand, cfg.Queues.State),
		done:    make(chan struct{}),
		log:     log,
	}
	if opts.Headless {
		c.Drv = &fake.Driver{Log: log.With().Str("component", "fake").Logger()}
	} else {
		c.Drv = preview.New(c.Hub)
	}

	// 1) Shader
	coord, err := shader.NewCoordinator(cfg.ShaderPath, comp, c.Hub.PublishDiagnostic, log.With().Str("component", "shader").Logger())
	if err != nil {
		return nil, err
	}
	var reload <-chan struct{}
	if !opts.NoWatch {
		w, err := shader.NewWatcher(cfg.ShaderPath, log.With().Str("component", "watcher").Logger())
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.ShaderPath).Msg("file watch unavailable; hot reload disabled")
		} else {
			c.Watcher = w
			reload = w.Changes()
		}
	}

	// 2) Render loop
	cmds := make(chan command.RenderCommand, cfg.Queues.Render)
	rlog := log.With().Str("component", "render").Logger()
	c.Loop, err = render.NewLoop(render.NewStore(c.Drv, rlog), coord, c.Drv, render.LoopConfig{
		Interval:   interval,
		Continuous: cfg.IsContinuous(),
		Width:      cfg.Screen.Width,
		Height:     cfg.Screen.Height,
		Commands:   cmds,
		Updates:    c.updates,
		Reload:     reload,
	}, rlog)
	if err != nil {
		c.closeWatcher()
		return nil, err
	}
	c.Hub.SetResizer(c.Loop)

	// 3) Scripting side
	c.Session = session.New(cmds, c.Mirror, session.Options{
		EvalTimeout: cfg.EvalTimeout,
		Done:        c.done,
		Log:         log.With().Str("component", "session").Logger(),
	})
	c.Dispatcher = repl.NewDispatcher(c.Session, cfg.DynamicPeriod, log.With().Str("component", "dispatch").Logger())
	c.Server, err = repl.Listen(cfg.ReplAddr, c.Dispatcher.Events(), log.With().Str("component", "repl").Logger())
	if err != nil {
		c.closeWatcher()
		return nil, fmt.Errorf("repl listen %s: %w", cfg.ReplAddr, err)
	}

	// 4) Status server
	if cfg.StatusAddr != "-" {
		ln, err := net.Listen("tcp", cfg.StatusAddr)
		if err != nil {
			c.closeWatcher()
			c.Server.Close()
			return nil, fmt.Errorf("status listen %s: %w", cfg.StatusAddr, err)
		}
		c.statusLn = ln
		c.status = &http.Server{
			Handler:      withCORS(c.Hub.Handler()),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		}
	}
	return c, nil
}

func (c *Core) closeWatcher() {
	if c.Watcher != nil {
		c.Watcher.Close()
	}
}

// StatusAddr is the bound status address, or nil when disabled.
func (c *Core) StatusAddr() net.Addr {
	if c.statusLn == nil {
		return nil
	}
	return c.statusLn.Addr()
}

// Run blocks until ctx is done or a component fails.
func (c *Core) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-ctx.Done()
		close(c.done)
		return nil
	})
	g.Go(func() error { return c.Loop.Run(ctx) })
	g.Go(func() error { return c.Mirror.Forward(ctx, c.updates, c.log.With().Str("component", "mirror").Logger()) })
	g.Go(func() error { return c.Dispatcher.Run(ctx) })
	g.Go(func() error { return c.Server.Serve(ctx) })
	if c.Watcher != nil {
		g.Go(func() error { return c.Watcher.Run(ctx) })
	}
	if c.status != nil {
		g.Go(func() error {
			c.log.Info().Str("addr", c.statusLn.Addr().String()).Msg("status server starting")
			if err := c.status.Serve(c.statusLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			c.Hub.Close()
			return c.status.Close()
		})
	}
	return g.Wait()
}

func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(200)
			return
		}
		h.ServeHTTP(w, r)
	})
}
