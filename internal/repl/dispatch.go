// Package repl serves the scripting session over TCP.
//
// Every connection has its own worker goroutine that only moves lines
// between the socket and the dispatcher. The dispatcher is the single loop
// that evaluates, so evaluations never overlap, and it also runs the
// dynamic uniform pass on a timer.
package repl

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Event is one of Connected, Request, Disconnected or Tick.
type Event interface {
	event()
}

// Connected registers a connection and where its replies go. Reply must
// have room for one value.
type Connected struct {
	ID    uint64
	Reply chan<- string
}

// Request asks for one line to be evaluated.
type Request struct {
	ID   uint64
	Line string
}

type Disconnected struct {
	ID uint64
}

// Tick runs one dynamic uniform pass.
type Tick struct{}

func (Connected) event()    {}
func (Request) event()      {}
func (Disconnected) event() {}
func (Tick) event()         {}

// Evaluator is the scripting session as seen by the dispatcher.
type Evaluator interface {
	Eval(src string) string
	RunDynamicPass() error
}

type Dispatcher struct {
	ev     Evaluator
	period time.Duration
	events chan Event
	conns  map[uint64]chan<- string
	log    zerolog.Logger
}

// NewDispatcher returns a dispatcher that runs a dynamic pass every period.
// A period of zero disables the timer.
func NewDispatcher(ev Evaluator, period time.Duration, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		ev:     ev,
		period: period,
		events: make(chan Event),
		conns:  map[uint64]chan<- string{},
		log:    log,
	}
}

// Events is where connection workers send their events.
func (d *Dispatcher) Events() chan<- Event { return d.events }

// Connections is the number of registered connections. Only meaningful
// from the dispatcher goroutine or after Run returned.
func (d *Dispatcher) Connections() int { return len(d.conns) }

// Run handles events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if d.period > 0 {
		t := time.NewTicker(d.period)
		defer t.Stop()
		tick = t.C
	}
	d.log.Info().Dur("dynamic_period", d.period).Msg("dispatcher started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-d.events:
			d.Handle(e)
		case <-tick:
			d.Handle(Tick{})
		}
	}
}

// Handle processes one event.
func (d *Dispatcher) Handle(e Event) {
	switch e := e.(type) {
	case Connected:
		d.conns[e.ID] = e.Reply
		d.log.Debug().Uint64("conn", e.ID).Int("open", len(d.conns)).Msg("connected")
	case Disconnected:
		delete(d.conns, e.ID)
		d.log.Debug().Uint64("conn", e.ID).Int("open", len(d.conns)).Msg("disconnected")
	case Request:
		reply, ok := d.conns[e.ID]
		if !ok {
			d.log.Warn().Uint64("conn", e.ID).Msg("request from unknown connection")
			return
		}
		out := d.ev.Eval(e.Line)
		select {
		case reply <- out:
		default:
			d.log.Warn().Uint64("conn", e.ID).Msg("reply dropped, connection not waiting")
		}
	case Tick:
		if err := d.ev.RunDynamicPass(); err != nil {
			d.log.Warn().Err(err).Msg("dynamic uniform pass")
		}
	}
}
