// Package mirror keeps a lock-guarded copy of renderer facts that the
// scripting side is allowed to read.
package mirror

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/themkat/shade-eval-print-loop/internal/command"
)

// Mirror has a single writer (the forwarder fed by the render loop) and any
// number of readers. The lock only covers copying the fields.
type Mirror struct {
	mu     sync.Mutex
	width  uint32
	height uint32
}

func New(width, height uint32) *Mirror {
	return &Mirror{width: width, height: height}
}

// ScreenSize returns the last size reported by the renderer.
func (m *Mirror) ScreenSize() (uint32, uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.width, m.height
}

// Apply folds one state update into the mirror.
func (m *Mirror) Apply(cmd command.StateUpdateCommand) {
	switch c := cmd.(type) {
	case command.ScreenSizeChanged:
		m.mu.Lock()
		m.width, m.height = c.Width, c.Height
		m.mu.Unlock()
	}
}

// Forward applies updates from the render loop until ctx is done or in is
// closed.
func (m *Mirror) Forward(ctx context.Context, in <-chan command.StateUpdateCommand, log zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-in:
			if !ok {
				return nil
			}
			m.Apply(cmd)
			log.Debug().Interface("update", cmd).Msg("state update")
		}
	}
}
