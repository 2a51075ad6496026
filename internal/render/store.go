package render

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/themkat/shade-eval-print-loop/internal/command"
)

// Store holds the uniforms the render loop draws with. It is owned by the
// render loop and has no lock.
type Store struct {
	values   map[string]command.UniformValue
	textures map[string]TextureHandle
	up       Uploader
	redraw   bool
	log      zerolog.Logger
}

func NewStore(up Uploader, log zerolog.Logger) *Store {
	return &Store{
		values:   map[string]command.UniformValue{},
		textures: map[string]TextureHandle{},
		up:       up,
		log:      log,
	}
}

// Apply stores the command's value and marks the store for redraw.
// Textures are uploaded here, once, and the handle reused by every
// following frame. The value is kept even if the upload fails.
func (s *Store) Apply(cmd command.RenderCommand) {
	switch c := cmd.(type) {
	case command.SetUniform:
		if old, ok := s.textures[c.Name]; ok {
			s.up.Release(old)
			delete(s.textures, c.Name)
		}
		if tex, ok := c.Value.(command.Texture); ok && s.up != nil && tex.Image != nil {
			h, err := s.up.Upload(c.Name, tex.Image)
			if err != nil {
				s.log.Warn().Err(err).Str("uniform", c.Name).Msg("texture upload failed")
			} else {
				s.textures[c.Name] = h
			}
		}
		s.values[c.Name] = c.Value
		s.redraw = true
	}
}

// DrainOne applies at most one pending command from in. It never blocks.
func (s *Store) DrainOne(in <-chan command.RenderCommand) bool {
	select {
	case cmd, ok := <-in:
		if !ok {
			return false
		}
		s.Apply(cmd)
		return true
	default:
		return false
	}
}

// Snapshot returns the uniforms sorted by name.
func (s *Store) Snapshot() []Uniform {
	out := make([]Uniform, 0, len(s.values))
	for name, v := range s.values {
		out = append(out, Uniform{Name: name, Value: v, Texture: s.textures[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a single uniform value.
func (s *Store) Get(name string) (command.UniformValue, bool) {
	v, ok := s.values[name]
	return v, ok
}

func (s *Store) Len() int { return len(s.values) }

func (s *Store) NeedsRedraw() bool { return s.redraw }
func (s *Store) RequestRedraw()    { s.redraw = true }
func (s *Store) ClearRedraw()      { s.redraw = false }

// Close releases every uploaded texture.
func (s *Store) Close() {
	for name, h := range s.textures {
		s.up.Release(h)
		delete(s.textures, name)
	}
}
