package preview

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/themkat/shade-eval-print-loop/internal/command"
	"github.com/themkat/shade-eval-print-loop/internal/render"
	"github.com/themkat/shade-eval-print-loop/internal/ws"
)

// Publisher receives frame snapshots.
type Publisher interface {
	PublishFrame(s ws.Snapshot)
}

// Driver is a headless drawer: it turns frames into snapshots for the
// status hub and keeps uploaded textures in memory.
type Driver struct {
	pub      Publisher
	throttle time.Duration
	lastEmit time.Time
	mu       sync.Mutex

	next     render.TextureHandle
	textures map[render.TextureHandle]*image.RGBA
}

func New(pub Publisher) *Driver {
	return &Driver{
		pub:      pub,
		throttle: 50 * time.Millisecond, // ~20 FPS to status clients
		textures: map[render.TextureHandle]*image.RGBA{},
	}
}

func (d *Driver) Draw(f render.Frame) error {
	d.mu.Lock()
	now := time.Now()
	if d.lastEmit.Add(d.throttle).After(now) {
		d.mu.Unlock()
		return nil // throttle status updates
	}
	d.lastEmit = now
	d.mu.Unlock()

	s := ws.Snapshot{
		T:          now.UnixNano(),
		FrameID:    f.ID,
		Diagnostic: f.Diagnostic,
		Width:      f.Width,
		Height:     f.Height,
		Elapsed:    f.Elapsed,
		Uniforms:   make([]ws.Uniform, 0, len(f.Uniforms)),
	}
	if f.Program != nil {
		s.Program = f.Program.ID
		s.Placeholder = f.Program.Placeholder
	}
	for _, u := range f.Uniforms {
		s.Uniforms = append(s.Uniforms, snapshotUniform(u))
	}
	d.pub.PublishFrame(s)
	return nil
}

func snapshotUniform(u render.Uniform) ws.Uniform {
	out := ws.Uniform{Name: u.Name, Texture: uint64(u.Texture)}
	switch v := u.Value.(type) {
	case command.Float:
		out.Kind, out.Value = "float", float32(v)
	case command.Vector3:
		out.Kind, out.Value = "vec3", [3]float32(v)
	case command.Matrix:
		out.Kind, out.Value = "mat4", [4][4]float32{v.Row(0), v.Row(1), v.Row(2), v.Row(3)}
	case command.Texture:
		out.Kind = "texture"
		if v.Image != nil {
			b := v.Image.Bounds()
			out.Value = [2]int{b.Dx(), b.Dy()}
		}
	default:
		out.Kind = fmt.Sprintf("%T", v)
	}
	return out
}

func (d *Driver) Upload(name string, img *image.RGBA) (render.TextureHandle, error) {
	if img.Bounds().Empty() {
		return 0, fmt.Errorf("texture %q is empty", name)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	d.textures[d.next] = img
	return d.next, nil
}

func (d *Driver) Release(h render.TextureHandle) {
	d.mu.Lock()
	delete(d.textures, h)
	d.mu.Unlock()
}

// Textures is the number of live textures.
func (d *Driver) Textures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.textures)
}
