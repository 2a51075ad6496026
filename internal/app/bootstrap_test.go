package app

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themkat/shade-eval-print-loop/internal/command"
	"github.com/themkat/shade-eval-print-loop/internal/config"
	"github.com/themkat/shade-eval-print-loop/internal/driver/fake"
	"github.com/themkat/shade-eval-print-loop/internal/shader"
)

type stubCompiler struct{}

func (stubCompiler) Compile(vertex, fragment string) (*shader.Program, error) {
	if strings.Contains(fragment, "bad") {
		return nil, fmt.Errorf("fragment: bad token")
	}
	return &shader.Program{}, nil
}

func testConfig(t *testing.T, src string) config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shader.wgsl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	cfg := config.Default()
	cfg.ShaderPath = path
	cfg.ReplAddr = "127.0.0.1:0"
	cfg.StatusAddr = "127.0.0.1:0"
	cfg.RefreshRate = "500Hz"
	cfg.DynamicPeriod = 10 * time.Millisecond
	return cfg
}

func startCore(t *testing.T, cfg config.Config) (*Core, *fake.Driver) {
	t.Helper()
	c, err := InitCore(cfg, Options{Compiler: stubCompiler{}, Headless: true, Log: zerolog.Nop()})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return c, c.Drv.(*fake.Driver)
}

func replExchange(t *testing.T, conn net.Conn, r *bufio.Reader, line string) string {
	t.Helper()
	_, err := fmt.Fprintf(conn, "%s\n", line)
	require.NoError(t, err)
	var sb strings.Builder
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for !strings.HasSuffix(sb.String(), "> ") {
		b, err := r.ReadByte()
		require.NoError(t, err)
		sb.WriteByte(b)
	}
	return strings.TrimSuffix(sb.String(), "> ")
}

func TestEndToEnd(t *testing.T) {
	c, drv := startCore(t, testConfig(t, "fn fs_main() {}"))

	conn, err := net.Dial("tcp", c.Server.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)
	prompt := make([]byte, 2)
	_, err = io.ReadFull(r, prompt)
	require.NoError(t, err)
	require.Equal(t, "> ", string(prompt))

	assert.Equal(t, "#<void>\n", replExchange(t, conn, r, `(set-uniform! "x" 3.14)`))
	require.Eventually(t, func() bool {
		for _, u := range drv.Last().Uniforms {
			if u.Name == "x" && u.Value == command.Float(3.14) {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	// size reported by the render loop reaches the script side
	assert.Equal(t, "(1280 720)\n", replExchange(t, conn, r, "(screen-size)"))
	c.Loop.Resize(250, 820)
	require.Eventually(t, func() bool {
		w, h := c.Mirror.ScreenSize()
		return w == 250 && h == 820
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "(250 820)\n", replExchange(t, conn, r, "(screen-size)"))

	// dynamic uniforms flow without further requests
	replExchange(t, conn, r, `(set-dynamic-uniform! "t" (lambda () 9))`)
	require.Eventually(t, func() bool {
		for _, u := range drv.Last().Uniforms {
			if u.Name == "t" {
				return true
			}
		}
		return false
	}, 5*time.Second, 5*time.Millisecond)

	resp, err := http.Get("http://" + c.StatusAddr().String() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Contains(t, health, "uptime_s")
}

func TestStartsWithPlaceholder(t *testing.T) {
	_, drv := startCore(t, testConfig(t, "bad"))
	require.Eventually(t, func() bool { return drv.Count() > 0 }, 5*time.Second, 5*time.Millisecond)
	f := drv.Last()
	assert.True(t, f.Program.Placeholder)
	assert.Contains(t, f.Diagnostic, "SHADER.COMPILE")
}

func TestHotReload(t *testing.T) {
	cfg := testConfig(t, "bad")
	_, drv := startCore(t, cfg)
	require.Eventually(t, func() bool { return drv.Count() > 0 }, 5*time.Second, 5*time.Millisecond)

	require.NoError(t, os.WriteFile(cfg.ShaderPath, []byte("good"), 0o644))
	require.Eventually(t, func() bool {
		f := drv.Last()
		return f.Program != nil && !f.Program.Placeholder && f.Diagnostic == ""
	}, 5*time.Second, 5*time.Millisecond)
}

func TestUnreadableShaderIsFatal(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.ShaderPath = filepath.Join(t.TempDir(), "missing.wgsl")
	_, err := InitCore(cfg, Options{Compiler: stubCompiler{}, Headless: true, Log: zerolog.Nop()})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestReplAddrInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	cfg := testConfig(t, "ok")
	cfg.ReplAddr = ln.Addr().String()
	_, err = InitCore(cfg, Options{Compiler: stubCompiler{}, Headless: true, NoWatch: true, Log: zerolog.Nop()})
	assert.Error(t, err)
}
