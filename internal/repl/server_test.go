package repl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/themkat/shade-eval-print-loop/internal/command"
	"github.com/themkat/shade-eval-print-loop/internal/mirror"
	"github.com/themkat/shade-eval-print-loop/internal/session"
)

type harness struct {
	addr   string
	out    chan command.RenderCommand
	mirror *mirror.Mirror
	cancel context.CancelFunc
	done   chan struct{}
}

func start(t *testing.T, period time.Duration) *harness {
	t.Helper()
	return startWith(t, period, DefaultMaxLine)
}

func startWith(t *testing.T, period time.Duration, maxLine int) *harness {
	t.Helper()
	h := &harness{
		out:    make(chan command.RenderCommand, 1024),
		mirror: mirror.New(1280, 720),
		done:   make(chan struct{}),
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	sess := session.New(h.out, h.mirror, session.Options{Done: ctx.Done(), Log: zerolog.Nop()})
	d := NewDispatcher(sess, period, zerolog.Nop())
	srv, err := Listen("127.0.0.1:0", d.Events(), zerolog.Nop())
	require.NoError(t, err)
	srv.MaxLine = maxLine
	h.addr = srv.Addr().String()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); d.Run(ctx) }()
	go func() { defer wg.Done(); srv.Serve(ctx) }()
	go func() { wg.Wait(); close(h.done) }()
	t.Cleanup(h.stop)
	return h
}

func (h *harness) stop() {
	h.cancel()
	<-h.done
}

type client struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

func connect(t *testing.T, addr string) *client {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	c := &client{t: t, conn: conn, r: bufio.NewReader(conn)}
	require.Equal(t, "", c.untilPrompt())
	return c
}

// untilPrompt returns everything read before the next prompt.
func (c *client) untilPrompt() string {
	c.t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var sb strings.Builder
	for !strings.HasSuffix(sb.String(), Prompt) {
		b, err := c.r.ReadByte()
		require.NoError(c.t, err, "read so far: %q", sb.String())
		sb.WriteByte(b)
	}
	return strings.TrimSuffix(sb.String(), Prompt)
}

func (c *client) eval(line string) string {
	c.t.Helper()
	_, err := fmt.Fprintf(c.conn, "%s\n", line)
	require.NoError(c.t, err)
	return c.untilPrompt()
}

func TestProtocol(t *testing.T) {
	h := start(t, 0)
	c := connect(t, h.addr)

	assert.Equal(t, "3\n", c.eval("(+ 1 2)"))
	assert.Equal(t, "", c.eval(""))
	assert.Equal(t, "ERROR: Evaluation failed: unbound variable: nope\n", c.eval("nope"))
	assert.Equal(t, "#<void>\n", c.eval(`(set-uniform! "x" 3.14)`))
	assert.Equal(t, command.SetUniform{Name: "x", Value: command.Float(3.14)}, <-h.out)
	assert.Equal(t, "1\n", c.eval("1\r"))
}

func TestOverlongLineIsRejected(t *testing.T) {
	h := startWith(t, 0, 64)
	c := connect(t, h.addr)

	assert.Equal(t, "ERROR: Evaluation failed: input line longer than 64 bytes\n", c.eval("(+ "+strings.Repeat("1 ", 100)+")"))
	assert.Equal(t, "3\n", c.eval("(+ 1 2)"))
}

func TestDeeplyNestedLineDoesNotKillServer(t *testing.T) {
	h := start(t, 0)
	c := connect(t, h.addr)

	res := c.eval("'" + strings.Repeat("(", 300_000) + strings.Repeat(")", 300_000))
	assert.True(t, strings.HasPrefix(res, "ERROR: Evaluation failed: maximum recursion depth exceeded"), res)
	assert.Equal(t, "3\n", c.eval("(+ 1 2)"))
}

func TestReadLineDropsLongLines(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader(strings.Repeat("x", 100)+"\nshort\ntail"), 16)

	line, tooLong, err := readLine(r, 40)
	assert.NoError(t, err)
	assert.True(t, tooLong)
	assert.Empty(t, line)

	line, tooLong, err = readLine(r, 40)
	assert.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "short\n", line)

	line, _, err = readLine(r, 40)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "tail", line)
}

func TestScreenSizeOverTheWire(t *testing.T) {
	h := start(t, 0)
	c := connect(t, h.addr)
	h.mirror.Apply(command.ScreenSizeChanged{Width: 250, Height: 820})
	assert.Equal(t, "(250 820)\n", c.eval("(screen-size)"))
}

func TestSessionStateIsShared(t *testing.T) {
	h := start(t, 0)
	a := connect(t, h.addr)
	b := connect(t, h.addr)

	assert.Equal(t, "#<void>\n", a.eval("(define shared 41)"))
	assert.Equal(t, "42\n", b.eval("(+ shared 1)"))
}

func TestConcurrentClientsDoNotInterleave(t *testing.T) {
	h := start(t, 0)
	const clients, rounds = 2, 50

	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		c := connect(t, h.addr)
		wg.Add(1)
		go func(i int, c *client) {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				src := fmt.Sprintf("(matrix '(%d 0 0 0) '(0 %d 0 0) '(0 0 %d 0) '(0 0 0 %d))", i, j, i, j)
				want := fmt.Sprintf("((%d 0 0 0)\n (0 %d 0 0)\n (0 0 %d 0)\n (0 0 0 %d))\n", i, j, i, j)
				assert.Equal(t, want, c.eval(src))
			}
		}(i, c)
	}
	wg.Wait()
}

func TestDynamicPassRunsOnTimer(t *testing.T) {
	h := start(t, 5*time.Millisecond)
	c := connect(t, h.addr)
	c.eval("(define n 0)")
	c.eval(`(set-dynamic-uniform! "n" (lambda () (set! n (+ n 1)) n))`)

	got := map[command.Float]bool{}
	deadline := time.After(5 * time.Second)
	for len(got) < 3 {
		select {
		case cmd := <-h.out:
			set := cmd.(command.SetUniform)
			require.Equal(t, "n", set.Name)
			got[set.Value.(command.Float)] = true
		case <-deadline:
			t.Fatalf("dynamic pass did not run, got %v", got)
		}
	}
	// the REPL stays responsive between passes
	assert.Equal(t, "#<void>\n", c.eval(`(delete-dynamic-uniform! "n")`))
}

func TestDisconnectUnregisters(t *testing.T) {
	ev := &countingEvaluator{}
	d := NewDispatcher(ev, 0, zerolog.Nop())
	reply := make(chan string, 1)
	d.Handle(Connected{ID: 1, Reply: reply})
	d.Handle(Request{ID: 1, Line: "x"})
	assert.Equal(t, "x\n", <-reply)
	d.Handle(Disconnected{ID: 1})
	assert.Equal(t, 0, d.Connections())

	d.Handle(Request{ID: 1, Line: "y"})
	assert.Equal(t, 1, ev.evals)
	d.Handle(Tick{})
	assert.Equal(t, 1, ev.passes)
}

func TestPartialLastLineIsEvaluated(t *testing.T) {
	h := start(t, 0)
	conn, err := net.Dial("tcp", h.addr)
	require.NoError(t, err)
	defer conn.Close()
	r := bufio.NewReader(conn)

	_, err = conn.Write([]byte(`(set-uniform! "last" 1)`))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var sb strings.Builder
	for {
		b, err := r.ReadByte()
		if err != nil {
			break
		}
		sb.WriteByte(b)
	}
	assert.Equal(t, Prompt+"#<void>\n", sb.String())
	assert.Equal(t, command.SetUniform{Name: "last", Value: command.Float(1)}, <-h.out)
}

func TestShutdownClosesConnections(t *testing.T) {
	h := start(t, 0)
	c := connect(t, h.addr)
	h.stop()

	c.conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err := c.r.ReadByte()
	assert.Error(t, err)
	_, err = net.DialTimeout("tcp", h.addr, time.Second)
	assert.Error(t, err)
}

type countingEvaluator struct {
	evals, passes int
}

func (c *countingEvaluator) Eval(src string) string {
	c.evals++
	return src + "\n"
}

func (c *countingEvaluator) RunDynamicPass() error {
	c.passes++
	return nil
}
