package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Prompt is written before every line the server reads.
const Prompt = "> "

// DefaultAddr is where the preview listens unless configured otherwise.
const DefaultAddr = "127.0.0.1:42069"

// DefaultMaxLine bounds one request line in bytes.
const DefaultMaxLine = 1 << 20

type Server struct {
	// MaxLine bounds one request line. Longer lines are discarded and
	// answered with an error.
	MaxLine int

	ln     net.Listener
	events chan<- Event
	log    zerolog.Logger

	nextID atomic.Uint64
	mu     sync.Mutex
	conns  map[net.Conn]struct{}
	wg     sync.WaitGroup
}

// Listen binds addr. Connections are served by Serve.
func Listen(addr string, events chan<- Event, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{MaxLine: DefaultMaxLine, ln: ln, events: events, log: log, conns: map[net.Conn]struct{}{}}, nil
}

func (s *Server) Addr() net.Addr { return s.ln.Addr() }

// Close releases the listener of a server that never served.
func (s *Server) Close() error { return s.ln.Close() }

// Serve accepts connections until ctx is done. On return the listener and
// every connection are closed and all workers have exited.
func (s *Server) Serve(ctx context.Context) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		s.ln.Close()
		s.closeAll()
	}()

	s.log.Info().Str("addr", s.ln.Addr().String()).Msg("repl listening")
	for {
		c, err := s.ln.Accept()
		if err != nil {
			s.ln.Close()
			s.closeAll()
			s.wg.Wait()
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.forget(c)
			s.handleConn(ctx, c)
		}()
	}
}

func (s *Server) forget(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	c.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		c.Close()
	}
}

func (s *Server) send(ctx context.Context, e Event) bool {
	select {
	case s.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// handleConn runs one connection: prompt, read a line, hand it to the
// dispatcher, write the reply. A read that returns nothing ends it.
func (s *Server) handleConn(ctx context.Context, c net.Conn) {
	id := s.nextID.Add(1)
	log := s.log.With().Uint64("conn", id).Str("remote", c.RemoteAddr().String()).Logger()
	reply := make(chan string, 1)
	if !s.send(ctx, Connected{ID: id, Reply: reply}) {
		return
	}
	defer s.send(ctx, Disconnected{ID: id})
	log.Info().Msg("client connected")

	r := bufio.NewReader(c)
	for {
		if _, err := io.WriteString(c, Prompt); err != nil {
			log.Warn().Err(err).Msg("write prompt")
			return
		}
		line, tooLong, rerr := readLine(r, s.MaxLine)
		if tooLong {
			log.Warn().Int("max", s.MaxLine).Msg("request line too long")
			if _, err := fmt.Fprintf(c, "ERROR: Evaluation failed: input line longer than %d bytes\n", s.MaxLine); err != nil || rerr != nil {
				return
			}
			continue
		}
		if line == "" {
			if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, net.ErrClosed) {
				log.Warn().Err(rerr).Msg("read")
			}
			log.Info().Msg("client disconnected")
			return
		}
		if !s.send(ctx, Request{ID: id, Line: strings.TrimRight(line, "\r\n")}) {
			return
		}
		var out string
		select {
		case out = <-reply:
		case <-ctx.Done():
			return
		}
		if _, err := io.WriteString(c, out); err != nil {
			log.Warn().Err(err).Msg("write reply")
			return
		}
		if rerr != nil {
			// last line had no newline; the peer is gone
			log.Info().Msg("client disconnected")
			return
		}
	}
}

// readLine reads through the next newline. A line longer than limit is
// consumed and dropped, and tooLong is set.
func readLine(r *bufio.Reader, limit int) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(buf)+len(chunk) > limit {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return string(buf), tooLong, err
	}
}
