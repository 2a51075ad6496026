package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/peterh/liner"

	"github.com/themkat/shade-eval-print-loop/internal/repl"
	"github.com/themkat/shade-eval-print-loop/internal/scheme"
)

const (
	historyFile = ".sepl_history"
	promptMain  = "> "
	promptCont  = "... "
)

func red(s string) string { return "\x1b[31m" + s + "\x1b[0m" }

func main() {
	addr := flag.String("addr", repl.DefaultAddr, "address of the preview REPL")
	timeout := flag.Duration("dial-timeout", 3*time.Second, "connect timeout")
	flag.Parse()
	os.Exit(run(*addr, *timeout))
}

func run(addr string, timeout time.Duration) int {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, red(err.Error()))
		return 1
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	if _, err := readReply(r); err != nil {
		fmt.Fprintln(os.Stderr, red("no prompt from server: "+err.Error()))
		return 1
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		code, ok := readByParseProbe(ln, promptMain, promptCont)
		if !ok {
			fmt.Println()
			return 0
		}
		line := oneLine(code)
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintf(conn, "%s\n", line); err != nil {
			fmt.Fprintln(os.Stderr, red(err.Error()))
			return 1
		}
		out, err := readReply(r)
		if out != "" {
			if strings.HasPrefix(out, "ERROR:") {
				fmt.Print(red(out))
			} else {
				fmt.Print(out)
			}
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, red("connection closed"))
			return 1
		}
		ln.AppendHistory(line)
	}
}

// readByParseProbe keeps prompting while the input so far is an
// incomplete expression.
func readByParseProbe(ln *liner.State, prompt, cont string) (string, bool) {
	var b strings.Builder

	for {
		var line string
		var err error
		if b.Len() == 0 {
			line, err = ln.Prompt(prompt)
		} else {
			line, err = ln.Prompt(cont)
		}
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if err != nil {
			return "", true
		}

		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if _, perr := scheme.Parse(src); errors.Is(perr, scheme.ErrIncomplete) {
			continue
		}
		return src, true
	}
}

// oneLine joins multi-line input for the line protocol. Line comments are
// dropped since they would swallow the rest of the joined line. Newlines
// inside string literals become \n escapes so the string keeps them.
func oneLine(src string) string {
	var sb strings.Builder
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inString && c == '\\' && i+1 < len(src):
			i++
			sb.WriteByte(c)
			if src[i] == '\n' {
				sb.WriteByte('n')
			} else {
				sb.WriteByte(src[i])
			}
		case c == '"':
			inString = !inString
			sb.WriteByte(c)
		case inString && c == '\n':
			sb.WriteString(`\n`)
		case c == ';' && !inString:
			for i+1 < len(src) && src[i+1] != '\n' {
				i++
			}
		case c == '\n':
			sb.WriteByte(' ')
		default:
			sb.WriteByte(c)
		}
	}
	return strings.TrimSpace(sb.String())
}

// readReply reads up to and including the next prompt and returns what
// came before it. Replies are empty or end in a newline, so the prompt is
// only recognised at the start of a line.
func readReply(r *bufio.Reader) (string, error) {
	var sb strings.Builder
	atLineStart := true
	for {
		if atLineStart {
			if p, err := r.Peek(len(repl.Prompt)); err == nil && string(p) == repl.Prompt {
				_, _ = r.Discard(len(p))
				return sb.String(), nil
			}
		}
		b, err := r.ReadByte()
		if err != nil {
			return sb.String(), err
		}
		sb.WriteByte(b)
		atLineStart = b == '\n'
	}
}
