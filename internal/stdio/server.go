// ABOUTME: Stdio binding: newline-delimited JSON-RPC on stdin, responses on stdout.
// ABOUTME: Serves one implicit session for the lifetime of the process.

package stdio

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/2389/maps-gateway/internal/mcp"
	"github.com/2389/maps-gateway/internal/session"
)

// SessionID identifies the single stdio session. It never enters a store.
const SessionID = "stdio"

// MaxLineSize bounds one inbound message.
const MaxLineSize = mcp.MaxRequestBodySize

// Handler processes one raw protocol message. *mcp.Dispatcher satisfies it.
type Handler interface {
	Handle(ctx context.Context, raw []byte) *mcp.Response
}

// Server reads requests from In and writes responses to Out, one per line.
type Server struct {
	handler Handler
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
}

// NewServer creates a stdio server. Pass nil logger for default.
func NewServer(handler Handler, in io.Reader, out io.Writer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		handler: handler,
		in:      in,
		out:     out,
		logger:  logger.With("component", "stdio"),
	}
}

type scanResult struct {
	line    []byte
	tooLong bool
	err     error
}

// Run processes messages sequentially until stdin reaches EOF or ctx is
// cancelled. Both are clean exits and return nil.
func (s *Server) Run(ctx context.Context) error {
	sess := session.New(SessionID, newLineChannel(s.out))
	defer sess.Close()

	lines := make(chan scanResult)
	go s.scan(ctx, lines)

	s.logger.Info("stdio server ready")

	for {
		var next scanResult
		var ok bool
		select {
		case <-ctx.Done():
			s.logger.Info("stdio server stopping")
			return nil
		case next, ok = <-lines:
		}

		if !ok {
			s.logger.Info("stdin closed")
			return nil
		}
		if next.err != nil {
			return fmt.Errorf("reading stdin: %w", next.err)
		}

		var resp *mcp.Response
		if next.tooLong {
			s.logger.Warn("discarded oversized message", "limit", MaxLineSize)
			resp = mcp.NewError(nil, mcp.CodeInternalError, "Internal error", "message exceeds 1 MiB")
		} else {
			resp = s.handler.Handle(ctx, next.line)
		}
		if resp == nil {
			continue
		}
		if err := sess.Send(ctx, resp); err != nil {
			if errors.Is(err, session.ErrChannelClosed) {
				return nil
			}
			return fmt.Errorf("writing response: %w", err)
		}
	}
}

// scan feeds non-empty lines to out and closes it at EOF. A line longer than
// MaxLineSize is skipped up to its newline and reported as tooLong.
func (s *Server) scan(ctx context.Context, out chan<- scanResult) {
	defer close(out)

	reader := bufio.NewReaderSize(s.in, 64*1024)
	for {
		line, tooLong, err := readLine(reader, MaxLineSize)
		if tooLong || len(line) > 0 {
			select {
			case out <- scanResult{line: line, tooLong: tooLong}:
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				select {
				case out <- scanResult{err: err}:
				case <-ctx.Done():
				}
			}
			return
		}
	}
}

// readLine returns the next line without its terminator. Once a line grows
// past limit the rest of it is consumed and dropped.
func readLine(r *bufio.Reader, limit int) ([]byte, bool, error) {
	var line []byte
	tooLong := false

	for {
		chunk, err := r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(chunk) > limit+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		line = bytes.TrimRight(line, "\r\n")
		if len(line) > limit {
			tooLong = true
			line = nil
		}
		return line, tooLong, err
	}
}

// lineChannel writes each message followed by a newline.
type lineChannel struct {
	mu     sync.Mutex
	w      io.Writer
	closed bool
}

func newLineChannel(w io.Writer) *lineChannel {
	return &lineChannel{w: w}
}

func (c *lineChannel) Write(_ context.Context, msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return session.ErrChannelClosed
	}
	buf := make([]byte, 0, len(msg)+1)
	buf = append(buf, msg...)
	buf = append(buf, '\n')
	_, err := c.w.Write(buf)
	return err
}

func (c *lineChannel) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}
