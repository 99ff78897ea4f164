package detector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/parking.report/internal/timeutil"
)

// Source delivers detector frames in order.
type Source interface {
	// Next blocks until the next frame is available. It returns io.EOF when
	// the detector has no more frames, a *DetectorError when the detector
	// failed, and an error wrapping ErrMalformedFrame for a line that should
	// be skipped.
	Next(ctx context.Context) (Frame, error)
	Close() error
}

// Options tune how a Source reads frames.
type Options struct {
	// Interval paces delivery to at most one frame per interval. Zero
	// delivers frames as fast as they are read.
	Interval time.Duration
	Clock    timeutil.Clock
}

const maxLineBytes = 4 << 20

type line struct {
	n    int
	data []byte
}

// LineSource reads newline-delimited JSON frames from a reader.
type LineSource struct {
	lines   chan line
	scanErr chan error
	done    chan struct{}
	ticker  timeutil.Ticker

	closeOnce sync.Once
	closer    io.Closer
}

// NewLineSource starts reading frames from r. If r is an io.Closer it is
// closed by Close.
func NewLineSource(r io.Reader, opts Options) *LineSource {
	s := &LineSource{
		lines:   make(chan line),
		scanErr: make(chan error, 1),
		done:    make(chan struct{}),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	if opts.Interval > 0 {
		clock := opts.Clock
		if clock == nil {
			clock = timeutil.RealClock{}
		}
		s.ticker = clock.NewTicker(opts.Interval)
	}

	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 64*1024), maxLineBytes)

	// The blocking Scan runs here so Next can still honour cancellation.
	go func() {
		defer close(s.lines)
		n := 0
		for scan.Scan() {
			n++
			text := scan.Bytes()
			if len(strings.TrimSpace(string(text))) == 0 {
				continue
			}
			data := append([]byte(nil), text...)
			select {
			case s.lines <- line{n: n, data: data}:
			case <-s.done:
				return
			}
		}
		if err := scan.Err(); err != nil {
			s.scanErr <- err
		}
	}()

	return s
}

// Next returns the next frame.
func (s *LineSource) Next(ctx context.Context) (Frame, error) {
	if s.ticker != nil {
		select {
		case <-ctx.Done():
			return Frame{}, ctx.Err()
		case <-s.ticker.C():
		}
	}

	select {
	case <-ctx.Done():
		return Frame{}, ctx.Err()
	case l, ok := <-s.lines:
		if !ok {
			select {
			case err := <-s.scanErr:
				return Frame{}, &DetectorError{Err: fmt.Errorf("read detector stream: %w", err)}
			default:
				return Frame{}, io.EOF
			}
		}
		f, err := ParseFrame(l.data)
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				return Frame{}, fmt.Errorf("line %d: %w", l.n, err)
			}
			return Frame{}, err
		}
		return f, nil
	}
}

// Close stops the reader goroutine and releases the underlying reader.
func (s *LineSource) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		if s.ticker != nil {
			s.ticker.Stop()
		}
		if s.closer != nil {
			err = s.closer.Close()
		}
	})
	return err
}

// Open resolves a detector source descriptor:
//
//	stdin or -           frames on standard input
//	file:<path>          replay a recorded frame log
//	exec:<command args>  run a detector and read its stdout
//
// Arguments of exec: are split on whitespace; quoting is not interpreted.
func Open(ctx context.Context, desc string, opts Options) (Source, error) {
	switch {
	case desc == "" || desc == "stdin" || desc == "-":
		return NewLineSource(io.NopCloser(os.Stdin), opts), nil

	case strings.HasPrefix(desc, "file:"):
		path := strings.TrimPrefix(desc, "file:")
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open detector replay: %w", err)
		}
		return NewLineSource(f, opts), nil

	case strings.HasPrefix(desc, "exec:"):
		args := strings.Fields(strings.TrimPrefix(desc, "exec:"))
		if len(args) == 0 {
			return nil, fmt.Errorf("detector source %q has no command", desc)
		}
		return StartCommand(ctx, opts, args[0], args[1:]...)

	default:
		return nil, fmt.Errorf("unknown detector source %q (want stdin, file:<path> or exec:<command>)", desc)
	}
}
