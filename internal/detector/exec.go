package detector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/banshee-data/parking.report/internal/monitoring"
)

// CommandSource runs a detector subprocess and reads frames from its stdout.
// Its stderr is forwarded to the log line by line.
type CommandSource struct {
	*LineSource

	cmd    *exec.Cmd
	cancel context.CancelFunc
	stderr sync.WaitGroup

	waitOnce sync.Once
	waitErr  error
}

// StartCommand starts name with args. The process is killed when ctx is
// cancelled or Close is called.
func StartCommand(ctx context.Context, opts Options, name string, args ...string) (*CommandSource, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = 2 * time.Second

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("detector stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("detector stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &DetectorError{Err: fmt.Errorf("start %s: %w", name, err)}
	}
	monitoring.Logf("detector: started %s (pid %d)", name, cmd.Process.Pid)

	s := &CommandSource{
		LineSource: NewLineSource(io.NopCloser(stdout), opts),
		cmd:        cmd,
		cancel:     cancel,
	}
	s.stderr.Add(1)
	go func() {
		defer s.stderr.Done()
		scan := bufio.NewScanner(stderr)
		for scan.Scan() {
			monitoring.Logf("detector: %s", scan.Text())
		}
	}()
	return s, nil
}

// Next returns the next frame. When stdout ends, the exit status decides
// between a clean io.EOF and a *DetectorError.
func (s *CommandSource) Next(ctx context.Context) (Frame, error) {
	f, err := s.LineSource.Next(ctx)
	if !errors.Is(err, io.EOF) {
		return f, err
	}
	if werr := s.wait(); werr != nil {
		return Frame{}, &DetectorError{Err: fmt.Errorf("detector exited: %w", werr)}
	}
	return Frame{}, io.EOF
}

func (s *CommandSource) wait() error {
	s.waitOnce.Do(func() {
		s.stderr.Wait()
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

// Close kills the detector if it is still running and reaps it.
func (s *CommandSource) Close() error {
	err := s.LineSource.Close()
	s.cancel()
	_ = s.wait()
	return err
}
