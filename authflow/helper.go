package authflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pithecene-io/playdl/ipc"
	"github.com/pithecene-io/playdl/log"
)

// helperShutdownGrace bounds how long Close waits after closing stdin.
const helperShutdownGrace = 5 * time.Second

// maxHelperStderr caps captured helper diagnostics.
const maxHelperStderr = 64 << 10

// HelperConfig configures the login helper process.
type HelperConfig struct {
	// Path is the helper binary.
	Path string
	// Args are extra arguments placed before the standard flags.
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// URL defaults to SetupURL.
	URL    string
	Logger *log.Logger
}

// HelperSource is a Source backed by a browser helper process.
//
// The helper is started with --url, --cookie and --identity-script flags.
// It writes one msgpack frame per page load on stdout and a closed frame
// when the user closes the window. Closing its stdin asks it to exit.
type HelperSource struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	frames *ipc.FrameDecoder
	stderr *boundedBuffer
	logger *log.Logger

	events chan helperEvent

	closeOnce sync.Once
	closeErr  error
	waitDone  chan struct{}
	waitErr   error
}

type helperEvent struct {
	ev  Event
	err error
}

// LaunchHelper starts the helper process.
func LaunchHelper(ctx context.Context, cfg HelperConfig) (*HelperSource, error) {
	if cfg.Path == "" {
		return nil, errors.New("authflow: login helper path is required")
	}
	url := cfg.URL
	if url == "" {
		url = SetupURL
	}

	args := append([]string{}, cfg.Args...)
	args = append(args, "--url", url, "--cookie", CookieName, "--identity-script", IdentityScript)
	cmd := exec.CommandContext(ctx, cfg.Path, args...)
	if len(cfg.Env) > 0 {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}

	// stdin kept open; closing it signals the helper to exit
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr := &boundedBuffer{max: maxHelperStderr}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start login helper: %w", err)
	}

	h := &HelperSource{
		cmd:      cmd,
		stdin:    stdin,
		frames:   ipc.NewFrameDecoder(stdout),
		stderr:   stderr,
		logger:   log.OrNop(cfg.Logger).Named("login-helper"),
		events:   make(chan helperEvent),
		waitDone: make(chan struct{}),
	}
	go h.readLoop()
	return h, nil
}

// readLoop decodes frames until the helper closes or stdout ends, then
// reaps the process.
func (h *HelperSource) readLoop() {
	defer func() {
		h.waitErr = h.cmd.Wait()
		close(h.waitDone)
	}()
	defer close(h.events)

	for {
		payload, err := h.frames.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.events <- helperEvent{err: ErrSourceClosed}
				return
			}
			h.events <- helperEvent{err: fmt.Errorf("read helper frame: %w", err)}
			return
		}
		msg, err := ipc.DecodeFrame(payload)
		if err != nil {
			if ipc.IsFatalFrameError(err) {
				h.events <- helperEvent{err: err}
				return
			}
			h.logger.Warn("skipping undecodable helper frame", map[string]any{"error": err.Error()})
			continue
		}
		switch m := msg.(type) {
		case *ipc.PageFinished:
			h.events <- helperEvent{ev: Event{URL: m.URL, Cookies: m.Cookies, Identity: m.Identity}}
		case *ipc.HelperClosed:
			h.events <- helperEvent{err: ErrSourceClosed}
			return
		default:
			h.logger.Warn("unexpected helper frame", map[string]any{"type": fmt.Sprintf("%T", msg)})
		}
	}
}

// Next implements Source.
func (h *HelperSource) Next(ctx context.Context) (Event, error) {
	select {
	case e, ok := <-h.events:
		if !ok {
			return Event{}, ErrSourceClosed
		}
		return e.ev, e.err
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Stderr returns captured helper diagnostics.
func (h *HelperSource) Stderr() string {
	return strings.TrimSpace(h.stderr.String())
}

// Close asks the helper to exit by closing stdin, then kills it after a
// grace period.
func (h *HelperSource) Close() error {
	h.closeOnce.Do(func() {
		_ = h.stdin.Close()

		// unblock readLoop if nobody is reading
		go func() {
			for range h.events {
			}
		}()

		select {
		case <-h.waitDone:
		case <-time.After(helperShutdownGrace):
			_ = h.cmd.Process.Kill()
			<-h.waitDone
		}

		var exitErr *exec.ExitError
		if h.waitErr != nil && !errors.As(h.waitErr, &exitErr) {
			h.closeErr = h.waitErr
		}
	})
	return h.closeErr
}

// boundedBuffer keeps the first max bytes written to it.
type boundedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		b.buf.Write(p[:min(len(p), room)])
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
