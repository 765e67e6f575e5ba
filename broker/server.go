package broker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pithecene-io/playdl/ipc"
	"github.com/pithecene-io/playdl/log"
	"github.com/pithecene-io/playdl/metrics"
	"github.com/pithecene-io/playdl/types"
)

// Server exposes a Broker on a stream listener.
type Server struct {
	broker  *Broker
	logger  *log.Logger
	metrics *metrics.Collector

	wg sync.WaitGroup
}

// NewServer creates a server for b.
func NewServer(b *Broker, logger *log.Logger, m *metrics.Collector) *Server {
	return &Server{broker: b, logger: log.OrNop(logger).Named("broker-server"), metrics: m}
}

// Listen opens a unix socket at path, replacing a stale socket left by a
// dead broker. An active broker on the same path is an error.
func Listen(path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("broker: create socket dir: %w", err)
	}
	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode()&os.ModeSocket == 0 {
			return nil, fmt.Errorf("broker: %s exists and is not a socket", path)
		}
		conn, err := net.DialTimeout("unix", path, time.Second)
		if err == nil {
			_ = conn.Close()
			return nil, fmt.Errorf("broker: already serving on %s", path)
		}
		if err := os.Remove(path); err != nil {
			return nil, fmt.Errorf("broker: remove stale socket: %w", err)
		}
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("broker: listen: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		_ = ln.Close()
		return nil, fmt.Errorf("broker: restrict socket: %w", err)
	}
	return ln, nil
}

// Serve accepts connections until ctx ends, then closes ln and waits for
// in-flight requests.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.logger.Info("broker listening", map[string]any{"addr": ln.Addr().String()})
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.wg.Wait()
				return nil
			}
			s.wg.Wait()
			return fmt.Errorf("broker: accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(ctx, conn)
		}()
	}
}

// handleConn reads requests from one client. Requests are answered
// concurrently, so a blocking login does not hold up profile requests.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	var reqs sync.WaitGroup
	defer reqs.Wait()

	// canceled before reqs.Wait so pending logins stop waiting for a
	// client that is gone
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	dec := ipc.NewFrameDecoder(conn)
	enc := ipc.NewFrameEncoder(conn)

	for {
		payload, err := dec.ReadFrame()
		if err != nil {
			if !errors.Is(err, io.EOF) && connCtx.Err() == nil {
				s.metrics.IncIPCDecodeErrors()
				s.logger.Warn("broker connection read failed", map[string]any{"error": err.Error()})
			}
			return
		}
		msg, err := ipc.DecodeFrame(payload)
		if err != nil {
			s.metrics.IncIPCDecodeErrors()
			s.logger.Warn("undecodable broker request", map[string]any{"error": err.Error()})
			continue
		}
		req, ok := msg.(*ipc.Request)
		if !ok {
			s.metrics.IncIPCDecodeErrors()
			continue
		}

		reqs.Add(1)
		go func() {
			defer reqs.Done()
			resp := s.respond(connCtx, req)
			if err := enc.WriteFrame(resp); err != nil {
				s.logger.Warn("failed to write broker response", map[string]any{
					"id":    req.ID,
					"error": err.Error(),
				})
			}
		}()
	}
}

func (s *Server) respond(ctx context.Context, req *ipc.Request) *ipc.Response {
	s.metrics.IncBrokerRequest()
	resp := &ipc.Response{Type: ipc.TypeResponse, ID: req.ID, Version: types.ContractVersion}

	var err error
	switch req.Type {
	case ipc.TypeRetrieveCredential:
		resp.Credential, err = s.broker.RetrieveCredential(ctx)
	case ipc.TypeGetProfile:
		p, perr := s.broker.Profile(ctx)
		if perr == nil {
			resp.Profile = p.Properties
		}
		err = perr
	case ipc.TypeLogin:
		err = s.broker.Login(ctx)
	default:
		err = fmt.Errorf("unknown request type %q", req.Type)
	}

	if err != nil {
		resp.Error = toWire(err)
		s.logger.Debug("broker request failed", map[string]any{
			"type":  req.Type,
			"error": err.Error(),
		})
		return resp
	}
	resp.OK = true
	return resp
}
