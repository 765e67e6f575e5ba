package broker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pithecene-io/playdl/ipc"
	"github.com/pithecene-io/playdl/metrics"
	"github.com/pithecene-io/playdl/types"
)

// DefaultConnectTimeout bounds binding to the broker.
const DefaultConnectTimeout = 10 * time.Second

// Client talks to a broker Server. Requests on one Client are serialized;
// concurrent logins from one process share a single remote call.
type Client struct {
	socket  string
	conn    net.Conn
	dec     *ipc.FrameDecoder
	enc     *ipc.FrameEncoder
	metrics *metrics.Collector

	mu    sync.Mutex
	group singleflight.Group
}

// Dial connects to the broker socket. Connecting is bounded by timeout
// (DefaultConnectTimeout when zero); exceeding it returns ErrConnectTimeout.
func Dial(ctx context.Context, socket string, timeout time.Duration, m *metrics.Collector) (*Client, error) {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dctx, "unix", socket)
	if err != nil {
		if errors.Is(dctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &ConnectError{Socket: socket, Err: ErrConnectTimeout}
		}
		return nil, &ConnectError{Socket: socket, Err: err}
	}
	return &Client{
		socket:  socket,
		conn:    conn,
		dec:     ipc.NewFrameDecoder(conn),
		enc:     ipc.NewFrameEncoder(conn),
		metrics: m,
	}, nil
}

// call sends one request and waits for its response.
func (c *Client) call(ctx context.Context, typ string) (*ipc.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := uuid.NewString()
	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetDeadline(time.Now())
	})
	defer func() {
		if stop() {
			return
		}
		// ctx fired; the connection is no longer usable
		_ = c.conn.Close()
	}()

	if err := c.enc.WriteFrame(&ipc.Request{Type: typ, ID: id}); err != nil {
		return nil, c.callError(ctx, err)
	}
	for {
		payload, err := c.dec.ReadFrame()
		if err != nil {
			return nil, c.callError(ctx, err)
		}
		msg, err := ipc.DecodeFrame(payload)
		if err != nil {
			c.metrics.IncIPCDecodeErrors()
			if ipc.IsFatalFrameError(err) {
				return nil, fmt.Errorf("broker: %w", err)
			}
			continue
		}
		resp, ok := msg.(*ipc.Response)
		if !ok || resp.ID != id {
			continue
		}
		if !types.ContractCompatible(resp.Version, types.ContractVersion) {
			return nil, &ContractError{Remote: resp.Version}
		}
		if !resp.OK {
			if resp.Error == nil {
				return nil, errors.New("broker: request failed")
			}
			return nil, fromWire(resp.Error)
		}
		return resp, nil
	}
}

func (c *Client) callError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("broker: %w", err)
}

// RetrieveCredential returns the broker's cached credential, or nil.
func (c *Client) RetrieveCredential(ctx context.Context) (*types.Credential, error) {
	resp, err := c.call(ctx, ipc.TypeRetrieveCredential)
	if err != nil {
		return nil, err
	}
	return resp.Credential, nil
}

// Profile returns the broker's device profile.
func (c *Client) Profile(ctx context.Context) (*types.DeviceProfile, error) {
	resp, err := c.call(ctx, ipc.TypeGetProfile)
	if err != nil {
		return nil, err
	}
	return &types.DeviceProfile{Properties: resp.Profile}, nil
}

// Login asks the broker to run or join the interactive login.
func (c *Client) Login(ctx context.Context) error {
	ch := c.group.DoChan("login", func() (any, error) {
		_, err := c.call(context.WithoutCancel(ctx), ipc.TypeLogin)
		return nil, err
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetCredential implements Provider.
func (c *Client) GetCredential(ctx context.Context) (types.Credential, *types.DeviceProfile, error) {
	return getCredential(ctx, c.RetrieveCredential, c.Login, c.Profile, c.metrics)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

var _ Provider = (*Client)(nil)
