package network

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
)

// ClientConfig holds client configuration.
type ClientConfig struct {
	// Identity is the DEALER socket identity. Empty picks a unique one.
	Identity string
	// Compress asks the server to zstd-compress range payloads.
	Compress bool
	// Timeout bounds each request issued without a deadline.
	Timeout time.Duration
	// Token is sent with every request to servers requiring one.
	Token  string
	Logger *slog.Logger
}

// DefaultClientConfig returns default configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout: 30 * time.Second,
		Logger:  slog.Default(),
	}
}

var clientSeq atomic.Uint64

// Client issues requests to a ContainerServer over one DEALER socket.
// Requests from many goroutines share the socket and complete
// independently.
type Client struct {
	cfg    *ClientConfig
	logger *slog.Logger
	codec  *codec

	ctx    context.Context
	cancel context.CancelFunc
	dealer zmq4.Socket
	sendMu sync.Mutex

	mu      sync.Mutex
	waiters map[uint64]chan *Response
	closed  bool
	nextID  atomic.Uint64
	wg      sync.WaitGroup
}

// Dial connects to the server at address.
func Dial(address string, cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	identity := cfg.Identity
	if identity == "" {
		identity = fmt.Sprintf("colblob-client-%d-%d", time.Now().UnixNano(), clientSeq.Add(1))
	}

	c, err := newCodec()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	dealer := zmq4.NewDealer(ctx, zmq4.WithID(zmq4.SocketIdentity(identity)))
	if err := dealer.Dial(address); err != nil {
		cancel()
		c.close()
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	client := &Client{
		cfg:     cfg,
		logger:  logger.With("component", "container-client", "address", address),
		codec:   c,
		ctx:     ctx,
		cancel:  cancel,
		dealer:  dealer,
		waiters: make(map[uint64]chan *Response),
	}

	client.wg.Add(1)
	go client.recvLoop()

	return client, nil
}

// Stat returns the size of the named container.
func (c *Client) Stat(ctx context.Context, name string) (uint64, error) {
	resp, err := c.roundTrip(ctx, &Request{Op: OpStat, Name: name})
	if err != nil {
		return 0, err
	}
	return resp.Size, nil
}

// ReadRange reads [offset, offset+length) of the named container.
func (c *Client) ReadRange(ctx context.Context, name string, offset, length uint64) ([]byte, error) {
	resp, err := c.roundTrip(ctx, &Request{
		Op:       OpRead,
		Name:     name,
		Offset:   offset,
		Length:   length,
		Compress: c.cfg.Compress,
	})
	if err != nil {
		return nil, err
	}

	data := resp.Data
	if resp.Compressed {
		if data, err = c.codec.decompress(data); err != nil {
			return nil, err
		}
	}
	if data == nil {
		data = []byte{}
	}
	return data, nil
}

func (c *Client) roundTrip(ctx context.Context, req *Request) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req.ID = c.nextID.Add(1)
	req.Token = c.cfg.Token
	out, err := EncodeFrame(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan *Response, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}
	c.waiters[req.ID] = ch
	c.mu.Unlock()
	defer c.forget(req.ID)

	c.sendMu.Lock()
	err = c.dealer.Send(zmq4.NewMsg(out))
	c.sendMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrClientClosed
		}
		if resp.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRemote, resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) forget(id uint64) {
	c.mu.Lock()
	delete(c.waiters, id)
	c.mu.Unlock()
}

// recvLoop routes responses to their waiters. Responses nobody waits for
// any more are dropped.
func (c *Client) recvLoop() {
	defer c.wg.Done()

	for {
		msg, err := c.dealer.Recv()
		if err != nil {
			select {
			case <-c.ctx.Done():
				return
			default:
				continue
			}
		}
		if len(msg.Frames) == 0 {
			continue
		}

		resp, err := DecodeResponse(msg.Frames[len(msg.Frames)-1])
		if err != nil {
			c.logger.Debug("Dropping malformed response", "error", err)
			continue
		}

		c.mu.Lock()
		ch, ok := c.waiters[resp.ID]
		delete(c.waiters, resp.ID)
		c.mu.Unlock()

		if ok {
			ch <- resp
		}
	}
}

// Close fails outstanding requests and closes the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	waiters := c.waiters
	c.waiters = make(map[uint64]chan *Response)
	c.mu.Unlock()

	c.cancel()
	err := c.dealer.Close()
	c.wg.Wait()
	c.codec.close()

	for _, ch := range waiters {
		close(ch)
	}
	return err
}
