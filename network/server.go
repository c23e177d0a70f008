package network

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/go-zeromq/zmq4"

	"github.com/VanDung-dev/colblob/internal/workers"
	"github.com/VanDung-dev/colblob/metrics"
)

// ServerConfig holds container server configuration.
type ServerConfig struct {
	Address string
	// Identity is the ROUTER socket identity.
	Identity string
	// Workers is the number of requests executed concurrently.
	Workers int
	// QueueSize bounds requests waiting for a worker. Requests beyond it
	// are answered with ErrServerBusy.
	QueueSize int
	// AuthToken, when set, must accompany every request.
	AuthToken string
	Logger    *slog.Logger
	// Metrics receives per-request counters. Nil disables them.
	Metrics *metrics.Metrics
}

// DefaultServerConfig returns default configuration.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Address:   "tcp://127.0.0.1:5570",
		Identity:  "colblob-server",
		Workers:   runtime.NumCPU(),
		QueueSize: 1024,
		Logger:    slog.Default(),
	}
}

// ServerStats contains server statistics.
type ServerStats struct {
	Address    string `json:"address"`
	Containers int    `json:"containers"`
	Requests   int64  `json:"requests"`
	Errors     int64  `json:"errors"`
	BytesSent  int64  `json:"bytes_sent"`
	IsRunning  bool   `json:"is_running"`

	Pool workers.Stats `json:"pool"`
}

// ContainerServer answers stat and range requests for registered
// containers over a ROUTER socket.
type ContainerServer struct {
	cfg    *ServerConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	codec   *codec
	auth    *authenticator

	ctx    context.Context
	cancel context.CancelFunc
	router zmq4.Socket
	sendMu sync.Mutex
	pool   *workers.Pool

	mu         sync.RWMutex
	containers map[string][]byte
	running    bool
	wg         sync.WaitGroup

	requests  int64
	errors    int64
	bytesSent int64
}

// NewContainerServer creates a server. A nil cfg uses DefaultServerConfig().
func NewContainerServer(cfg *ServerConfig) (*ContainerServer, error) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c, err := newCodec()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ContainerServer{
		cfg:        cfg,
		logger:     logger.With("component", "container-server"),
		metrics:    cfg.Metrics,
		codec:      c,
		auth:       newAuthenticator(cfg.AuthToken),
		ctx:        ctx,
		cancel:     cancel,
		containers: make(map[string][]byte),
	}, nil
}

// Register publishes data under name, replacing any earlier container.
// The caller must not modify data afterwards.
func (s *ContainerServer) Register(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.containers[name] = data
}

// Unregister removes the named container.
func (s *ContainerServer) Unregister(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.containers, name)
}

// Start binds the ROUTER socket and starts serving.
func (s *ContainerServer) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("network: server already running")
	}

	s.router = zmq4.NewRouter(s.ctx, zmq4.WithID(zmq4.SocketIdentity(s.cfg.Identity)))
	if err := s.router.Listen(s.cfg.Address); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to bind router: %w", err)
	}

	s.pool = workers.New("container-server", s.cfg.Workers, s.cfg.QueueSize, s.logger)
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.serveLoop()

	s.logger.Info("Container server started", "address", s.cfg.Address, "auth", s.auth.enabled())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *ContainerServer) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.router == nil {
		return nil
	}
	return s.router.Addr()
}

// Stop gracefully shuts down the server.
func (s *ContainerServer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	_ = s.router.Close()
	s.wg.Wait()
	s.pool.Shutdown()
	s.codec.close()

	s.logger.Info("Container server stopped")
}

func (s *ContainerServer) serveLoop() {
	defer s.wg.Done()

	for {
		msg, err := s.router.Recv()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				continue
			}
		}
		if len(msg.Frames) < 2 {
			continue
		}
		identity := msg.Frames[0]
		payload := msg.Frames[len(msg.Frames)-1]

		err = s.pool.Submit(func() { s.reply(identity, s.handle(payload)) })
		if err != nil {
			atomic.AddInt64(&s.requests, 1)
			atomic.AddInt64(&s.errors, 1)
			s.metrics.RecordServerBusy()
			id := uint64(0)
			if req, derr := DecodeRequest(payload); derr == nil {
				id = req.ID
			}
			s.reply(identity, &Response{ID: id, Error: fmt.Sprintf("%v: %v", ErrServerBusy, err)})
		}
	}
}

func (s *ContainerServer) reply(identity []byte, resp *Response) {
	out, err := EncodeFrame(resp)
	if err != nil {
		out, _ = EncodeFrame(&Response{ID: resp.ID, Error: err.Error()})
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	if err := s.router.Send(zmq4.NewMsgFrom(identity, out)); err != nil {
		s.logger.Debug("Failed to send response", "id", resp.ID, "error", err)
	}
}

// handle executes one request frame.
func (s *ContainerServer) handle(payload []byte) *Response {
	atomic.AddInt64(&s.requests, 1)

	req, err := DecodeRequest(payload)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		s.metrics.RecordServerRequest("invalid", 0, err)
		return &Response{Error: err.Error()}
	}

	if err := s.auth.validate(req.Token); err != nil {
		atomic.AddInt64(&s.errors, 1)
		s.metrics.RecordServerRequest(string(req.Op), 0, err)
		s.logger.Warn("Rejected request", "op", req.Op, "name", req.Name, "error", err)
		return &Response{ID: req.ID, Error: err.Error()}
	}

	resp, err := s.execute(req)
	if err != nil {
		atomic.AddInt64(&s.errors, 1)
		s.metrics.RecordServerRequest(string(req.Op), 0, err)
		s.logger.Debug("Request failed", "op", req.Op, "name", req.Name, "error", err)
		return &Response{ID: req.ID, Error: err.Error()}
	}
	resp.ID = req.ID
	atomic.AddInt64(&s.bytesSent, int64(len(resp.Data)))
	s.metrics.RecordServerRequest(string(req.Op), len(resp.Data), nil)
	return resp
}

func (s *ContainerServer) execute(req *Request) (*Response, error) {
	s.mu.RLock()
	data, ok := s.containers[req.Name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("container %q not found", req.Name)
	}
	size := uint64(len(data))

	switch req.Op {
	case OpStat:
		return &Response{Size: size}, nil

	case OpRead:
		if req.Offset > size || req.Length > size-req.Offset {
			return nil, fmt.Errorf("range [%d, +%d) outside container of %d bytes", req.Offset, req.Length, size)
		}
		if req.Length > MaxRangeLength {
			return nil, fmt.Errorf("%w: range of %d bytes (max: %d)", ErrFrameTooLarge, req.Length, MaxRangeLength)
		}
		chunk := data[req.Offset : req.Offset+req.Length]
		if req.Compress {
			return &Response{Size: size, Data: s.codec.compress(chunk), Compressed: true}, nil
		}
		return &Response{Size: size, Data: chunk}, nil

	default:
		return nil, fmt.Errorf("unknown op %q", req.Op)
	}
}

// Stats returns current server statistics.
func (s *ContainerServer) Stats() ServerStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pool workers.Stats
	if s.pool != nil {
		pool = s.pool.Stats()
	}

	return ServerStats{
		Pool:       pool,
		Address:    s.cfg.Address,
		Containers: len(s.containers),
		Requests:   atomic.LoadInt64(&s.requests),
		Errors:     atomic.LoadInt64(&s.errors),
		BytesSent:  atomic.LoadInt64(&s.bytesSent),
		IsRunning:  s.running,
	}
}
