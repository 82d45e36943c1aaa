// Package server implements the editor side of the channel: it accepts
// connections, decodes requests, runs them through the Dispatcher and writes
// each response back on the connection the request arrived on.
//
// Request processing pipeline:
//
//	Accept conn → servePeer (single goroutine reads messages)
//	  → for each request: go handleRequest (parallel processing)
//	    → codec.DecodeRequest → Dispatcher (middleware chain → handler) → codec.Encode → write response
//
// Stream sockets (unix, tcp) carry newline framed JSON. The HTTP surface
// (Handler) adds a websocket endpoint, a one-shot POST endpoint and a health check.
package server

import (
	"context"
	"editor-rpc/codec"
	"editor-rpc/message"
	"editor-rpc/registry"
	"editor-rpc/transport"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeTimeout = 10 * time.Second

// Server is safe for concurrent use. Serve may run on several listeners at once.
type Server struct {
	dispatcher *Dispatcher
	conns      *ConnRegistry
	log        *zap.Logger
	upgrader   websocket.Upgrader

	ctx    context.Context // handed to handlers; cancelled once Shutdown finishes
	cancel context.CancelFunc

	mu          sync.Mutex // guards everything below and the Add side of the wait groups
	closing     bool
	listeners   []net.Listener
	socketFiles []string
	httpServers []*http.Server
	registry    registry.Registry
	service     string
	advertised  []registry.ServiceInstance

	requests sync.WaitGroup // in-flight dispatches
	peers    sync.WaitGroup // peer read loops
}

// New creates a server answering with d.
func New(d *Dispatcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("server")
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		dispatcher: d,
		conns:      NewConnRegistry(log),
		log:        log,
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Server) Dispatcher() *Dispatcher {
	return s.dispatcher
}

func (s *Server) Conns() *ConnRegistry {
	return s.conns
}

// Listen opens a stream listener. For unix sockets a stale socket file left
// behind by a crashed process is removed first, and the file is removed again
// on Shutdown.
func (s *Server) Listen(network, address string) (net.Listener, error) {
	if network != transport.NetworkUnix && network != transport.NetworkTCP {
		return nil, fmt.Errorf("%w: %q is not a stream network", transport.ErrUnknownNetwork, network)
	}
	if network == transport.NetworkUnix {
		if err := removeStaleSocket(address); err != nil {
			return nil, err
		}
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		ln.Close()
		return nil, net.ErrClosed
	}
	s.listeners = append(s.listeners, ln)
	if network == transport.NetworkUnix {
		s.socketFiles = append(s.socketFiles, address)
	}
	return ln, nil
}

func removeStaleSocket(path string) error {
	fi, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if fi.Mode()&fs.ModeSocket == 0 {
		return fmt.Errorf("%s exists and is not a socket", path)
	}
	return os.Remove(path)
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe(network, address string) error {
	ln, err := s.Listen(network, address)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown. It returns nil after
// Shutdown and the accept error otherwise.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info("listening",
		zap.String("network", ln.Addr().Network()),
		zap.String("address", ln.Addr().String()),
		zap.String("codec", codec.Default.Name()))
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosing() {
				return nil
			}
			return err
		}
		t := transport.NewStreamTransport(conn)
		s.startPeer(newPeer(ln.Addr().Network(), t.RemoteAddr(), t))
	}
}

func (s *Server) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

// startPeer registers p and runs its read loop on a new goroutine.
func (s *Server) startPeer(p *Peer) {
	if !s.trackPeer() {
		p.Close()
		return
	}
	go s.servePeer(p)
}

func (s *Server) trackPeer() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.peers.Add(1)
	return true
}

func (s *Server) trackRequest() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.requests.Add(1)
	return true
}

// servePeer reads requests from p until it fails. Reads are sequential; each
// request is handled on its own goroutine so a slow command does not hold up
// the ones behind it.
func (s *Server) servePeer(p *Peer) {
	defer s.peers.Done()

	s.conns.Add(p)
	defer s.conns.Remove(p)
	defer p.Close()
	// Shutdown sets closing before CloseAll, so a peer added after CloseAll ran sees it here.
	if s.isClosing() {
		return
	}

	log := s.log.With(zap.String("peer", p.ID), zap.String("kind", p.Kind))
	log.Debug("connection opened", zap.String("remote", p.Remote))

	for {
		data, err := p.t.Receive(context.Background())
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrTransportClosed) {
				log.Debug("connection closed")
			} else {
				log.Warn("connection failed", zap.Error(err))
			}
			return
		}

		req, err := codec.DecodeRequest(data)
		if err != nil {
			log.Warn("discarding malformed message", zap.Error(err))
			continue
		}

		if !s.trackRequest() {
			log.Debug("dropping request during shutdown", zap.String("id", req.ID))
			continue
		}
		go s.handleRequest(p, req)
	}
}

func (s *Server) handleRequest(p *Peer, req *message.Request) {
	defer s.requests.Done()

	resp := s.dispatcher.Dispatch(s.ctx, req)
	data, err := codec.Encode(resp)
	if err != nil {
		s.log.Error("failed to encode response", zap.String("id", req.ID), zap.Error(err))
		data, _ = codec.Encode(message.NewError(req.ID, err.Error()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := p.t.Send(ctx, data); err != nil {
		s.log.Debug("failed to write response",
			zap.String("peer", p.ID),
			zap.String("id", req.ID),
			zap.Error(err))
	}
}

// Handler returns the HTTP surface:
//
//	GET  /ws       websocket upgrade, then one JSON text frame per message
//	POST /rpc      one request envelope in, one response envelope out
//	GET  /healthz  status, open connections and registered commands
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET(transport.WebSocketPath, s.handleWebSocket)
	r.POST(transport.RPCPath, s.handleRPC)
	r.GET(transport.HealthPath, s.handleHealth)
	return r
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	t := transport.NewWebSocketTransport(conn)
	p := newPeer(transport.NetworkWebSocket, t.RemoteAddr(), t)
	if !s.trackPeer() {
		p.Close()
		return
	}
	s.servePeer(p)
}

func (s *Server) handleRPC(c *gin.Context) {
	var req message.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, message.NewError(req.ID, "invalid request: "+err.Error()))
		return
	}
	if !s.trackRequest() {
		c.JSON(http.StatusServiceUnavailable, message.NewError(req.ID, "server shutting down"))
		return
	}
	defer s.requests.Done()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	c.JSON(http.StatusOK, s.dispatcher.Dispatch(ctx, &req))
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": s.conns.Len(),
		"commands":    s.dispatcher.Commands(),
	})
}

// ListenAndServeHTTP serves Handler on addr until Shutdown.
func (s *Server) ListenAndServeHTTP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeHTTP(ln)
}

// ServeHTTP serves Handler on ln until Shutdown.
func (s *Server) ServeHTTP(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		ln.Close()
		return nil
	}
	s.httpServers = append(s.httpServers, srv)
	s.mu.Unlock()

	s.log.Info("serving http", zap.String("address", ln.Addr().String()))
	if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Advertise registers instance under service in reg so clients can discover
// this server. The entry is removed on Shutdown.
func (s *Server) Advertise(ctx context.Context, reg registry.Registry, service string, instance registry.ServiceInstance, ttl int64) error {
	if err := reg.Register(ctx, service, instance, ttl); err != nil {
		return fmt.Errorf("advertise %s at %s: %w", service, instance.Addr, err)
	}

	s.mu.Lock()
	s.registry = reg
	s.service = service
	s.advertised = append(s.advertised, instance)
	s.mu.Unlock()

	s.log.Info("advertised",
		zap.String("service", service),
		zap.String("network", instance.Network),
		zap.String("addr", instance.Addr))
	return nil
}

// Shutdown stops the server:
//  1. Deregister from discovery (clients stop finding this server)
//  2. Close listeners and HTTP servers (stop accepting new connections)
//  3. Wait for in-flight requests to finish, at most timeout
//  4. Close every open connection and remove unix socket files
//
// Requests that arrive after step 1 are dropped.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	listeners, httpServers := s.listeners, s.httpServers
	reg, service, advertised := s.registry, s.service, s.advertised
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	for _, inst := range advertised {
		if err := reg.Deregister(ctx, service, inst.Addr); err != nil {
			errs = append(errs, fmt.Errorf("deregister %s: %w", inst.Addr, err))
		}
	}

	for _, ln := range listeners {
		ln.Close()
	}
	for _, srv := range httpServers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	if !waitTimeout(&s.requests, ctx) {
		errs = append(errs, errors.New("timeout waiting for in-flight requests to finish"))
	}
	s.cancel()

	closed := s.conns.CloseAll()
	s.peers.Wait()

	s.mu.Lock()
	socketFiles := s.socketFiles
	s.mu.Unlock()
	for _, path := range socketFiles {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	s.log.Info("shut down", zap.Int("closedConnections", closed))
	return errors.Join(errs...)
}

func waitTimeout(wg *sync.WaitGroup, ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
