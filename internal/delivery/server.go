package delivery

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"proctor/internal/config"
	"proctor/pkg/logging"

	"github.com/mark3labs/mcp-go/server"
)

// Server exposes the session service as an MCP server over the
// configured transport.
type Server struct {
	cfg     config.Config
	service *Service
	library *Library
	events  *Broadcaster

	server               *server.MCPServer
	sseServer            *server.SSEServer
	streamableHTTPServer *server.StreamableHTTPServer
	stdioServer          *server.StdioServer

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
}

// NewServer wires a server over an already-constructed service.
func NewServer(cfg config.Config, service *Service, library *Library, events *Broadcaster) *Server {
	return &Server{
		cfg:     cfg,
		service: service,
		library: library,
		events:  events,
	}
}

// Start registers the tool surface and brings up the configured
// transport. It returns once the transport is listening.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return fmt.Errorf("delivery server already started")
	}

	s.ctx, s.cancelFunc = context.WithCancel(ctx)

	mcpServer := server.NewMCPServer(
		"proctor",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	s.server = mcpServer
	s.registerTools(mcpServer)

	s.wg.Add(1)
	go s.logEvents()

	s.mu.Unlock()

	addr := s.cfg.Listen

	switch s.cfg.Transport {
	case config.TransportSSE:
		logging.Info("Delivery", "Starting MCP server with SSE transport on %s", addr)
		s.sseServer = server.NewSSEServer(
			mcpServer,
			server.WithBaseURL("http://"+addr),
			server.WithSSEEndpoint("/sse"),
			server.WithMessageEndpoint("/message"),
			server.WithKeepAlive(true),
			server.WithKeepAliveInterval(30*time.Second),
		)
		sseServer := s.sseServer
		go func() {
			if err := sseServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error("Delivery", err, "SSE server error")
			}
		}()

	case config.TransportStdio:
		logging.Info("Delivery", "Starting MCP server with stdio transport")
		s.stdioServer = server.NewStdioServer(mcpServer)
		stdioServer := s.stdioServer
		go func() {
			if err := stdioServer.Listen(s.ctx, os.Stdin, os.Stdout); err != nil {
				logging.Error("Delivery", err, "Stdio server error")
			}
		}()

	case config.TransportStreamableHTTP:
		fallthrough
	default:
		logging.Info("Delivery", "Starting MCP server with streamable-http transport on %s", addr)
		s.streamableHTTPServer = server.NewStreamableHTTPServer(mcpServer)
		streamableServer := s.streamableHTTPServer
		go func() {
			if err := streamableServer.Start(addr); err != nil && err != http.ErrServerClosed {
				logging.Error("Delivery", err, "Streamable HTTP server error")
			}
		}()
	}

	return nil
}

// Stop shuts the transport down and waits for background routines.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.server == nil {
		s.mu.Unlock()
		return fmt.Errorf("delivery server not started")
	}

	logging.Info("Delivery", "Stopping MCP server")

	cancelFunc := s.cancelFunc
	sseServer := s.sseServer
	streamableServer := s.streamableHTTPServer
	s.mu.Unlock()

	if cancelFunc != nil {
		cancelFunc()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if sseServer != nil {
		if err := sseServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Delivery", err, "Error shutting down SSE server")
		}
	}
	if streamableServer != nil {
		if err := streamableServer.Shutdown(shutdownCtx); err != nil {
			logging.Error("Delivery", err, "Error shutting down streamable HTTP server")
		}
	}

	// The stdio server stops on context cancellation.

	s.wg.Wait()

	s.mu.Lock()
	s.server = nil
	s.sseServer = nil
	s.streamableHTTPServer = nil
	s.stdioServer = nil
	s.mu.Unlock()

	return nil
}

// Endpoint returns the address clients connect to.
func (s *Server) Endpoint() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch s.cfg.Transport {
	case config.TransportSSE:
		return fmt.Sprintf("http://%s/sse", s.cfg.Listen)
	case config.TransportStdio:
		return "stdio"
	default:
		return fmt.Sprintf("http://%s/mcp", s.cfg.Listen)
	}
}

// logEvents mirrors every session transition into the log.
func (s *Server) logEvents() {
	defer s.wg.Done()

	ch, cancel := s.events.Subscribe(0)
	defer cancel()

	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if ev.Item != "" {
				logging.Info("Delivery", "session %s: %s (state %s, position %d, item %s)",
					ev.Session, ev.Op, ev.State, ev.Position, ev.Item)
			} else {
				logging.Info("Delivery", "session %s: %s (state %s, position %d)",
					ev.Session, ev.Op, ev.State, ev.Position)
			}
		}
	}
}
