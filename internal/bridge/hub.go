package bridge

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/satriahrh/intake-bridge/internal/agent"
)

var upgrader = websocket.Upgrader{
	// Browser clients are served from other origins during development.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Hub maintains the set of live bridges.
type Hub struct {
	// Registered bridges.
	bridges map[string]*Bridge

	// Register requests from new bridges.
	register chan *Bridge

	// Unregister requests from bridges that finished teardown.
	unregister chan *Bridge

	// Mutex for thread-safe access to bridges map
	mu sync.RWMutex

	dialer agent.Dialer
	deps   Deps
	logger *zap.Logger

	// Parent of every bridge context; cancelled by Shutdown.
	ctx      context.Context
	cancel   context.CancelFunc
	stop     chan struct{}
	stopOnce sync.Once
}

// NewHub creates a hub that attaches every accepted client with deps.
func NewHub(dialer agent.Dialer, deps Deps, logger *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	deps.Logger = logger
	return &Hub{
		bridges:    make(map[string]*Bridge),
		register:   make(chan *Bridge),
		unregister: make(chan *Bridge),
		dialer:     dialer,
		deps:       deps,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		stop:       make(chan struct{}),
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case b := <-h.register:
			select {
			case <-b.Done():
				// Already torn down before registration.
				continue
			default:
			}
			h.mu.Lock()
			h.bridges[b.ID()] = b
			h.mu.Unlock()
			h.logger.Info("Bridge registered", zap.String("connectionID", b.ID()))

		case b := <-h.unregister:
			h.mu.Lock()
			delete(h.bridges, b.ID())
			h.mu.Unlock()
			h.logger.Info("Bridge unregistered", zap.String("connectionID", b.ID()))

		case <-h.stop:
			return
		}
	}
}

// ActiveCount returns the number of registered bridges.
func (h *Hub) ActiveCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.bridges)
}

// HandleWebSocket upgrades the request and attaches a bridge to it.
func (h *Hub) HandleWebSocket(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return err
	}

	if _, err := h.Attach(conn); err != nil {
		// The client has already been told; the upgrade itself succeeded.
		h.logger.Warn("Bridge rejected client", zap.Error(err))
	}
	return nil
}

// Attach bridges an already upgraded client connection and registers it.
func (h *Hub) Attach(conn ClientConn) (*Bridge, error) {
	deps := h.deps
	deps.OnClose = func(b *Bridge) {
		select {
		case h.unregister <- b:
		case <-h.stop:
		}
	}

	// The request context ends with the handler, so bridges live under the hub's.
	b, err := Attach(h.ctx, conn, h.dialer, deps)
	if err != nil {
		return b, err
	}

	select {
	case h.register <- b:
	case <-h.stop:
		b.Close()
	}
	return b, nil
}

// Shutdown tears down every live bridge and stops the hub loop. It returns
// when all bridges finished or ctx expires.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.RLock()
	live := make([]*Bridge, 0, len(h.bridges))
	for _, b := range h.bridges {
		live = append(live, b)
	}
	h.mu.RUnlock()

	h.logger.Info("Shutting down bridges", zap.Int("count", len(live)))

	var wg sync.WaitGroup
	for _, b := range live {
		wg.Add(1)
		go func(b *Bridge) {
			defer wg.Done()
			b.Close()
		}(b)
	}

	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		err = ctx.Err()
	}

	h.cancel()
	h.stopOnce.Do(func() {
		close(h.stop)
	})
	return err
}
