package mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const maxLogs = 1000

// Server is an in-memory shopping-cart service with failure injection
type Server struct {
	config     *Config
	store      *Store
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
	logs       []RequestLog
	logsMutex  sync.RWMutex
	rngMu      sync.Mutex
	rng        *rand.Rand
	notifyCh   chan struct{} // Channel to notify when new log arrives
}

// NewServer creates a new mock server
func NewServer(config *Config, logger *zap.Logger) *Server {
	if config.Host == "" {
		config.Host = "localhost"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Server{
		config:   config,
		store:    NewStore(config.StringIDs),
		logger:   logger,
		logs:     make([]RequestLog, 0),
		rng:      rand.New(rand.NewSource(seed)),
		notifyCh: make(chan struct{}, 100), // Buffered channel for notifications
	}
}

// Handler returns the HTTP handler of the service
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/shopping-carts", s.handleRequest)
	mux.HandleFunc("/shopping-carts/", s.handleRequest)
	return mux
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Mock server error", zap.Error(err))
		}
	}()

	s.logger.Info("Mock cart service listening",
		zap.String("address", s.GetAddress()),
		zap.Bool("string_ids", s.config.StringIDs),
	)
	return nil
}

// Stop stops the mock server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(ctx)
}

// Store returns the cart store
func (s *Server) Store() *Store {
	return s.store
}

// handleRequest routes the three cart endpoints
func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	bodyBytes, _ := io.ReadAll(r.Body)
	r.Body.Close()

	if s.config.DelayMs > 0 {
		select {
		case <-time.After(time.Duration(s.config.DelayMs) * time.Millisecond):
		case <-r.Context().Done():
			return
		}
	}

	rec := &statusRecorder{ResponseWriter: w}
	injected := s.inject(rec, r)
	if !injected {
		s.route(rec, r, bodyBytes)
	}

	if s.config.Logging {
		s.logRequest(RequestLog{
			Timestamp: start,
			Method:    r.Method,
			Path:      r.URL.Path,
			Body:      string(bodyBytes),
			Status:    rec.status,
			Injected:  injected,
			Duration:  time.Since(start),
		})
	}
}

func (s *Server) route(w http.ResponseWriter, r *http.Request, body []byte) {
	after, found := strings.CutPrefix(r.URL.Path, "/shopping-carts/")
	switch {
	case !found && r.Method == http.MethodPost:
		s.createCart(w, body)
	case found && r.Method == http.MethodPost && strings.HasSuffix(after, "/items"):
		s.addItem(w, strings.TrimSuffix(after, "/items"), body)
	case found && r.Method == http.MethodGet && after != "" && !strings.Contains(after, "/"):
		s.getCart(w, after)
	default:
		http.NotFound(w, r)
	}
}

// inject answers with a random failure according to the configured rates
func (s *Server) inject(w http.ResponseWriter, r *http.Request) bool {
	if s.config.ErrorRate == 0 && s.config.NotFoundRate == 0 {
		return false
	}

	s.rngMu.Lock()
	p := s.rng.Float64()
	s.rngMu.Unlock()

	if p < s.config.ErrorRate {
		writeErr(w, http.StatusInternalServerError, "INJECTED_ERROR", "injected failure")
		return true
	}
	isCartRequest := strings.HasPrefix(r.URL.Path, "/shopping-carts/")
	if isCartRequest && p < s.config.ErrorRate+s.config.NotFoundRate {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "shopping cart not found")
		return true
	}
	return false
}

func (s *Server) createCart(w http.ResponseWriter, body []byte) {
	var req createCartRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid JSON")
		return
	}
	if req.CustomerID < 1 {
		writeErr(w, http.StatusBadRequest, "INVALID_INPUT", "customer_id must be >= 1")
		return
	}

	id := s.store.Create(req.CustomerID)
	writeJSON(w, http.StatusCreated, createCartResponse{ShoppingCartID: s.store.wireID(id)})
}

func (s *Server) addItem(w http.ResponseWriter, id string, body []byte) {
	if !s.validID(id) {
		writeErr(w, http.StatusBadRequest, "INVALID_INPUT", "shoppingCartId must be a positive integer")
		return
	}

	var req addItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeErr(w, http.StatusBadRequest, "INVALID_INPUT", "Invalid JSON")
		return
	}
	if req.ProductID < 1 || req.Quantity < 0 {
		writeErr(w, http.StatusBadRequest, "INVALID_INPUT", "product_id must be >=1 and quantity >=0")
		return
	}

	if !s.store.SetItem(id, req.ProductID, req.Quantity) {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "shopping cart not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getCart(w http.ResponseWriter, id string) {
	if !s.validID(id) {
		writeErr(w, http.StatusBadRequest, "INVALID_INPUT", "shoppingCartId must be positive int")
		return
	}

	c, items, ok := s.store.Get(id)
	if !ok {
		writeErr(w, http.StatusNotFound, "NOT_FOUND", "cart not found")
		return
	}
	writeJSON(w, http.StatusOK, getCartResponse{Cart: c, Items: items})
}

// validID checks the id format of the active id mode
func (s *Server) validID(id string) bool {
	if s.config.StringIDs {
		return id != ""
	}
	n, err := strconv.ParseInt(id, 10, 64)
	return err == nil && n >= 1
}

// logRequest adds a request to the log
func (s *Server) logRequest(log RequestLog) {
	s.logsMutex.Lock()
	defer s.logsMutex.Unlock()

	s.logs = append(s.logs, log)

	// Keep only the most recent logs
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}

	// Notify listeners (non-blocking)
	select {
	case s.notifyCh <- struct{}{}:
	default:
	}
}

// NotifyChannel returns the notification channel
func (s *Server) NotifyChannel() <-chan struct{} {
	return s.notifyCh
}

// GetLogs returns all logged requests
func (s *Server) GetLogs() []RequestLog {
	s.logsMutex.RLock()
	defer s.logsMutex.RUnlock()

	logs := make([]RequestLog, len(s.logs))
	copy(logs, s.logs)
	return logs
}

// GetAddress returns the server base URL
func (s *Server) GetAddress() string {
	if s.listener != nil {
		return "http://" + s.listener.Addr().String()
	}
	return "http://" + net.JoinHostPort(s.config.Host, strconv.Itoa(s.config.Port))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeErr(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, apiError{Error: code, Message: msg})
}

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}
