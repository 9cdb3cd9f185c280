package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"todo-api/pkg/eventgraph"
	"todo-api/pkg/task"
)

// maxBodyBytes caps request payloads.
const maxBodyBytes = 1 << 20

// Server is the HTTP API server.
type Server struct {
	tasks   *task.Service
	events  eventgraph.EventStore
	bus     *eventgraph.Bus
	logger  *log.Logger
	mux     *http.ServeMux
	handler http.Handler
	newID   func() string

	// pollEvery paces the event stream when there is no Bus.
	pollEvery time.Duration

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a new Server. When events is a *eventgraph.Bus the event
// stream is push-based; otherwise it polls the store.
func New(tasks *task.Service, events eventgraph.EventStore, logger *log.Logger) *Server {
	s := &Server{
		tasks:     tasks,
		events:    events,
		logger:    logger,
		mux:       http.NewServeMux(),
		newID:     func() string { return uuid.Must(uuid.NewV7()).String() },
		pollEvery: pollInterval,
		closed:    make(chan struct{}),
	}
	if bus, ok := events.(*eventgraph.Bus); ok {
		s.bus = bus
	}
	s.routes()
	s.handler = s.logRequests(s.mux)
	return s
}

// CloseStreams ends every open and future event stream.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Tasks
	s.mux.HandleFunc("POST /tasks", s.handleTaskCreate)
	s.mux.HandleFunc("GET /tasks", s.handleTaskList)
	s.mux.HandleFunc("PUT /tasks", s.handleTaskUpdate)
	s.mux.HandleFunc("DELETE /tasks", s.handleTaskDelete)
	s.mux.HandleFunc("GET /tasks/{id}", s.handleTaskGet)
	s.mux.HandleFunc("PATCH /tasks/{id}/complete", s.handleTaskComplete)
	s.mux.HandleFunc("PATCH /tasks/{id}/percent", s.handleTaskPercent)
	s.mux.HandleFunc("PATCH /tasks/today", s.handleTaskWindow("today", s.tasks.ListForToday))
	s.mux.HandleFunc("PATCH /tasks/nextDay", s.handleTaskWindow("the next day", s.tasks.ListForNextDay))
	s.mux.HandleFunc("PATCH /tasks/week", s.handleTaskWindow("this week", s.tasks.ListForCurrentWeek))

	// Events
	s.mux.HandleFunc("GET /events", s.handleEventList)
	s.mux.HandleFunc("GET /events/verify", s.handleEventVerify)
	s.mux.HandleFunc("GET /events/stream", s.handleEventStream)
	s.mux.HandleFunc("GET /events/{id}", s.handleEventGet)

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /status", s.handleStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	taskCount, err := s.tasks.Count(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	eventCount, err := s.events.Count(ctx)
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	status := map[string]any{
		"tasks":  taskCount,
		"events": eventCount,
	}
	if s.bus != nil {
		status["subscribers"] = s.bus.Subscribers()
	}
	writeJSON(w, 200, status)
}

// serviceError maps a task service error onto a response.
func (s *Server) serviceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, task.ErrInvalidInput):
		writeError(w, 400, err.Error())
	case errors.Is(err, task.ErrDuplicateID):
		writeError(w, 409, err.Error())
	default:
		s.internalError(w, r, err)
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	writeError(w, 500, err.Error())
}

// logRequests logs one line per request with its status and duration.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps the event stream working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("write json", "err", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return defaultVal
	}
	return n
}
