// Package gateway exposes tags over HTTP: a JSON read/write API and a
// websocket stream of periodic readings.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/edgeo/drivers/modbus/internal/sink"
	"github.com/edgeo/drivers/modbus/modbus"
)

const (
	defaultInterval = time.Second
	minInterval     = 10 * time.Millisecond
	writeWait       = 5 * time.Second
)

// TagReadWriter is satisfied by *modbus.Client and *modbus.UmasSession
type TagReadWriter interface {
	ReadTag(ctx context.Context, address string) (interface{}, error)
	WriteTag(ctx context.Context, address string, value interface{}) error
}

// Server serves the tag API
type Server struct {
	tags     TagReadWriter
	sink     sink.Sink
	logger   *slog.Logger
	timeout  time.Duration
	upgrader websocket.Upgrader
}

// Option configures a Server
type Option func(*Server)

// WithSink forwards every reading served to s
func WithSink(s sink.Sink) Option {
	return func(srv *Server) { srv.sink = s }
}

// WithRequestTimeout bounds each device access
func WithRequestTimeout(d time.Duration) Option {
	return func(srv *Server) { srv.timeout = d }
}

// New creates a Server for tags
func New(tags TagReadWriter, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		tags:    tags,
		logger:  logger,
		timeout: 5 * time.Second,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the routes of the API
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.baseHandler).Methods(http.MethodGet)
	r.HandleFunc("/tags/{tag}", s.readHandler).Methods(http.MethodGet)
	r.HandleFunc("/tags/{tag}", s.writeHandler).Methods(http.MethodPut, http.MethodPost)
	r.HandleFunc("/stream", s.streamHandler).Methods(http.MethodGet)
	r.Use(s.logRequests)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("elapsed", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps a device error to an HTTP status
func statusFor(err error) int {
	var parseErr *modbus.FieldParseError
	switch {
	case errors.As(err, &parseErr),
		errors.Is(err, modbus.ErrInvalidValue),
		errors.Is(err, modbus.ErrUnsupportedDataType):
		return http.StatusBadRequest
	case errors.Is(err, modbus.ErrTagNotFound):
		return http.StatusNotFound
	case errors.Is(err, modbus.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case modbus.IsException(err):
		return http.StatusBadGateway
	}
	return http.StatusServiceUnavailable
}

func (s *Server) baseHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// read samples one tag and forwards good readings to the sink
func (s *Server) read(ctx context.Context, tag string) (sink.Reading, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	v, err := s.tags.ReadTag(ctx, tag)
	reading := sink.NewReading(tag, v, err)
	if s.sink != nil && err == nil {
		if serr := s.sink.Write(ctx, reading); serr != nil {
			s.logger.Warn("sink write failed", slog.String("tag", tag), slog.String("error", serr.Error()))
		}
	}
	return reading, err
}

func (s *Server) readHandler(w http.ResponseWriter, r *http.Request) {
	reading, err := s.read(r.Context(), mux.Vars(r)["tag"])
	if err != nil {
		writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, reading)
}

type writeRequest struct {
	Value interface{} `json:"value"`
}

func (s *Server) writeHandler(w http.ResponseWriter, r *http.Request) {
	tag := mux.Vars(r)["tag"]
	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed JSON: " + err.Error()})
		return
	}
	if req.Value == nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing value"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()
	if err := s.tags.WriteTag(ctx, tag, req.Value); err != nil {
		writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
		return
	}
	s.logger.Info("tag written", slog.String("tag", tag))
	w.WriteHeader(http.StatusNoContent)
}

// streamHandler upgrades to a websocket and pushes a reading of every
// ?tag= parameter each ?interval= until the peer goes away.
func (s *Server) streamHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tags := q["tag"]
	if len(tags) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "no tag parameter"})
		return
	}
	interval := defaultInterval
	if v := q.Get("interval"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < minInterval {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid interval " + v})
			return
		}
		interval = d
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	// the read side only notices the close frame
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for _, tag := range tags {
			reading, _ := s.read(r.Context(), tag)
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(reading); err != nil {
				s.logger.Debug("websocket closed", slog.String("error", err.Error()))
				return
			}
		}
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
