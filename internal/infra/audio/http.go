package audio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"voice-chat/internal/domain"
)

const (
	maxUploadBytes = 10 * 1024 * 1024
	queueFrames    = 1024
	shutdownGrace  = 500 * time.Millisecond
)

// HTTPSource is a remote microphone: clients push raw 16-bit little-endian
// PCM to POST /audio and the source emits it frame by frame at capture
// cadence, filling gaps with silence.
type HTTPSource struct {
	addr         string
	authToken    string
	frameSamples int
	interval     time.Duration
	logger       *slog.Logger

	router      chi.Router
	rateLimiter *RateLimiter
	frames      chan domain.AudioFrame

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	ticker   *time.Ticker
	running  bool
	stopped  bool
	pending  domain.AudioFrame
}

func NewHTTPSource(addr, authToken string, sampleRate, frameSamples int, logger *slog.Logger) *HTTPSource {
	h := &HTTPSource{
		addr:         addr,
		authToken:    authToken,
		frameSamples: frameSamples,
		interval:     frameDuration(frameSamples, sampleRate),
		logger:       logger,
		rateLimiter:  NewRateLimiter(120, time.Minute),
		frames:       make(chan domain.AudioFrame, queueFrames),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Get("/health", h.handleHealth)
	r.With(h.rateLimiter.Middleware, h.authenticate).Post("/audio", h.handleAudio)
	h.router = r

	return h
}

func (h *HTTPSource) Name() string {
	return "http"
}

func (h *HTTPSource) Handler() http.Handler {
	return h.router
}

func (h *HTTPSource) Start(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return fmt.Errorf("%w: http source already listening on %s", domain.ErrDevice, h.addr)
	}

	ln, err := net.Listen("tcp", h.addr)
	if err != nil {
		return fmt.Errorf("%w: listening on %s: %w", domain.ErrDevice, h.addr, err)
	}

	server := &http.Server{
		Handler:      h.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	h.server = server
	h.listener = ln

	go func() {
		h.logger.Info("HTTP audio server starting", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", "error", err)
		}
	}()

	h.ticker = time.NewTicker(h.interval)
	h.running = true
	h.stopped = false
	return nil
}

// Addr is the bound listen address while the source runs, or the configured
// one otherwise.
func (h *HTTPSource) Addr() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.listener != nil {
		return h.listener.Addr().String()
	}
	return h.addr
}

// Stop ends the frame sequence and shuts the server down. Uploads still in
// flight get shutdownGrace to finish before their connections are closed.
func (h *HTTPSource) Stop() error {
	h.mu.Lock()
	h.stopped = true
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.running = false

	if h.ticker != nil {
		h.ticker.Stop()
		h.ticker = nil
	}
	server := h.server
	h.server = nil
	h.listener = nil
	h.mu.Unlock()

	if server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		h.logger.Warn("graceful shutdown failed, forcing close", "error", err)
		if err := server.Close(); err != nil {
			return fmt.Errorf("closing server: %w", err)
		}
	}
	return nil
}

// NextFrame waits one frame interval and returns the next queued frame, or
// silence when no client audio is pending.
func (h *HTTPSource) NextFrame(ctx context.Context) (domain.AudioFrame, error) {
	h.mu.Lock()
	ticker := h.ticker
	closed := h.stopped || !h.running
	h.mu.Unlock()

	if closed || ticker == nil {
		return nil, domain.ErrSourceClosed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-ticker.C:
	}

	select {
	case frame := <-h.frames:
		return frame, nil
	default:
		return domain.NewSilenceFrame(h.frameSamples), nil
	}
}

// InjectAudio queues PCM as frames and reports how many were accepted. A
// partial trailing frame is held until more audio arrives.
func (h *HTTPSource) InjectAudio(pcm []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	samples := append(h.pending, domain.FrameFromBytes(pcm)...)
	queued := 0
	for len(samples) >= h.frameSamples {
		frame := make(domain.AudioFrame, h.frameSamples)
		copy(frame, samples[:h.frameSamples])
		select {
		case h.frames <- frame:
			queued++
		default:
			h.pending = nil
			return queued
		}
		samples = samples[h.frameSamples:]
	}
	h.pending = append(domain.AudioFrame(nil), samples...)
	return queued
}

func (h *HTTPSource) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.authToken == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := r.Header.Get("X-Auth-Token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if token == "" {
			token = r.URL.Query().Get("token")
		}

		if token != h.authToken {
			h.logger.Warn("unauthorized audio upload", "remote_addr", r.RemoteAddr)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *HTTPSource) handleAudio(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		h.logger.Error("reading audio body", "error", err)
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		http.Error(w, "empty audio", http.StatusBadRequest)
		return
	}
	if isWAV(data) {
		pcm, _, err := decodeWAV(data)
		if err != nil {
			http.Error(w, "invalid wav: "+err.Error(), http.StatusBadRequest)
			return
		}
		data = pcm
	}

	want := (len(data) / 2) / h.frameSamples
	queued := h.InjectAudio(data)
	if queued < want {
		h.logger.Warn("audio queue full, dropping frames", "queued", queued, "dropped", want-queued)
		http.Error(w, "queue full, try again", http.StatusServiceUnavailable)
		return
	}

	h.logger.Debug("received audio via HTTP", "bytes", len(data), "frames", queued)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "received",
		"bytes":  len(data),
		"frames": queued,
	})
}

func (h *HTTPSource) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"queued": len(h.frames),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
