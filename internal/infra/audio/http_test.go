package audio_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voice-chat/internal/domain"
	"voice-chat/internal/infra/audio"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func pcmBytes(samples ...int16) []byte {
	return domain.AudioFrame(samples).Bytes()
}

func TestHTTPSource_InjectedAudioBecomesFrames(t *testing.T) {
	source := audio.NewHTTPSource("127.0.0.1:0", "", 16000, 4, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := source.Start(ctx); err != nil {
		t.Fatalf("starting source: %v", err)
	}
	defer source.Stop()

	if n := source.InjectAudio(pcmBytes(1, 2, 3, 4, 5, 6)); n != 1 {
		t.Fatalf("queued frames: got %d, want 1", n)
	}
	if n := source.InjectAudio(pcmBytes(7, 8)); n != 1 {
		t.Fatalf("queued frames after completing the pending frame: got %d, want 1", n)
	}

	want := []domain.AudioFrame{{1, 2, 3, 4}, {5, 6, 7, 8}}
	for i, w := range want {
		frame, err := source.NextFrame(ctx)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !equalFrames(frame, w) {
			t.Errorf("frame %d: got %v, want %v", i, frame, w)
		}
	}

	frame, err := source.NextFrame(ctx)
	if err != nil {
		t.Fatalf("idle frame: %v", err)
	}
	if len(frame) != 4 || !frame.IsSilent() {
		t.Errorf("idle frame: got %v, want 4 silent samples", frame)
	}
}

func TestHTTPSource_StopEndsFrames(t *testing.T) {
	source := audio.NewHTTPSource("127.0.0.1:0", "", 16000, 16, discardLogger())

	ctx := context.Background()
	if err := source.Start(ctx); err != nil {
		t.Fatalf("starting source: %v", err)
	}
	if err := source.Start(ctx); !errors.Is(err, domain.ErrDevice) {
		t.Errorf("second start: got %v, want ErrDevice", err)
	}

	if err := source.Stop(); err != nil {
		t.Fatalf("stopping source: %v", err)
	}
	if err := source.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}

	if _, err := source.NextFrame(ctx); !errors.Is(err, domain.ErrSourceClosed) {
		t.Errorf("next frame after stop: got %v, want ErrSourceClosed", err)
	}
}

func TestHTTPSource_StartFailsWhenAddressTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserving port: %v", err)
	}
	defer ln.Close()

	source := audio.NewHTTPSource(ln.Addr().String(), "", 16000, 16, discardLogger())

	ctx := context.Background()
	if err := source.Start(ctx); !errors.Is(err, domain.ErrDevice) {
		t.Fatalf("start on a taken port: got %v, want ErrDevice", err)
	}
	if _, err := source.NextFrame(ctx); !errors.Is(err, domain.ErrSourceClosed) {
		t.Errorf("next frame after failed start: got %v, want ErrSourceClosed", err)
	}
	if err := source.Stop(); err != nil {
		t.Errorf("stop after failed start: %v", err)
	}
}

func TestHTTPSource_UploadOverNetwork(t *testing.T) {
	source := audio.NewHTTPSource("127.0.0.1:0", "", 16000, 2, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := source.Start(ctx); err != nil {
		t.Fatalf("starting source: %v", err)
	}
	defer source.Stop()

	resp, err := http.Post("http://"+source.Addr()+"/audio", "application/octet-stream", bytes.NewReader(pcmBytes(3, 4)))
	if err != nil {
		t.Fatalf("posting audio: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status code: got %d, want %d", resp.StatusCode, http.StatusAccepted)
	}

	frame, err := source.NextFrame(ctx)
	if err != nil {
		t.Fatalf("next frame: %v", err)
	}
	if !equalFrames(frame, domain.AudioFrame{3, 4}) {
		t.Errorf("frame: got %v, want [3 4]", frame)
	}
}

func TestHTTPSource_StopWithUploadInFlight(t *testing.T) {
	source := audio.NewHTTPSource("127.0.0.1:0", "", 16000, 2, discardLogger())

	if err := source.Start(context.Background()); err != nil {
		t.Fatalf("starting source: %v", err)
	}

	conn, err := net.Dial("tcp", source.Addr())
	if err != nil {
		t.Fatalf("dialing source: %v", err)
	}
	defer conn.Close()

	// Announce a body far longer than what is sent so the handler keeps reading.
	if _, err := fmt.Fprintf(conn, "POST /audio HTTP/1.1\r\nHost: localhost\r\nContent-Length: 4096\r\n\r\n"); err != nil {
		t.Fatalf("writing request head: %v", err)
	}
	if _, err := conn.Write(pcmBytes(1, 2)); err != nil {
		t.Fatalf("writing partial body: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	done := make(chan error, 1)
	start := time.Now()
	go func() { done <- source.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stopping source: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("stop blocked behind the in-flight upload")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("stop took %v, want under 2s", elapsed)
	}
}

func TestHTTPSource_HandleAudioEndpoint(t *testing.T) {
	source := audio.NewHTTPSource(":0", "", 16000, 2, discardLogger())
	handler := source.Handler()

	req := httptest.NewRequest(http.MethodPost, "/audio", bytes.NewReader(pcmBytes(1, 2, 3, 4)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status code: got %d, want %d", rec.Code, http.StatusAccepted)
	}

	var body struct {
		Status string `json:"status"`
		Frames int    `json:"frames"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body.Status != "received" || body.Frames != 2 {
		t.Errorf("response: got %+v, want received with 2 frames", body)
	}
}

func TestHTTPSource_RejectsEmptyBody(t *testing.T) {
	source := audio.NewHTTPSource(":0", "", 16000, 2, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/audio", http.NoBody)
	rec := httptest.NewRecorder()
	source.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHTTPSource_AudioEndpointWithToken(t *testing.T) {
	authToken := "test-secret-token-123"
	source := audio.NewHTTPSource(":0", authToken, 16000, 2, discardLogger())
	handler := source.Handler()

	tests := []struct {
		name       string
		token      string
		method     string
		wantStatus int
	}{
		{
			name:       "valid token in header",
			token:      authToken,
			method:     "header",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "valid bearer token",
			token:      authToken,
			method:     "bearer",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "valid token in query",
			token:      authToken,
			method:     "query",
			wantStatus: http.StatusAccepted,
		},
		{
			name:       "invalid token",
			token:      "wrong-token",
			method:     "header",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing token",
			token:      "",
			method:     "header",
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := bytes.NewReader(pcmBytes(1, 2))
			var req *http.Request

			switch tt.method {
			case "query":
				req = httptest.NewRequest(http.MethodPost, "/audio?token="+tt.token, body)
			case "bearer":
				req = httptest.NewRequest(http.MethodPost, "/audio", body)
				req.Header.Set("Authorization", "Bearer "+tt.token)
			default:
				req = httptest.NewRequest(http.MethodPost, "/audio", body)
				if tt.token != "" {
					req.Header.Set("X-Auth-Token", tt.token)
				}
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status code: got %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestHTTPSource_Health(t *testing.T) {
	source := audio.NewHTTPSource(":0", "secret", 16000, 2, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	source.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status code: got %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := audio.NewRateLimiter(2, time.Minute)

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("first two requests should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third request within the window should be rejected")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("another client has its own budget")
	}
}

func TestRateLimiter_Middleware(t *testing.T) {
	rl := audio.NewRateLimiter(1, time.Minute)
	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for i, want := range []int{http.StatusNoContent, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/audio", nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("request %d: got %d, want %d", i, rec.Code, want)
		}
	}
}

func equalFrames(a, b domain.AudioFrame) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
