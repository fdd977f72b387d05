package api

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"marketradar/models"
	"marketradar/status"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealthEndpoint(t *testing.T) {
	router := NewRouter(func() bool { return true }, status.NewBroadcaster())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestTriggerAcceptedAndRejected(t *testing.T) {
	accepted := true
	router := NewRouter(func() bool { return accepted }, status.NewBroadcaster())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/scraper/trigger", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("accepted trigger status = %d, want 202", w.Code)
	}

	accepted = false
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/scraper/trigger", nil))
	if w.Code != http.StatusConflict {
		t.Fatalf("rejected trigger status = %d, want 409", w.Code)
	}
}

func TestStatusSnapshot(t *testing.T) {
	bcast := status.NewBroadcaster()
	bcast.Update(func(s *models.RunStatus) {
		s.Status = models.RunRunning
		s.Progress = 42
		s.CurrentProfile = "Coats"
	})
	router := NewRouter(func() bool { return true }, bcast)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/scraper/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "running" {
		t.Fatalf("status field = %v", body["status"])
	}
	if body["progress"] != float64(42) {
		t.Fatalf("progress field = %v", body["progress"])
	}
	if body["currentProfile"] != "Coats" {
		t.Fatalf("currentProfile field = %v", body["currentProfile"])
	}
}

func TestStatusStreamSendsSnapshotFirst(t *testing.T) {
	bcast := status.NewBroadcaster()
	bcast.Update(func(s *models.RunStatus) {
		s.Status = models.RunRunning
		s.Progress = 10
	})
	router := NewRouter(func() bool { return true }, bcast)

	server := httptest.NewServer(router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/scraper/status/stream", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("connect stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Fatalf("content type = %q", got)
	}

	scanner := bufio.NewScanner(resp.Body)
	var event, data string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		}
		if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			break
		}
	}
	if event != "status" {
		t.Fatalf("first event = %q, want status", event)
	}

	var snap map[string]any
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		t.Fatalf("decode event payload %q: %v", data, err)
	}
	if snap["progress"] != float64(10) {
		t.Fatalf("streamed progress = %v, want 10", snap["progress"])
	}
}
