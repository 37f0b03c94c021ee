package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stockplus/kisfeed/internal/broadcast"
	"github.com/stockplus/kisfeed/internal/config"
	"github.com/stockplus/kisfeed/internal/model"
	"github.com/stockplus/kisfeed/internal/session"
)

type fakeStatus struct {
	stats session.ManagerStats
}

func (f *fakeStatus) Stats() session.ManagerStats { return f.stats }

func newTestServer(t *testing.T) (*Server, *broadcast.Hub, *httptest.Server) {
	t.Helper()
	hub := broadcast.NewHub(16)
	srv := New(config.ServerConfig{Port: 0}, hub, &fakeStatus{
		stats: session.ManagerStats{State: session.StateStreaming, QuotesPublished: 42},
	}, nil)
	ts := httptest.NewServer(srv.Engine())
	t.Cleanup(ts.Close)
	return srv, hub, ts
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var body struct {
		Status          string `json:"status"`
		SessionState    string `json:"sessionState"`
		Subscribers     int    `json:"subscribers"`
		QuotesPublished int64  `json:"quotesPublished"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode health body: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q, want ok", body.Status)
	}
	if body.SessionState != "streaming" {
		t.Errorf("sessionState = %q, want streaming", body.SessionState)
	}
	if body.QuotesPublished != 42 {
		t.Errorf("quotesPublished = %d, want 42", body.QuotesPublished)
	}
}

func TestStreamDeliversQuotes(t *testing.T) {
	_, hub, ts := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sse/stocks", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get("Content-Type"); !strings.HasPrefix(got, "text/event-stream") {
		t.Errorf("Content-Type = %q, want text/event-stream", got)
	}
	if got := resp.Header.Get("X-Accel-Buffering"); got != "no" {
		t.Errorf("X-Accel-Buffering = %q, want no", got)
	}

	scanner := bufio.NewScanner(resp.Body)

	// First event announces the attachment.
	if !waitForLine(t, scanner, "event:connect") {
		t.Fatal("connect event never arrived")
	}

	if err := hub.Publish(model.Quote{
		Code:  "005930",
		Venue: model.VenuePrimary,
		Price: "70000",
	}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if !waitForLine(t, scanner, "event:priceUpdate") {
		t.Fatal("priceUpdate event never arrived")
	}
	if !waitForLine(t, scanner, `"stockCode":"005930"`) {
		t.Fatal("quote payload never arrived")
	}
}

func TestStreamDetachOnDisconnect(t *testing.T) {
	_, hub, ts := newTestServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/sse/stocks", nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	// Wait for the subscriber to register, then drop the client.
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	deadline = time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never detached after disconnect")
		}
		time.Sleep(time.Millisecond)
	}
}

// waitForLine scans until a line containing want appears.
func waitForLine(t *testing.T, scanner *bufio.Scanner, want string) bool {
	t.Helper()
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), want) {
			return true
		}
	}
	return false
}
