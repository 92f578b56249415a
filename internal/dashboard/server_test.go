package dashboard

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jackzampolin/illustra/internal/progress"
	"github.com/jackzampolin/illustra/internal/state"
	"github.com/jackzampolin/illustra/internal/tokens"
)

func TestHandleHealth(t *testing.T) {
	s, err := New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestHandleState_MatchesDocumentedShape(t *testing.T) {
	st := state.New("run.json", "book.md")
	st.SetStatus("analyze", 1, state.StatusCompleted, "")
	ledger := tokens.NewCostLedger()
	ledger.Record("openai-compatible", 100, 50, 0.01)
	start := time.Now()

	s, err := New(Config{Addr: "127.0.0.1:0", State: st, Ledger: ledger, BookTitle: "My Book", StartTime: start})
	require.NoError(t, err)
	s.Publish(progress.Event{Kind: progress.KindChapterStart, Phase: "analyze", Chapter: 3})

	req := httptest.NewRequest(http.MethodGet, "/api/state", nil)
	rec := httptest.NewRecorder()
	s.handleState(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var snap stateSnapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	require.Equal(t, "My Book", snap.BookTitle)
	require.Equal(t, "analyze", snap.CurrentPhase)
	require.NotNil(t, snap.CurrentChapter)
	require.Equal(t, 3, *snap.CurrentChapter)
	require.InDelta(t, 0.01, snap.Stats["openai-compatible"].CostUSD, 0.0001)
	require.WithinDuration(t, start, snap.StartTime, time.Second)
}

func TestHandleEvents_StreamsPublishedEvent(t *testing.T) {
	sink := progress.NewDashboardSink(nil)
	s, err := New(Config{Addr: "127.0.0.1:0", DashboardSink: sink})
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(s.handleEvents))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// Give the handler a moment to subscribe before publishing.
	deadline := time.Now().Add(time.Second)
	for sink.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, sink.SubscriberCount())

	// The first message on any new connection is always initial-state.
	buf := make([]byte, 512)
	n, err := resp.Body.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), `"type":"initial-state"`)

	sink.Publish(progress.Event{Kind: progress.KindStats, Message: "hello"})

	n, err = resp.Body.Read(buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "hello")
	require.Contains(t, string(buf[:n]), `"type":"stats"`)
}

func TestHandleEvents_NotConfigured(t *testing.T) {
	s, err := New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
	rec := httptest.NewRecorder()
	s.handleEvents(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServer_StartAndShutdown(t *testing.T) {
	s, err := New(Config{Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}
