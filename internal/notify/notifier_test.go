package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stockledger/internal/domain"
)

type recordingSender struct {
	mu     sync.Mutex
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	n := NewNotifier([]Sender{rec}, []string{EventPlanExecuted, " "}, discard())

	require.NoError(t, n.Notify(context.Background(), EventPlanTriggered, "skipped", ""))
	require.NoError(t, n.Notify(context.Background(), EventPlanExecuted, "sent", ""))
	require.NoError(t, n.NotifyAll(context.Background(), "forced", ""))

	assert.True(t, n.Enabled())
	assert.Equal(t, []string{"sent", "forced"}, rec.titles)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	n := NewNotifier(nil, nil, discard())
	assert.True(t, n.Allows("anything"))
	assert.False(t, n.Enabled())
}

func TestNotifier_JoinsSenderErrors(t *testing.T) {
	boom := errors.New("boom")
	bad := &recordingSender{name: "bad", err: boom}
	good := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discard())

	err := n.NotifyAll(context.Background(), "title", "msg")
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, good.titles, 1, "a failing sender does not stop the others")
}

func TestTelegramSender(t *testing.T) {
	var (
		gotPath string
		gotBody map[string]string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender(srv.URL+"/", "tok", "42")
	require.NoError(t, s.Send(context.Background(), "Title", "body"))

	assert.Equal(t, "/bottok/sendMessage", gotPath)
	assert.Equal(t, "42", gotBody["chat_id"])
	assert.Equal(t, "*Title*\nbody", gotBody["text"])
	assert.Equal(t, "telegram", s.Name())
}

func TestDiscordSender_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad webhook", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 400")
}

func TestTriggerAlerts(t *testing.T) {
	rec := &recordingSender{name: "rec"}
	alerts := NewTriggerAlerts(NewNotifier([]Sender{rec}, []string{EventPlanExecuted}, discard()))
	at := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)

	advisory := domain.TriggerEvent{PlanID: "p1", Code: "600519", Trigger: domain.TriggerStopLoss, Price: 9, SuggestedQuantity: 100, At: at}
	require.NoError(t, alerts.Emit(context.Background(), advisory))
	assert.Empty(t, rec.titles, "advisories filtered out")

	executed := advisory
	executed.Executed = true
	executed.Trigger = domain.TriggerTakeProfit
	require.NoError(t, alerts.Emit(context.Background(), executed))
	assert.Equal(t, []string{"Take profit executed: 600519"}, rec.titles)

	body := alertBody(advisory)
	assert.Contains(t, body, "600519 (600519) at 9.00, consider selling 100 shares.")
	assert.Contains(t, body, "2024-01-02 10:00:00")
}
