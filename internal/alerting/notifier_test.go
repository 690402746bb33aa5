package alerting

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"spreadwatch/internal/series"
)

func testNote() Notification {
	return Notification{
		Key:          series.Key{Symbol: "BTC", Exchange1: "paradex", Exchange2: "backpack", TimeFrame: series.TimeFrame1h},
		At:           time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		SpreadPct:    decimal.RequireFromString("0.8125"),
		ThresholdPct: decimal.RequireFromString("0.5"),
		Direction:    DirectionPositive,
		BuyExchange:  "paradex",
		SellExchange: "backpack",
		Channels:     []string{"telegram"},
	}
}

func TestTelegramNotifierSuccess(t *testing.T) {
	received := make(map[string]string)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/bottoken/sendMessage" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err != nil {
		t.Fatalf("notify should succeed: %v", err)
	}

	if received["chat_id"] != "chat" {
		t.Fatalf("wrong chat_id: %#v", received)
	}
	if !strings.Contains(received["text"], "Spread: 0.813% (threshold 0.500%)") {
		t.Fatalf("text misses the spread line: %q", received["text"])
	}
	if !strings.Contains(received["text"], "Buy on paradex, sell on backpack") {
		t.Fatalf("text misses the direction line: %q", received["text"])
	}
}

func TestTelegramNotifierError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false})
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	if err := notifier.Notify(context.Background(), testNote()); err == nil {
		t.Fatal("ok=false should fail")
	}
}

func TestTelegramNotifierHTTPStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	notifier := NewTelegramNotifier("token", "chat", srv.URL, time.Second, testLogger())
	err := notifier.Notify(context.Background(), testNote())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("expected a 401 error, got %v", err)
	}
}

func TestRenderMessage(t *testing.T) {
	msg := RenderMessage(testNote())
	if !strings.HasPrefix(msg, "[Spread Alert]\n") {
		t.Fatalf("missing header: %q", msg)
	}
	for _, want := range []string{"Symbol: BTC", "Pair: paradex / backpack (1h)", "At: 2024-05-01T12:00:00Z UTC"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message misses %q:\n%s", want, msg)
		}
	}
}

type recordingNotifier struct {
	notes []Notification
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notification) error {
	r.notes = append(r.notes, n)
	return r.err
}

func TestMultiJoinsErrors(t *testing.T) {
	a := &recordingNotifier{err: errors.New("a failed")}
	b := &recordingNotifier{}
	err := Multi{a, b, NewLogNotifier(testLogger())}.Notify(context.Background(), testNote())
	if err == nil {
		t.Fatal("error of the first notifier should be returned")
	}
	if len(b.notes) != 1 {
		t.Fatalf("later notifiers should still run, got %d notes", len(b.notes))
	}
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
