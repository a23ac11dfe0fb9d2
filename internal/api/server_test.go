package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tycoon/internal/catalog"
	"tycoon/internal/config"
	"tycoon/internal/events"
	"tycoon/internal/game"
	"tycoon/internal/market"
	"tycoon/internal/modal"
)

func newTestServer(t *testing.T) (*httptest.Server, *game.Session) {
	t.Helper()
	hub := NewHub(nil)
	sess, err := game.New(game.Options{
		Config: config.SimConfig{
			HourEvery:     time.Hour,
			StartSpeed:    1,
			StartingCash:  10_000,
			WinTarget:     1_000_000,
			InterestRate:  0.05,
			EventMinHours: 10_000,
			EventMaxHours: 10_000,
			XPBase:        100,
			XPCurve:       1.2,
			Seed:          7,
		},
		Catalogue: catalog.Catalogue{
			Instruments: []market.Instrument{{ID: "ACME", Name: "Acme Corp", Industry: "Industrials", Price: 50}},
			Events:      []events.Template{{ID: "gift", Title: "Gift", Effect: events.EffectBonus, Value: 100}},
		},
		Presenter: hub,
		SkipIntro: true,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.Run(ctx) }()
	go func() { _ = sess.Modals().Run(ctx) }()

	srv := httptest.NewServer(New(Options{Session: sess, Hub: hub}).Handler())
	t.Cleanup(srv.Close)
	return srv, sess
}

func do(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	res, err := srv.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer res.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func TestStatusMapping(t *testing.T) {
	srv, _ := newTestServer(t)
	tests := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{name: "health", method: http.MethodGet, path: "/healthz", want: http.StatusOK},
		{name: "dashboard", method: http.MethodGet, path: "/v1/dashboard", want: http.StatusOK},
		{name: "unknown stock", method: http.MethodGet, path: "/v1/stocks/ZZZ", want: http.StatusNotFound},
		{name: "unknown event", method: http.MethodPost, path: "/v1/events/nope/trigger", want: http.StatusNotFound},
		{name: "negative loan", method: http.MethodPost, path: "/v1/loans/take", body: map[string]any{"amount": -5}, want: http.StatusBadRequest},
		{name: "repay without loan", method: http.MethodPost, path: "/v1/loans/repay", body: map[string]any{"amount": 5}, want: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/v1/loans/take", body: map[string]any{"amt": 5}, want: http.StatusBadRequest},
		{name: "unaffordable order", method: http.MethodPost, path: "/v1/orders", body: map[string]any{"instrument_id": "ACME", "side": "buy", "quantity": 1000}, want: http.StatusBadRequest},
		{name: "bad side", method: http.MethodPost, path: "/v1/orders", body: map[string]any{"instrument_id": "ACME", "side": "short", "quantity": 1}, want: http.StatusBadRequest},
		{name: "bad modal id", method: http.MethodPost, path: "/v1/modals/xyz/respond", body: map[string]any{"answer": true}, want: http.StatusBadRequest},
		{name: "no active modal", method: http.MethodGet, path: "/v1/modals/active", want: http.StatusNoContent},
		{name: "negative speed", method: http.MethodPost, path: "/v1/clock/speed", body: map[string]any{"multiplier": -1}, want: http.StatusBadRequest},
	}
	for _, tc := range tests {
		res, body := do(t, srv, tc.method, tc.path, tc.body)
		if res.StatusCode != tc.want {
			t.Fatalf("%s: status=%d want %d body=%v", tc.name, res.StatusCode, tc.want, body)
		}
	}
}

func TestLoanAndClockControls(t *testing.T) {
	srv, sess := newTestServer(t)

	res, body := do(t, srv, http.MethodPost, "/v1/loans/take", map[string]any{"amount": 2_000})
	if res.StatusCode != http.StatusOK || body["cash"] != float64(12_000) {
		t.Fatalf("take loan status=%d body=%v", res.StatusCode, body)
	}
	res, _ = do(t, srv, http.MethodPost, "/v1/clock/pause", nil)
	if res.StatusCode != http.StatusOK || !sess.ClockState().Paused {
		t.Fatalf("pause status=%d state=%+v", res.StatusCode, sess.ClockState())
	}
	res, body = do(t, srv, http.MethodPost, "/v1/clock/speed", map[string]any{"multiplier": 4})
	if res.StatusCode != http.StatusOK || body["speed"] != float64(4) {
		t.Fatalf("speed status=%d body=%v", res.StatusCode, body)
	}
}

func TestResetStartsOver(t *testing.T) {
	srv, sess := newTestServer(t)
	if err := sess.TakeLoan(2_000); err != nil {
		t.Fatalf("take loan: %v", err)
	}
	res, body := do(t, srv, http.MethodPost, "/v1/reset", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reset status=%d body=%v", res.StatusCode, body)
	}
	l, ok := body["ledger"].(map[string]any)
	if !ok || l["cash"] != float64(10_000) || l["loan_principal"] != float64(0) {
		t.Fatalf("ledger after reset %v", body["ledger"])
	}
	if sess.Ended() || sess.Ledger().Debt != 0 {
		t.Fatalf("session after reset %+v", sess.Ledger())
	}
}

func TestOrderWaitsForModalAnswer(t *testing.T) {
	srv, sess := newTestServer(t)

	type reply struct {
		status int
		body   map[string]any
	}
	done := make(chan reply, 1)
	go func() {
		res, body := do(t, srv, http.MethodPost, "/v1/orders", map[string]any{"instrument_id": "acme", "side": "buy", "quantity": 3})
		done <- reply{res.StatusCode, body}
	}()

	var active modal.Prompt
	deadline := time.Now().Add(2 * time.Second)
	for {
		p, ok := sess.Modals().Active()
		if ok {
			active = p
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("order never reached the modal queue")
		}
		time.Sleep(time.Millisecond)
	}
	if active.Kind != modal.KindConfirm {
		t.Fatalf("active prompt %+v", active)
	}

	res, body := do(t, srv, http.MethodPost, "/v1/modals/"+active.ID.String()+"/respond", map[string]any{"answer": true})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("respond status=%d body=%v", res.StatusCode, body)
	}

	select {
	case r := <-done:
		if r.status != http.StatusOK || r.body["held"] != float64(3) || r.body["cash"] != float64(9_850) {
			t.Fatalf("order status=%d body=%v", r.status, r.body)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("order did not complete after the answer")
	}
}

func TestJournalEmptyByDefault(t *testing.T) {
	srv, _ := newTestServer(t)
	res, body := do(t, srv, http.MethodGet, "/v1/journal?limit=5", nil)
	entries, ok := body["entries"].([]any)
	if res.StatusCode != http.StatusOK || !ok || len(entries) != 0 {
		t.Fatalf("journal status=%d body=%v", res.StatusCode, body)
	}
	if res, _ := do(t, srv, http.MethodGet, "/v1/journal?limit=0", nil); res.StatusCode != http.StatusBadRequest {
		t.Fatalf("limit=0 status=%d", res.StatusCode)
	}
}
