package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/infra"
)

// collector buffers events for assertions.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handler(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *collector) count(t EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func (c *collector) firstUpdate() *Update {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Type == EventUpdate && ev.Update != nil {
			return ev.Update
		}
	}
	return nil
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

var upgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// wsServer upgrades each connection, consumes the subscribe handshake and
// hands the socket to fn.
func wsServer(t *testing.T, fn func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		fn(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func fastRetry() infra.RetryPolicy {
	return infra.RetryPolicy{MaxAttempts: 3, Delay: 5 * time.Millisecond}
}

func TestSupervisor_ExhaustedRetriesEnterSimulatedOnce(t *testing.T) {
	sup := NewSupervisor(Config{
		URL:         "ws://127.0.0.1:1", // nothing listens here
		Markets:     []string{"BTC"},
		Retry:       fastRetry(),
		SimInterval: 10 * time.Millisecond,
	}, nil)
	col := &collector{}
	sup.Subscribe(col.handler)
	defer sup.Disconnect()

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		return sup.State() == domain.StateSimulated
	})

	// Let the synthetic feed tick a few times.
	time.Sleep(50 * time.Millisecond)

	if n := col.count(EventSimulatedMode); n != 1 {
		t.Errorf("simulated_mode events = %d, want exactly 1", n)
	}
	if col.count(EventUpdate) == 0 {
		t.Error("expected synthetic updates while in SIMULATED mode")
	}
	if upd := col.firstUpdate(); upd != nil && !upd.Synthetic {
		t.Error("updates in SIMULATED mode must be flagged synthetic")
	}
}

func TestSupervisor_ManualConnectResetsAttempts(t *testing.T) {
	sup := NewSupervisor(Config{
		URL:         "ws://127.0.0.1:1",
		Markets:     []string{"BTC"},
		Retry:       fastRetry(),
		SimInterval: time.Hour,
	}, nil)
	defer sup.Disconnect()

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return sup.State() == domain.StateSimulated
	})
	if sup.Attempts() < 3 {
		t.Fatalf("attempts = %d, want budget exhausted at 3", sup.Attempts())
	}

	// A manual Connect leaves SIMULATED and retries from a clean counter.
	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() after SIMULATED error = %v", err)
	}
	if st := sup.State(); st == domain.StateSimulated {
		t.Error("manual Connect should leave SIMULATED state")
	}
}

func TestSupervisor_ConnectsAndDeliversUpdates(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		conn.WriteJSON(map[string]any{
			"channel": "ticker",
			"market":  "BTC",
			"price":   "50000.5",
		})
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	sup := NewSupervisor(Config{
		URL:     wsURL(srv),
		Markets: []string{"BTC"},
		Retry:   fastRetry(),
	}, nil)
	col := &collector{}
	sup.Subscribe(col.handler)
	defer sup.Disconnect()

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		return col.count(EventUpdate) > 0
	})

	if col.count(EventConnected) == 0 {
		t.Error("expected a connected event")
	}
	upd := col.firstUpdate()
	if upd == nil {
		t.Fatal("no update delivered")
	}
	if upd.Market != "BTC" || upd.Price != 50000.5 {
		t.Errorf("update = %+v, want market BTC price 50000.5", upd)
	}
	if upd.Synthetic {
		t.Error("live update must not be flagged synthetic")
	}
}

func TestSupervisor_DropTriggersReconnect(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		// Close immediately to force a drop after a successful connect.
	})
	defer srv.Close()

	sup := NewSupervisor(Config{
		URL:     wsURL(srv),
		Markets: []string{"BTC"},
		Retry:   infra.RetryPolicy{MaxAttempts: 100, Delay: 10 * time.Millisecond},
	}, nil)
	col := &collector{}
	sup.Subscribe(col.handler)
	defer sup.Disconnect()

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		return col.count(EventDisconnected) > 0 && col.count(EventConnected) >= 2
	})
}

func TestSupervisor_SendRejectedWhenNotConnected(t *testing.T) {
	sup := NewSupervisor(Config{
		URL:     "ws://127.0.0.1:1",
		Markets: []string{"BTC"},
		Retry:   fastRetry(),
	}, nil)

	err := sup.StartTrading()
	if err == nil {
		t.Fatal("expected error sending while DISCONNECTED")
	}
	if !strings.Contains(err.Error(), domain.ErrNotConnected.Error()) {
		t.Errorf("error = %v, want wrapped ErrNotConnected", err)
	}
}

func TestSupervisor_ConnectIdempotentWhileRunning(t *testing.T) {
	srv := wsServer(t, func(conn *websocket.Conn) {
		time.Sleep(300 * time.Millisecond)
	})
	defer srv.Close()

	sup := NewSupervisor(Config{
		URL:     wsURL(srv),
		Markets: []string{"BTC"},
		Retry:   fastRetry(),
	}, nil)
	defer sup.Disconnect()

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		return sup.State() == domain.StateConnected
	})

	// Further Connects while live are no-ops.
	for i := 0; i < 3; i++ {
		if err := sup.Connect(); err != nil {
			t.Errorf("Connect() #%d error = %v", i, err)
		}
	}
	if sup.State() != domain.StateConnected {
		t.Errorf("state = %s, want CONNECTED", sup.State())
	}
}

func TestSupervisor_DisconnectIsFinal(t *testing.T) {
	sup := NewSupervisor(Config{
		URL:     "ws://127.0.0.1:1",
		Markets: []string{"BTC"},
		Retry:   fastRetry(),
	}, nil)

	if err := sup.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	sup.Disconnect()

	if st := sup.State(); st != domain.StateDisconnected {
		t.Errorf("state = %s, want DISCONNECTED", st)
	}
}
