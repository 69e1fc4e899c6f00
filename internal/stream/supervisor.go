// Package stream keeps a push channel to the exchange alive with bounded
// automatic recovery, degrading to synthetic data when the budget runs out.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/domain"
	"github.com/YeOldeTokenShoppe/HAIL-MARY-sub004/internal/infra"
)

// Config tunes the supervisor.
type Config struct {
	URL         string
	Markets     []string
	Retry       infra.RetryPolicy
	ReadTimeout time.Duration // default 60s
	SimInterval time.Duration // synthetic tick cadence, default 5s
}

// Supervisor wraps the persistent streaming connection. State machine:
// DISCONNECTED -> CONNECTING -> CONNECTED, any drop -> RECONNECTING, and
// after the retry budget is exhausted -> SIMULATED until a manual Connect.
type Supervisor struct {
	cfg Config
	log *zap.Logger
	bus *Bus

	mu         sync.RWMutex
	state      domain.ConnectionState
	conn       *websocket.Conn
	attempts   int
	lastUpdate *Update
	cancel     context.CancelFunc

	writeMu sync.Mutex
	wg      sync.WaitGroup
}

// wsMessage is the inbound wire shape. Exchange-specific fields beyond these
// ride along in Raw.
type wsMessage struct {
	Channel string          `json:"channel"`
	Market  string          `json:"market,omitempty"`
	Price   string          `json:"price,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// command is the outbound fire-and-forget shape.
type command struct {
	Method string `json:"method"`
	Params any    `json:"params,omitempty"`
}

// NewSupervisor creates a supervisor in DISCONNECTED state.
func NewSupervisor(cfg Config, log *zap.Logger) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = infra.DefaultRetryPolicy()
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 60 * time.Second
	}
	if cfg.SimInterval <= 0 {
		cfg.SimInterval = 5 * time.Second
	}
	return &Supervisor{
		cfg:   cfg,
		log:   log,
		bus:   NewBus(log),
		state: domain.StateDisconnected,
	}
}

// Subscribe registers an event handler.
func (s *Supervisor) Subscribe(h Handler) {
	s.bus.Subscribe(h)
}

// State returns the current connection state.
func (s *Supervisor) State() domain.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Attempts returns the current reconnect attempt counter.
func (s *Supervisor) Attempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attempts
}

func (s *Supervisor) setState(st domain.ConnectionState) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.mu.Unlock()
	if prev != st {
		s.log.Info("stream state change",
			zap.String("from", prev.String()),
			zap.String("to", st.String()))
	}
}

// Connect starts (or restarts) the connection loop. A manual call resets the
// attempt counter, so a supervisor stuck in SIMULATED retries from scratch.
// Idempotent while a loop is already running towards CONNECTED.
func (s *Supervisor) Connect() error {
	s.mu.Lock()
	if s.state == domain.StateConnected || s.state == domain.StateConnecting ||
		s.state == domain.StateReconnecting {
		s.mu.Unlock()
		return nil
	}
	if s.cancel != nil {
		// Leaving SIMULATED: stop the synthetic feed first.
		s.cancel()
	}
	s.attempts = 0
	s.state = domain.StateConnecting
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runLoop(ctx)
	return nil
}

// Disconnect stops the loop and closes the socket. No auto-revival: only a
// new Connect call re-creates the timers and the socket.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.closeConn()
	s.wg.Wait()
	s.setState(domain.StateDisconnected)
}

func (s *Supervisor) runLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := s.dial(ctx)
		if err != nil {
			s.mu.Lock()
			s.attempts++
			attempts := s.attempts
			s.mu.Unlock()
			s.log.Warn("stream connect failed",
				zap.Int("attempt", attempts),
				zap.Int("budget", s.cfg.Retry.MaxAttempts),
				zap.Error(err))

			if s.cfg.Retry.Exhausted(attempts) {
				s.enterSimulated(ctx)
				return
			}
			s.setState(domain.StateReconnecting)
			if err := s.cfg.Retry.Wait(ctx); err != nil {
				return
			}
			continue
		}

		s.mu.Lock()
		s.conn = conn
		s.attempts = 0
		s.mu.Unlock()
		s.setState(domain.StateConnected)
		s.bus.Publish(Event{Type: EventConnected})

		s.readLoop(ctx, conn)

		s.closeConn()
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.bus.Publish(Event{Type: EventDisconnected, Reason: "stream dropped"})
		s.setState(domain.StateReconnecting)
	}
}

func (s *Supervisor) dial(ctx context.Context) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, http.Header{})
	if err != nil {
		return nil, err
	}

	sub := command{Method: "subscribe", Params: map[string]any{
		"channels": []string{"ticker", "account", "trade"},
		"markets":  s.cfg.Markets,
	}}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe handshake failed: %w", err)
	}
	return conn, nil
}

func (s *Supervisor) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.log.Warn("stream read error", zap.Error(err))
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue // malformed frame, skip
		}
		if msg.Channel == "" {
			continue // subscription ack or keepalive
		}

		upd := &Update{
			Channel: msg.Channel,
			Market:  msg.Market,
			Raw:     msg.Data,
		}
		if msg.Price != "" {
			fmt.Sscanf(msg.Price, "%f", &upd.Price)
		}

		s.mu.Lock()
		s.lastUpdate = upd
		s.mu.Unlock()
		s.bus.Publish(Event{Type: EventUpdate, Update: upd})
	}
}

// enterSimulated switches to the degraded synthetic-data mode. Exactly one
// simulated_mode notification goes out per transition; the synthetic feed
// then republishes the last-known payload until Disconnect or a manual
// Connect.
func (s *Supervisor) enterSimulated(ctx context.Context) {
	s.setState(domain.StateSimulated)
	s.bus.Publish(Event{
		Type:   EventSimulatedMode,
		Reason: fmt.Sprintf("live stream unavailable after %d attempts", s.cfg.Retry.MaxAttempts),
	})

	ticker := time.NewTicker(s.cfg.SimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			last := s.lastUpdate
			s.mu.RUnlock()

			upd := &Update{Channel: "ticker", Synthetic: true}
			if last != nil {
				copied := *last
				copied.Synthetic = true
				upd = &copied
			}
			s.bus.Publish(Event{Type: EventUpdate, Update: upd})
		}
	}
}

func (s *Supervisor) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// Send issues a fire-and-forget command. Rejected (not queued) unless the
// stream is CONNECTED.
func (s *Supervisor) Send(method string, params any) error {
	s.mu.RLock()
	st := s.state
	conn := s.conn
	s.mu.RUnlock()

	if st != domain.StateConnected || conn == nil {
		return fmt.Errorf("%w: cannot send %q in state %s", domain.ErrNotConnected, method, st)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(command{Method: method, Params: params})
}

// StartTrading enables the server-side strategy loop.
func (s *Supervisor) StartTrading() error { return s.Send("startTrading", nil) }

// StopTrading disables the server-side strategy loop.
func (s *Supervisor) StopTrading() error { return s.Send("stopTrading", nil) }

// ClosePosition asks the exchange to flatten a market.
func (s *Supervisor) ClosePosition(market string) error {
	return s.Send("closePosition", map[string]string{"market": market})
}

// UpdateSettings pushes new strategy settings.
func (s *Supervisor) UpdateSettings(settings map[string]any) error {
	return s.Send("updateSettings", settings)
}

// RequestStatus asks for a status frame on the update channel.
func (s *Supervisor) RequestStatus() error { return s.Send("getStatus", nil) }
