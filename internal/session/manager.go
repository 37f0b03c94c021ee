package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stockplus/kisfeed/internal/codec"
	"github.com/stockplus/kisfeed/internal/model"
)

// CredentialSource supplies approval keys for the realtime gateway.
type CredentialSource interface {
	// ForceRotate discards any cached approval key and fetches a fresh one.
	ForceRotate(ctx context.Context) (string, error)

	// FullReset revokes the access token and reissues the full credential set.
	FullReset(ctx context.Context) (string, error)
}

// SubscriptionSource supplies the desired subscription set and live changes.
type SubscriptionSource interface {
	// Bootstrap returns the full subscription set for a fresh session.
	Bootstrap(ctx context.Context) ([]model.SubscriptionIntent, error)

	// Events streams live subscribe/unsubscribe intents.
	Events() <-chan model.SubscriptionIntent
}

// QuoteSink receives decoded quotes.
type QuoteSink interface {
	Publish(q model.Quote) error
}

// Manager owns the single gateway session. It drives the connection through
// its lifecycle, rotates the approval key before every dial, paces outbound
// subscription commands and routes inbound frames to the quote sink.
//
// All session state is owned by one goroutine; external callers communicate
// through buffered trigger channels and never touch the connection directly.
type Manager struct {
	cfg    ManagerConfig
	creds  CredentialSource
	subs   SubscriptionSource
	sink   QuoteSink
	dial   Dialer
	logger *slog.Logger

	state     atomic.Int32
	attempts  atomic.Int64
	rotations atomic.Int64
	frames    atomic.Int64
	published atomic.Int64

	// Trigger channels, buffered 1. A trigger that arrives while a session
	// is active stays queued and takes effect when the run loop next reads
	// it; requests are deferred, never dropped.
	connectCh chan struct{}
	closeCh   chan struct{}

	lastAttempt time.Time // run loop only

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a session manager. A nil dialer gets the production
// WebSocket transport.
func NewManager(cfg ManagerConfig, creds CredentialSource, subs SubscriptionSource, sink QuoteSink, dial Dialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if dial == nil {
		dial = NewTransport
	}

	def := DefaultManagerConfig()
	if cfg.ConnectGrace <= 0 {
		cfg.ConnectGrace = def.ConnectGrace
	}
	if cfg.CommandSpacing <= 0 {
		cfg.CommandSpacing = def.CommandSpacing
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = def.ReconnectDelay
	}
	if cfg.StaleKeyDelay <= 0 {
		cfg.StaleKeyDelay = def.StaleKeyDelay
	}
	if cfg.MinConnectInterval <= 0 {
		cfg.MinConnectInterval = def.MinConnectInterval
	}
	if cfg.KeyRetries < 0 {
		cfg.KeyRetries = def.KeyRetries
	}
	if cfg.KeyRetryDelay <= 0 {
		cfg.KeyRetryDelay = def.KeyRetryDelay
	}

	return &Manager{
		cfg:       cfg,
		creds:     creds,
		subs:      subs,
		sink:      sink,
		dial:      dial,
		logger:    logger,
		connectCh: make(chan struct{}, 1),
		closeCh:   make(chan struct{}, 1),
	}
}

// Start launches the run loop. The manager stays idle until Connect is
// called; the market schedule decides when a session should exist.
func (m *Manager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.wg.Add(1)
	go m.run()
}

// Stop tears down any active session and stops the run loop.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
	m.setState(StateIdle)
}

// Connect requests a session. Safe to call at any time; redundant requests
// coalesce.
func (m *Manager) Connect() {
	select {
	case m.connectCh <- struct{}{}:
	default:
	}
}

// Disconnect requests a graceful session close without reconnect.
func (m *Manager) Disconnect() {
	select {
	case m.closeCh <- struct{}{}:
	default:
	}
}

// FullResetAndReconnect closes the session, revokes and reissues the whole
// credential set, then reconnects. Recovery path for a wedged session whose
// credentials are suspect; routine token refresh never goes through here.
func (m *Manager) FullResetAndReconnect(ctx context.Context) error {
	m.Disconnect()
	if _, err := m.creds.FullReset(ctx); err != nil {
		return err
	}
	m.Connect()
	return nil
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats returns session counters.
func (m *Manager) Stats() ManagerStats {
	return ManagerStats{
		State:           m.State(),
		ConnectAttempts: m.attempts.Load(),
		Rotations:       m.rotations.Load(),
		FramesReceived:  m.frames.Load(),
		QuotesPublished: m.published.Load(),
	}
}

func (m *Manager) setState(s State) {
	m.state.Store(int32(s))
}

func (m *Manager) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-m.closeCh:
			// Nothing active; a stale close request is a no-op.
		case <-m.connectCh:
			delay, reconnect := m.runSession()
			m.setState(StateIdle)
			if !reconnect {
				continue
			}
			select {
			case <-m.ctx.Done():
				return
			case <-m.closeCh:
				// Close during backoff cancels the pending reconnect.
				m.logger.Info("reconnect cancelled by close request")
			case <-time.After(delay):
				m.Connect()
			}
		}
	}
}

// runSession drives one full session: rotate key, dial, bootstrap, stream.
// It returns the delay before the next attempt and whether to reconnect.
func (m *Manager) runSession() (time.Duration, bool) {
	// Connect attempts are spaced at least MinConnectInterval apart. A
	// request that arrives early waits out the remainder.
	if wait := m.cfg.MinConnectInterval - time.Since(m.lastAttempt); wait > 0 {
		select {
		case <-m.ctx.Done():
			return 0, false
		case <-m.closeCh:
			return 0, false
		case <-time.After(wait):
		}
	}
	m.lastAttempt = time.Now()
	m.attempts.Add(1)
	m.setState(StateConnecting)

	// Fresh approval key for every attempt. Reusing a key across dials
	// trips the gateway's one-session-per-key limit.
	key, err := m.acquireKey()
	if err != nil {
		m.logger.Error("approval key acquisition failed, will retry", "error", err)
		return m.cfg.ReconnectDelay, true
	}

	m.setState(StateAuthenticating)
	cfg := DefaultClientConfig()
	cfg.URL = m.cfg.WSURL
	tr := m.dial(cfg, m.logger)
	if err := tr.Connect(m.ctx); err != nil {
		m.logger.Error("websocket connect failed", "url", m.cfg.WSURL, "error", err)
		return m.cfg.ReconnectDelay, true
	}
	defer tr.Close()

	bootstrap, err := m.subs.Bootstrap(m.ctx)
	if err != nil {
		m.logger.Error("bootstrap subscription set failed", "error", err)
		return m.cfg.ReconnectDelay, true
	}

	m.setState(StateStreaming)
	m.logger.Info("session streaming",
		"url", m.cfg.WSURL,
		"bootstrap_intents", len(bootstrap),
	)

	sessionDone := make(chan struct{})
	writerDone := make(chan struct{})
	go m.writeLoop(tr, key, bootstrap, sessionDone, writerDone)
	defer func() {
		close(sessionDone)
		<-writerDone
	}()

	for {
		select {
		case <-m.ctx.Done():
			m.setState(StateClosing)
			return 0, false
		case <-m.closeCh:
			m.setState(StateClosing)
			m.logger.Info("session close requested")
			return 0, false
		case err := <-tr.Errors():
			m.logger.Error("transport error, reconnecting", "error", err)
			return m.cfg.ReconnectDelay, true
		case msg, ok := <-tr.Messages():
			if !ok {
				m.logger.Warn("message stream closed, reconnecting")
				return m.cfg.ReconnectDelay, true
			}
			if staleKey := m.handleFrame(msg); staleKey {
				m.logger.Warn("approval key rejected as stale, rotating before reconnect")
				return m.cfg.StaleKeyDelay, true
			}
		}
	}
}

// acquireKey rotates the approval key, retrying on auth service failures.
func (m *Manager) acquireKey() (string, error) {
	var lastErr error
	for attempt := 0; attempt <= m.cfg.KeyRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-m.ctx.Done():
				return "", m.ctx.Err()
			case <-time.After(m.cfg.KeyRetryDelay):
			}
		}

		key, err := m.creds.ForceRotate(m.ctx)
		if err == nil {
			m.rotations.Add(1)
			return key, nil
		}
		lastErr = err
		m.logger.Warn("approval key rotation failed",
			"attempt", attempt+1,
			"error", err,
		)
	}
	return "", lastErr
}

// writeLoop paces outbound subscription commands: a grace period after the
// handshake, then the bootstrap set, then live registry intents, with
// CommandSpacing between successive sends.
func (m *Manager) writeLoop(tr Transport, key string, bootstrap []model.SubscriptionIntent, done <-chan struct{}, finished chan<- struct{}) {
	defer close(finished)

	pause := func(d time.Duration) bool {
		select {
		case <-done:
			return false
		case <-m.ctx.Done():
			return false
		case <-time.After(d):
			return true
		}
	}

	if !pause(m.cfg.ConnectGrace) {
		return
	}

	for _, intent := range bootstrap {
		if !m.sendCommand(tr, key, intent) {
			return
		}
		if !pause(m.cfg.CommandSpacing) {
			return
		}
	}

	for {
		select {
		case <-done:
			return
		case <-m.ctx.Done():
			return
		case intent := <-m.subs.Events():
			if !m.sendCommand(tr, key, intent) {
				return
			}
			if !pause(m.cfg.CommandSpacing) {
				return
			}
		}
	}
}

// sendCommand encodes and writes one subscription command. Returns false on
// a transport failure; the read loop will observe the error and reconnect.
func (m *Manager) sendCommand(tr Transport, key string, intent model.SubscriptionIntent) bool {
	payload, err := codec.EncodeCommand(key, intent)
	if err != nil {
		m.logger.Error("command encode failed, skipping intent",
			"code", intent.Key.Code,
			"venue", intent.Key.Venue,
			"error", err,
		)
		return true
	}

	if err := tr.Send(payload); err != nil {
		m.logger.Error("command send failed",
			"code", intent.Key.Code,
			"error", err,
		)
		return false
	}

	m.logger.Debug("subscription command sent",
		"tr_id", codec.ResolveTrID(intent.Key.Venue, intent.Channel),
		"code", intent.Key.Code,
		"action", intent.Action,
	)
	return true
}

// handleFrame classifies and processes one inbound frame. Returns true when
// the gateway rejected our approval key as stale, which ends the session.
func (m *Manager) handleFrame(msg TimestampedMessage) bool {
	m.frames.Add(1)
	payload := string(msg.Data)

	switch codec.Classify(payload) {
	case codec.FrameHeartbeat:
		m.logger.Debug("heartbeat")

	case codec.FrameControl:
		ctrl, err := codec.ParseControl(payload)
		if err != nil {
			m.logger.Warn("unparseable control frame", "error", err)
			return false
		}
		if ctrl.StaleApprovalKey() {
			return true
		}
		if ctrl.SubscribeOK() {
			m.logger.Debug("subscription acknowledged",
				"tr_id", ctrl.Header.TrID,
				"tr_key", ctrl.Header.TrKey,
			)
		} else {
			m.logger.Warn("subscription rejected",
				"tr_id", ctrl.Header.TrID,
				"tr_key", ctrl.Header.TrKey,
				"msg_cd", ctrl.Body.MsgCd,
				"msg", ctrl.Body.Msg1,
			)
		}

	case codec.FrameData:
		quotes, err := codec.DecodeData(payload)
		if err != nil {
			m.logger.Warn("malformed data frame dropped", "error", err)
			return false
		}
		for _, q := range quotes {
			if err := m.sink.Publish(q); err != nil {
				m.logger.Warn("quote publish failed",
					"code", q.Code,
					"error", err,
				)
				continue
			}
			m.published.Add(1)
		}

	default:
		m.logger.Warn("unclassifiable frame dropped", "size", len(msg.Data))
	}

	return false
}
