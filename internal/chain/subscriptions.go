package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ReconnectConfig controls the exponential backoff used to re-establish the
// logs-subscription WebSocket after a drop.
type ReconnectConfig struct {
	InitialDelay   time.Duration
	MaxDelay       time.Duration
	MaxRetries     int
	ConnectTimeout time.Duration
	PingInterval   time.Duration
}

// DefaultReconnectConfig backs off 2s, 4s, 8s, 16s like the rest of the stack's WS clients.
func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		InitialDelay:   2 * time.Second,
		MaxDelay:       16 * time.Second,
		MaxRetries:     0, // position monitoring must not give up permanently
		ConnectTimeout: 10 * time.Second,
		PingInterval:   30 * time.Second,
	}
}

type connState int32

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateReconnecting
	stateClosed
)

// ActivityHint is emitted whenever a subscribed token's pool/bonding-curve
// account shows log activity, prompting an out-of-band price refetch.
type ActivityHint struct {
	Mint      string
	Signature string
}

// SubscriptionManager maintains log subscriptions scoped to tokens, not
// positions: reference counting adds/removes the underlying subscription as
// positions on that token open and close, so N open positions on the same
// mint cost exactly one subscription.
type SubscriptionManager struct {
	wsURL  string
	config ReconnectConfig

	conn   *websocket.Conn
	connMu sync.RWMutex

	state      int32
	retryCount int32
	closeChan  chan struct{}

	hints chan ActivityHint

	refMu         sync.Mutex
	refCounts     map[string]int    // mint -> open position count
	accountOf     map[string]string // mint -> chain account actually subscribed (bonding curve or mint itself)
	mintOfAccount map[string]string // chain account -> mint, the reverse lookup dispatch needs
	subIDs        map[string]int64  // account -> logsSubscribe request id
	nextReqID     int64
}

// NewSubscriptionManager builds a manager without connecting. Call Connect to dial.
func NewSubscriptionManager(wsURL string, config ReconnectConfig) *SubscriptionManager {
	return &SubscriptionManager{
		wsURL:         wsURL,
		config:        config,
		closeChan:     make(chan struct{}),
		hints:         make(chan ActivityHint, 256),
		refCounts:     make(map[string]int),
		accountOf:     make(map[string]string),
		mintOfAccount: make(map[string]string),
		subIDs:        make(map[string]int64),
	}
}

// Hints is the channel the Position Monitor selects on for activity-driven reevaluation.
func (m *SubscriptionManager) Hints() <-chan ActivityHint {
	return m.hints
}

func (m *SubscriptionManager) getState() connState {
	return connState(atomic.LoadInt32(&m.state))
}

// Connect establishes the WebSocket connection and starts the read/ping pumps.
func (m *SubscriptionManager) Connect() error {
	select {
	case <-m.closeChan:
		return fmt.Errorf("chain: subscription manager is closed")
	default:
	}

	atomic.StoreInt32(&m.state, int32(stateConnecting))
	if err := m.dial(); err != nil {
		atomic.StoreInt32(&m.state, int32(stateDisconnected))
		return err
	}
	atomic.StoreInt32(&m.state, int32(stateConnected))
	atomic.StoreInt32(&m.retryCount, 0)

	go m.readPump()
	go m.pingPump()
	return nil
}

func (m *SubscriptionManager) dial() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: m.config.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, m.wsURL, nil)
	if err != nil {
		return fmt.Errorf("chain: ws dial: %w", err)
	}

	m.connMu.Lock()
	m.conn = conn
	m.connMu.Unlock()

	return m.resubscribeAll()
}

// Subscribe increments the reference count for mint, opening a new
// logsSubscribe on account only when this is the first position watching
// mint. account is the chain account whose log activity actually signals a
// trade on mint — the bonding-curve PDA pre-graduation, the mint itself
// after — while mint is the key every other caller (ref counting, hint
// lookup) uses, so the two are tracked separately and Unsubscribe only ever
// needs mint to tear the right subscription down.
func (m *SubscriptionManager) Subscribe(mint, account string) error {
	m.refMu.Lock()
	defer m.refMu.Unlock()

	m.refCounts[mint]++
	if m.refCounts[mint] > 1 {
		return nil
	}
	m.accountOf[mint] = account
	m.mintOfAccount[account] = mint
	return m.sendLogsSubscribe(account)
}

// Unsubscribe decrements the reference count, closing the subscription once
// the last position on this mint closes.
func (m *SubscriptionManager) Unsubscribe(mint string) error {
	m.refMu.Lock()
	defer m.refMu.Unlock()

	m.refCounts[mint]--
	if m.refCounts[mint] > 0 {
		return nil
	}
	delete(m.refCounts, mint)

	account, ok := m.accountOf[mint]
	if !ok {
		return nil
	}
	delete(m.accountOf, mint)
	delete(m.mintOfAccount, account)

	reqID, ok := m.subIDs[account]
	if !ok {
		return nil
	}
	delete(m.subIDs, account)

	return m.write(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  "logsUnsubscribe",
		"params":  []interface{}{reqID},
	})
}

func (m *SubscriptionManager) sendLogsSubscribe(account string) error {
	reqID := atomic.AddInt64(&m.nextReqID, 1)
	m.subIDs[account] = reqID

	return m.write(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      reqID,
		"method":  "logsSubscribe",
		"params": []interface{}{
			map[string]interface{}{"mentions": []string{account}},
			map[string]interface{}{"commitment": "confirmed"},
		},
	})
}

func (m *SubscriptionManager) resubscribeAll() error {
	m.refMu.Lock()
	accounts := make([]string, 0, len(m.accountOf))
	for _, account := range m.accountOf {
		accounts = append(accounts, account)
	}
	m.refMu.Unlock()

	for _, account := range accounts {
		if err := m.sendLogsSubscribe(account); err != nil {
			return err
		}
	}
	return nil
}

func (m *SubscriptionManager) write(v interface{}) error {
	m.connMu.RLock()
	conn := m.conn
	m.connMu.RUnlock()
	if conn == nil {
		return fmt.Errorf("chain: no active ws connection")
	}
	return conn.WriteJSON(v)
}

func (m *SubscriptionManager) readPump() {
	defer m.handleDisconnect()

	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		m.connMu.RLock()
		conn := m.conn
		m.connMu.RUnlock()
		if conn == nil {
			return
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		m.dispatch(raw)
	}
}

// logsNotification is the subset of the Solana logsSubscribe push payload we
// care about: which account the activity mentioned and its signature.
type logsNotification struct {
	Params struct {
		Result struct {
			Value struct {
				Signature string   `json:"signature"`
				Logs      []string `json:"logs"`
			} `json:"value"`
		} `json:"result"`
		Subscription int64 `json:"subscription"`
	} `json:"params"`
}

func (m *SubscriptionManager) dispatch(raw []byte) {
	var note logsNotification
	if err := json.Unmarshal(raw, &note); err != nil {
		return
	}
	if note.Params.Result.Value.Signature == "" {
		return
	}

	m.refMu.Lock()
	var mint string
	for account, id := range m.subIDs {
		if id == note.Params.Subscription {
			mint = m.mintOfAccount[account]
			break
		}
	}
	m.refMu.Unlock()
	if mint == "" {
		return
	}

	select {
	case m.hints <- ActivityHint{Mint: mint, Signature: note.Params.Result.Value.Signature}:
	default:
		// hints channel saturated: the next poll cycle will catch up anyway.
	}
}

func (m *SubscriptionManager) pingPump() {
	ticker := time.NewTicker(m.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.closeChan:
			return
		case <-ticker.C:
			m.connMu.RLock()
			conn := m.conn
			m.connMu.RUnlock()
			if conn == nil || m.getState() != stateConnected {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				m.handleDisconnect()
				return
			}
		}
	}
}

func (m *SubscriptionManager) handleDisconnect() {
	select {
	case <-m.closeChan:
		return
	default:
	}

	state := m.getState()
	if state == stateReconnecting || state == stateClosed {
		return
	}
	atomic.StoreInt32(&m.state, int32(stateReconnecting))

	m.connMu.Lock()
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	m.connMu.Unlock()

	go m.reconnectLoop()
}

func (m *SubscriptionManager) reconnectLoop() {
	delay := m.config.InitialDelay

	for {
		select {
		case <-m.closeChan:
			return
		default:
		}

		retryCount := atomic.AddInt32(&m.retryCount, 1)
		if m.config.MaxRetries > 0 && int(retryCount) > m.config.MaxRetries {
			atomic.StoreInt32(&m.state, int32(stateDisconnected))
			return
		}

		select {
		case <-m.closeChan:
			return
		case <-time.After(delay):
		}

		if err := m.dial(); err != nil {
			delay *= 2
			if delay > m.config.MaxDelay {
				delay = m.config.MaxDelay
			}
			continue
		}

		atomic.StoreInt32(&m.state, int32(stateConnected))
		atomic.StoreInt32(&m.retryCount, 0)
		go m.readPump()
		go m.pingPump()
		return
	}
}

// Close shuts the manager down permanently.
func (m *SubscriptionManager) Close() error {
	select {
	case <-m.closeChan:
		return nil
	default:
		close(m.closeChan)
	}
	atomic.StoreInt32(&m.state, int32(stateClosed))

	m.connMu.Lock()
	defer m.connMu.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}
