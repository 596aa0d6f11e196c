package solana

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ---------------------------------------------------------------------------
// Launch Listener — real-time token creation detection via logsSubscribe
// Subscribes to the bonding-curve program logs and decodes Create events
// ---------------------------------------------------------------------------

// ListenerConfig configures the WebSocket launch listener.
type ListenerConfig struct {
	WSEndpoint       string `yaml:"ws_endpoint"`
	ProgramID        string `yaml:"program_id"` // bonding-curve program to watch
	ReconnectDelayMs int    `yaml:"reconnect_delay_ms"`
	PingIntervalS    int    `yaml:"ping_interval_s"`
	MaxReconnects    int    `yaml:"max_reconnects"`
}

// DefaultListenerConfig returns defaults for mainnet monitoring.
func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		WSEndpoint:       "wss://api.mainnet-beta.solana.com",
		ProgramID:        string(PumpProgramID),
		ReconnectDelayMs: 1000,
		PingIntervalS:    30,
		MaxReconnects:    0, // 0 = unlimited reconnects
	}
}

// Listener monitors the Solana WebSocket for token creation events.
type Listener struct {
	config ListenerConfig

	mu   sync.RWMutex
	conn *websocket.Conn

	// Output channel for detected launches.
	launchChan chan LaunchEvent
	closed     atomic.Bool // tracks if launchChan is closed

	// Subscription ID counter.
	nextSubID atomic.Int64

	// Stats.
	messagesRecv    atomic.Int64
	launchesEmitted atomic.Int64
	reconnects      atomic.Int64
	connected       atomic.Bool
}

// NewListener creates a new launch listener.
func NewListener(config ListenerConfig) *Listener {
	return &Listener{
		config:     config,
		launchChan: make(chan LaunchEvent, 256),
	}
}

// Start connects to the WebSocket and starts listening.
// Returns a channel that emits LaunchEvents; the channel is closed when the
// listener stops. The stream is lazy, unbounded, and not restartable.
func (l *Listener) Start(ctx context.Context) (<-chan LaunchEvent, error) {
	go l.runLoop(ctx)
	return l.launchChan, nil
}

func (l *Listener) runLoop(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("listener: runLoop panic recovered")
		}
		// Acquire write lock to synchronize with handleMessage's channel send.
		l.mu.Lock()
		if l.closed.CompareAndSwap(false, true) {
			close(l.launchChan)
		}
		l.mu.Unlock()
	}()

	reconnectDelay := time.Duration(l.config.ReconnectDelayMs) * time.Millisecond
	reconnectCount := 0

	for {
		select {
		case <-ctx.Done():
			l.disconnect()
			return
		default:
		}

		// Unlimited reconnects when MaxReconnects == 0.
		if l.config.MaxReconnects > 0 && reconnectCount >= l.config.MaxReconnects {
			log.Error().Int("max", l.config.MaxReconnects).Msg("listener: max reconnects reached, restarting counter after cooldown")
			select {
			case <-time.After(60 * time.Second):
				reconnectCount = 0
				continue
			case <-ctx.Done():
				l.disconnect()
				return
			}
		}

		if err := l.connect(ctx); err != nil {
			log.Warn().Err(err).Int("attempt", reconnectCount).Msg("listener: connection failed")
			reconnectCount++
			l.reconnects.Add(1)

			maxDelay := 30 * time.Second
			if reconnectDelay > maxDelay {
				reconnectDelay = maxDelay
			}
			select {
			case <-time.After(reconnectDelay):
				reconnectDelay = reconnectDelay * 2
				if reconnectDelay > maxDelay {
					reconnectDelay = maxDelay
				}
			case <-ctx.Done():
				return
			}
			continue
		}

		reconnectCount = 0
		reconnectDelay = time.Duration(l.config.ReconnectDelayMs) * time.Millisecond

		if err := l.subscribe(); err != nil {
			log.Warn().Err(err).Msg("listener: subscribe failed")
		}

		// Read messages until disconnect.
		l.readLoop(ctx)
	}
}

func (l *Listener) connect(ctx context.Context) error {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, l.config.WSEndpoint, http.Header{})
	if err != nil {
		return fmt.Errorf("listener: dial: %w", err)
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.connected.Store(true)

	log.Info().Str("endpoint", l.config.WSEndpoint).Msg("listener: connected")
	return nil
}

func (l *Listener) disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		l.conn.Close()
		l.conn = nil
	}
	l.connected.Store(false)
}

// subscribe sends a logsSubscribe request for the bonding-curve program.
func (l *Listener) subscribe() error {
	subID := l.nextSubID.Add(1)

	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      subID,
		"method":  "logsSubscribe",
		"params": []any{
			map[string]any{
				"mentions": []string{l.config.ProgramID},
			},
			map[string]any{
				"commitment": "confirmed",
			},
		},
	}

	// The connection is checked under the same lock as the write: disconnect()
	// can nil it at any point, so a separate read-then-write would race.
	l.mu.Lock()
	conn := l.conn
	if conn == nil {
		l.mu.Unlock()
		return fmt.Errorf("listener: not connected")
	}
	err := conn.WriteJSON(req)
	l.mu.Unlock()

	if err != nil {
		return fmt.Errorf("listener: write subscribe: %w", err)
	}

	pid := l.config.ProgramID
	if len(pid) > 8 {
		pid = pid[:8]
	}
	log.Info().Str("program", pid).Msg("listener: subscribed to program logs")

	return nil
}

func (l *Listener) readLoop(ctx context.Context) {
	pingInterval := time.Duration(l.config.PingIntervalS) * time.Second
	if pingInterval == 0 {
		pingInterval = 30 * time.Second
	}
	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pingTicker.C:
			l.mu.RLock()
			conn := l.conn
			l.mu.RUnlock()
			if conn != nil {
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					log.Debug().Err(err).Msg("listener: ping failed")
					return
				}
			}
		default:
		}

		l.mu.RLock()
		conn := l.conn
		l.mu.RUnlock()
		if conn == nil {
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Info().Msg("listener: connection closed normally")
			} else {
				log.Warn().Err(err).Msg("listener: read error, reconnecting")
			}
			l.connected.Store(false)
			return
		}

		l.messagesRecv.Add(1)
		l.handleMessage(message)
	}
}

func (l *Listener) handleMessage(data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Msg("listener: handleMessage panic recovered")
		}
	}()

	var notification struct {
		Method string `json:"method"`
		Params struct {
			Result struct {
				Value struct {
					Signature string   `json:"signature"`
					Err       any      `json:"err"`
					Logs      []string `json:"logs"`
				} `json:"value"`
			} `json:"result"`
			Subscription int `json:"subscription"`
		} `json:"params"`
	}

	if err := json.Unmarshal(data, &notification); err != nil {
		return
	}

	if notification.Method != "logsNotification" {
		// Could be a subscription confirmation response.
		var subResp struct {
			Result int `json:"result"`
		}
		if json.Unmarshal(data, &subResp) == nil && subResp.Result > 0 {
			log.Debug().Int("sub_id", subResp.Result).Msg("listener: subscription confirmed")
		}
		return
	}

	value := notification.Params.Result.Value
	if value.Err != nil {
		return // failed transaction
	}

	event, ok := ParseCreateLogs(value.Logs)
	if !ok {
		return
	}

	event.Signature = Signature(value.Signature)
	event.DetectedAt = time.Now()

	l.launchesEmitted.Add(1)

	sigPrefix := value.Signature
	if len(sigPrefix) > 12 {
		sigPrefix = sigPrefix[:12]
	}

	// Synchronize channel send with close using mutex to prevent
	// send-on-closed-channel panic (atomic check alone is racy).
	l.mu.RLock()
	if !l.closed.Load() {
		select {
		case l.launchChan <- event:
			log.Info().
				Str("sig", sigPrefix).
				Str("mint", string(event.Mint)).
				Str("symbol", event.Symbol).
				Msg("listener: NEW TOKEN CREATED")
		default:
			log.Warn().Msg("listener: launch channel full, dropping event")
		}
	}
	l.mu.RUnlock()
}

// createDiscriminator prefixes the borsh payload of every Create event.
var createDiscriminator = []byte{0x1b, 0x72, 0xa9, 0x4d, 0xde, 0xeb, 0x63, 0x76}

// ParseCreateLogs scans transaction logs for a Create event and decodes it.
// Returns false when the logs carry no (or a malformed) creation event.
func ParseCreateLogs(logs []string) (LaunchEvent, bool) {
	sawCreate := false
	for _, line := range logs {
		if strings.Contains(line, "Program log: Instruction: Create") {
			sawCreate = true
			continue
		}
		const marker = "Program data: "
		if !sawCreate || !strings.HasPrefix(line, marker) {
			continue
		}
		payload, err := base64.StdEncoding.DecodeString(line[len(marker):])
		if err != nil {
			continue
		}
		if event, err := DecodeCreateEvent(payload); err == nil {
			return event, true
		}
	}
	return LaunchEvent{}, false
}

// DecodeCreateEvent decodes the borsh-encoded Create event payload:
// discriminator(8) | name | symbol | uri (length-prefixed strings) |
// mint(32) | bondingCurve(32) | user(32).
func DecodeCreateEvent(data []byte) (LaunchEvent, error) {
	if len(data) < len(createDiscriminator) {
		return LaunchEvent{}, fmt.Errorf("listener: create event too short: %d bytes", len(data))
	}
	for i, b := range createDiscriminator {
		if data[i] != b {
			return LaunchEvent{}, fmt.Errorf("listener: not a create event")
		}
	}
	offset := len(createDiscriminator)

	name, offset, err := readBorshString(data, offset)
	if err != nil {
		return LaunchEvent{}, err
	}
	symbol, offset, err := readBorshString(data, offset)
	if err != nil {
		return LaunchEvent{}, err
	}
	uri, offset, err := readBorshString(data, offset)
	if err != nil {
		return LaunchEvent{}, err
	}

	if offset+96 > len(data) {
		return LaunchEvent{}, fmt.Errorf("listener: create event truncated at pubkeys")
	}
	mint, err := PubkeyFromBytes(data[offset : offset+32])
	if err != nil {
		return LaunchEvent{}, err
	}
	curve, err := PubkeyFromBytes(data[offset+32 : offset+64])
	if err != nil {
		return LaunchEvent{}, err
	}
	creator, err := PubkeyFromBytes(data[offset+64 : offset+96])
	if err != nil {
		return LaunchEvent{}, err
	}

	event := LaunchEvent{
		Mint:         mint,
		Creator:      creator,
		BondingCurve: curve,
		Name:         name,
		Symbol:       symbol,
		MetadataURI:  uri,
	}

	// The associated curve account is not part of the event; derive it.
	if ata, err := DeriveAssociatedTokenAccount(curve, mint); err == nil {
		event.AssociatedBondingCurve = ata
	}

	return event, nil
}

// readBorshString reads a u32 length-prefixed string.
func readBorshString(data []byte, offset int) (string, int, error) {
	if offset+4 > len(data) {
		return "", 0, fmt.Errorf("listener: string length out of bounds")
	}
	n := int(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	if n > 1024 || offset+n > len(data) {
		return "", 0, fmt.Errorf("listener: string body out of bounds")
	}
	return string(data[offset : offset+n]), offset + n, nil
}

// ListenerStats returns listener statistics.
type ListenerStats struct {
	Connected       bool  `json:"connected"`
	MessagesRecv    int64 `json:"messages_recv"`
	LaunchesEmitted int64 `json:"launches_emitted"`
	Reconnects      int64 `json:"reconnects"`
}

func (l *Listener) Stats() ListenerStats {
	return ListenerStats{
		Connected:       l.connected.Load(),
		MessagesRecv:    l.messagesRecv.Load(),
		LaunchesEmitted: l.launchesEmitted.Load(),
		Reconnects:      l.reconnects.Load(),
	}
}
