package whatsapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	qrcode "github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/agentwa/wabridge/config"
	"github.com/agentwa/wabridge/domains/agent"
	"github.com/agentwa/wabridge/domains/policy"
	"github.com/agentwa/wabridge/pkg/kvcache"
	"github.com/agentwa/wabridge/pkg/msgworker"
)

// State is the supervisor's connection state machine.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateQRReady      State = "qr_ready"
	StateConnected    State = "connected"
	StateLoggedOut    State = "logged_out"
)

// Supervisor owns the socket lifecycle: login, reconnect backoff,
// credential persistence, and the bridge's attach/detach.
type Supervisor struct {
	store policy.Store
	agent agent.Agent
	pool  *msgworker.Pool
	cache kvcache.Cache

	// OnRegister/OnUnregister let the application router pick up the
	// outbound channel when the connection opens.
	OnRegister   func(*ChannelAdapter)
	OnUnregister func()
	// OnState fires on every connection state transition. The second
	// argument is the QR data URL, empty outside qr_ready.
	OnState func(State, string)

	mu         sync.Mutex
	state      State
	qrDataURL  string
	account    string
	client     *whatsmeow.Client
	container  *sqlstore.Container
	bridge     *Bridge
	adapter    *ChannelAdapter
	handlerID  uint32
	attempts   int
	connecting bool
	closed     bool
	reconnect  *time.Timer
}

func NewSupervisor(store policy.Store, ag agent.Agent, pool *msgworker.Pool, cache kvcache.Cache) *Supervisor {
	return &Supervisor{
		store: store,
		agent: ag,
		pool:  pool,
		cache: cache,
		state: StateDisconnected,
	}
}

// Status returns the current state, QR data URL (when waiting for a
// scan), and the connected account JID.
func (s *Supervisor) Status() (State, string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.qrDataURL, s.account
}

func (s *Supervisor) notifyState() {
	if s.OnState == nil {
		return
	}
	state, qr, _ := s.Status()
	s.OnState(state, qr)
}

// Bridge returns the active bridge, or nil while disconnected.
func (s *Supervisor) Bridge() *Bridge {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bridge
}

// Adapter returns the active outbound channel adapter, or nil.
func (s *Supervisor) Adapter() *ChannelAdapter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter
}

func (s *Supervisor) credentialPath() string {
	return fmt.Sprintf("%s/whatsapp.db", config.PathAuth)
}

// restoreCredentialBackup brings back the .bak sibling when the primary
// database is missing or empty.
func (s *Supervisor) restoreCredentialBackup() {
	primary := s.credentialPath()
	backup := primary + ".bak"

	if st, err := os.Stat(primary); err == nil && st.Size() > 0 {
		return
	}
	data, err := os.ReadFile(backup)
	if err != nil || len(data) == 0 {
		return
	}
	if err := os.WriteFile(primary, data, 0o600); err != nil {
		logrus.WithError(err).Error("[SUPERVISOR] Failed to restore credential backup")
		return
	}
	logrus.Info("[SUPERVISOR] Restored credentials from backup")
}

// backupCredentials writes the .bak sibling atomically.
func (s *Supervisor) backupCredentials() {
	primary := s.credentialPath()
	backup := primary + ".bak"

	data, err := os.ReadFile(primary)
	if err != nil || len(data) == 0 {
		return
	}
	tmp := backup + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		logrus.WithError(err).Debug("[SUPERVISOR] Credential backup write failed")
		return
	}
	if err := os.Rename(tmp, backup); err != nil {
		logrus.WithError(err).Debug("[SUPERVISOR] Credential backup rename failed")
	}
}

func (s *Supervisor) wipeCredentials() {
	primary := s.credentialPath()
	for _, p := range []string{primary, primary + ".bak", primary + "-wal", primary + "-shm"} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			logrus.WithError(err).Errorf("[SUPERVISOR] Failed to remove %s", p)
		}
	}
	logrus.Info("[SUPERVISOR] Credentials wiped")
}

// Connect starts (or restarts) the socket. Calls are coalesced: a
// connect already in progress wins.
func (s *Supervisor) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.connecting {
		s.mu.Unlock()
		return nil
	}
	s.connecting = true
	s.closed = false
	s.state = StateConnecting
	s.mu.Unlock()
	s.notifyState()

	err := s.connect(ctx)

	s.mu.Lock()
	s.connecting = false
	if err != nil {
		s.state = StateDisconnected
	}
	s.mu.Unlock()
	if err != nil {
		s.notifyState()
	}
	return err
}

func (s *Supervisor) connect(ctx context.Context) error {
	s.teardown()
	s.restoreCredentialBackup()

	if err := os.MkdirAll(config.PathAuth, 0o755); err != nil {
		return fmt.Errorf("auth dir: %w", err)
	}

	dbLog := waLog.Stdout("Database", config.WhatsappLogLevel, true)
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", s.credentialPath())
	container, err := sqlstore.New(ctx, "sqlite3", dsn, dbLog)
	if err != nil {
		return fmt.Errorf("credential store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	if device == nil {
		device = container.NewDevice()
	}

	osName := fmt.Sprintf("%s %s", config.AppOs, config.AppVersion)
	store.DeviceProps.Os = &osName

	client := whatsmeow.NewClient(device, waLog.Stdout("Client", config.WhatsappLogLevel, true))
	client.EnableAutoReconnect = false
	client.AutoTrustIdentity = true

	s.mu.Lock()
	s.client = client
	s.container = container
	s.mu.Unlock()

	s.handlerID = client.AddEventHandler(s.handleEvent)

	if client.Store.ID == nil {
		// Fresh login: surface the QR code before connecting.
		qrChan, err := client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("qr channel: %w", err)
		}
		go s.consumeQR(qrChan)
	}

	if err := client.Connect(); err != nil {
		return fmt.Errorf("socket connect: %w", err)
	}
	return nil
}

func (s *Supervisor) consumeQR(ch <-chan whatsmeow.QRChannelItem) {
	for evt := range ch {
		if evt.Event != "code" {
			continue
		}
		png, err := qrcode.Encode(evt.Code, qrcode.Medium, 512)
		if err != nil {
			logrus.WithError(err).Error("[SUPERVISOR] Failed to encode QR code")
			continue
		}
		s.mu.Lock()
		s.state = StateQRReady
		s.qrDataURL = "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
		s.mu.Unlock()
		s.notifyState()
		logrus.Info("[SUPERVISOR] QR code ready for scan")
	}
}

func (s *Supervisor) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Connected:
		s.onOpen()
	case *events.PairSuccess:
		logrus.Infof("[SUPERVISOR] Paired with %s", evt.ID)
		s.backupCredentials()
	case *events.StreamError:
		s.onClose(evt.Code, false)
	case *events.Disconnected:
		s.onClose("", false)
	case *events.LoggedOut:
		s.onClose("", true)
	}
}

func (s *Supervisor) onOpen() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	s.mu.Lock()
	client := s.client
	s.state = StateConnected
	s.qrDataURL = ""
	s.attempts = 0
	if client != nil && client.Store.ID != nil {
		s.account = client.Store.ID.String()
	}
	s.mu.Unlock()

	s.backupCredentials()

	botID := ""
	botAlt := ""
	if client != nil && client.Store.ID != nil {
		botID = client.Store.ID.String()
		pn := client.Store.ID.ToNonAD()
		if lid, err := client.Store.LIDs.GetLIDForPN(ctx, pn); err == nil && !lid.IsEmpty() {
			botAlt = lid.String()
		}
	}

	if err := s.store.SetConfig(ctx, "enabled", "true"); err != nil {
		logrus.WithError(err).Warn("[SUPERVISOR] Failed to persist enabled flag")
	}
	if err := s.store.SetConfig(ctx, "auto_connect", "true"); err != nil {
		logrus.WithError(err).Warn("[SUPERVISOR] Failed to persist auto_connect flag")
	}
	if botAlt != "" {
		if err := s.store.SetConfig(ctx, "bot_lid", botAlt); err != nil {
			logrus.WithError(err).Warn("[SUPERVISOR] Failed to persist bot_lid")
		}
	}

	bridge := NewBridge(BridgeOptions{
		Socket: client,
		Events: client,
		Store:  s.store,
		Agent:  s.agent,
		Groups: NewGroupMetaCache(client, s.cache),
		Pool:   s.pool,
		BotID:  botID,
		BotAlt: botAlt,
	})
	bridge.Attach()

	adapter := NewChannelAdapter(bridge, s.store, func() string {
		state, _, _ := s.Status()
		return string(state)
	})

	s.mu.Lock()
	s.bridge = bridge
	s.adapter = adapter
	s.mu.Unlock()

	if s.OnRegister != nil {
		s.OnRegister(adapter)
	}
	s.notifyState()
	logrus.Infof("[SUPERVISOR] Connected as %s", botID)
}

func (s *Supervisor) onClose(reasonCode string, loggedOut bool) {
	s.mu.Lock()
	bridge := s.bridge
	s.bridge = nil
	s.adapter = nil
	closed := s.closed
	s.mu.Unlock()

	if bridge != nil {
		bridge.Detach()
	}
	if s.OnUnregister != nil {
		s.OnUnregister()
	}

	if closed {
		// Deliberate disconnect or logout, no reconnect.
		return
	}

	if loggedOut {
		logrus.Warn("[SUPERVISOR] Logged out remotely, wiping credentials")
		s.mu.Lock()
		s.state = StateLoggedOut
		s.account = ""
		s.mu.Unlock()
		s.notifyState()
		s.teardown()
		s.wipeCredentials()
		// Reconnect for a fresh QR.
		go func() {
			if err := s.Connect(context.Background()); err != nil {
				logrus.WithError(err).Error("[SUPERVISOR] Reconnect after logout failed")
			}
		}()
		return
	}

	s.mu.Lock()
	s.state = StateDisconnected
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()
	s.notifyState()

	if attempt > config.ReconnectAttempts {
		logrus.Errorf("[SUPERVISOR] Giving up after %d reconnect attempts", config.ReconnectAttempts)
		return
	}

	delay := ReconnectDelay(attempt, reasonCode)
	logrus.Infof("[SUPERVISOR] Reconnecting in %s (attempt %d, reason %q)", delay, attempt, reasonCode)

	s.mu.Lock()
	if s.reconnect != nil {
		s.reconnect.Stop()
	}
	s.reconnect = time.AfterFunc(delay, func() {
		if err := s.Connect(context.Background()); err != nil {
			logrus.WithError(err).Error("[SUPERVISOR] Reconnect failed")
		}
	})
	s.mu.Unlock()
}

// ReconnectDelay computes the backoff for a reconnect attempt:
// min(30s, 1.5s * 1.6^(attempt-1)) with ±25% jitter, floored at 250ms.
// Stream code 515 asks for an immediate restart and uses a fixed 1s.
func ReconnectDelay(attempt int, reasonCode string) time.Duration {
	if strings.TrimSpace(reasonCode) == "515" {
		return time.Second
	}
	if attempt < 1 {
		attempt = 1
	}

	base := float64(config.ReconnectBase)
	for i := 1; i < attempt; i++ {
		base *= config.ReconnectFactor
	}
	if base > float64(config.ReconnectCeiling) {
		base = float64(config.ReconnectCeiling)
	}

	jitter := 1 + (rand.Float64()*0.5 - 0.25)
	delay := time.Duration(base * jitter)
	if delay < config.ReconnectFloor {
		delay = config.ReconnectFloor
	}
	return delay
}

// Disconnect stops the socket without touching credentials.
func (s *Supervisor) Disconnect() {
	s.mu.Lock()
	s.closed = true
	if s.reconnect != nil {
		s.reconnect.Stop()
		s.reconnect = nil
	}
	bridge := s.bridge
	s.bridge = nil
	s.adapter = nil
	s.state = StateDisconnected
	s.qrDataURL = ""
	s.mu.Unlock()

	if bridge != nil {
		bridge.Detach()
	}
	if s.OnUnregister != nil {
		s.OnUnregister()
	}
	s.teardown()
	s.notifyState()
	logrus.Info("[SUPERVISOR] Disconnected")
}

// Logout disconnects and wipes persisted credentials.
func (s *Supervisor) Logout() {
	s.Disconnect()
	s.wipeCredentials()

	s.mu.Lock()
	s.state = StateLoggedOut
	s.account = ""
	s.mu.Unlock()
	s.notifyState()
	logrus.Info("[SUPERVISOR] Logged out")
}

func (s *Supervisor) teardown() {
	s.mu.Lock()
	client := s.client
	container := s.container
	handlerID := s.handlerID
	s.client = nil
	s.container = nil
	s.handlerID = 0
	s.mu.Unlock()

	if client != nil {
		if handlerID != 0 {
			client.RemoveEventHandler(handlerID)
		}
		client.Disconnect()
	}
	if container != nil {
		_ = container.Close()
	}
}
