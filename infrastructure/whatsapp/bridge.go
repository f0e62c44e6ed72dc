// Package whatsapp connects a WhatsApp account to the AI agent: it
// filters inbound traffic, debounces it per conversation, and relays
// agent replies back through the socket.
package whatsapp

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/agentwa/wabridge/config"
	"github.com/agentwa/wabridge/domains/agent"
	"github.com/agentwa/wabridge/domains/policy"
	"github.com/agentwa/wabridge/pkg/echotrack"
	"github.com/agentwa/wabridge/pkg/envelope"
	"github.com/agentwa/wabridge/pkg/msgworker"
	"github.com/agentwa/wabridge/pkg/textchunk"
	"github.com/agentwa/wabridge/pkg/waid"
)

// Socket is the slice of the whatsmeow client the bridge depends on.
// *whatsmeow.Client satisfies it; tests substitute a fake.
type Socket interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	SendChatPresence(ctx context.Context, jid types.JID, state types.ChatPresence, media types.ChatPresenceMedia) error
	GetGroupInfo(ctx context.Context, jid types.JID) (*types.GroupInfo, error)
	Upload(ctx context.Context, plaintext []byte, appInfo whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
}

// EventSource lets the bridge subscribe to inbound events. Satisfied
// by *whatsmeow.Client.
type EventSource interface {
	AddEventHandler(handler whatsmeow.EventHandler) uint32
	RemoveEventHandler(id uint32) bool
}

type pendingEntry struct {
	phone   string
	replyTo string
	texts   []string
	meta    *envelope.Meta
	isGroup bool
	mode    policy.GroupMode
}

// Bridge is the per-conversation pipeline between the socket and the
// agent. Each debounce key (DM remote id, or group:participant) is an
// independent sequential worker.
type Bridge struct {
	sock    Socket
	events  EventSource
	store   policy.Store
	agent   agent.Agent
	tracker *echotrack.Tracker
	groups  *GroupMetaCache
	pool    *msgworker.Pool

	botID  string
	botAlt string

	mu         sync.Mutex
	attached   bool
	handlerID  uint32
	pending    map[string]*pendingEntry
	timers     map[string]*time.Timer
	processing map[string]bool
	aborts     map[string]context.CancelFunc
}

// BridgeOptions wires the bridge's collaborators. Pool and Events may
// be nil: events are then fed via HandleEvent and jobs run inline.
type BridgeOptions struct {
	Socket Socket
	Events EventSource
	Store  policy.Store
	Agent  agent.Agent
	Groups *GroupMetaCache
	Pool   *msgworker.Pool
	BotID  string
	BotAlt string
}

func NewBridge(opts BridgeOptions) *Bridge {
	groups := opts.Groups
	if groups == nil {
		groups = NewGroupMetaCache(opts.Socket, nil)
	}
	return &Bridge{
		sock:       opts.Socket,
		events:     opts.Events,
		store:      opts.Store,
		agent:      opts.Agent,
		tracker:    echotrack.New(config.SentTrackerTTL),
		groups:     groups,
		pool:       opts.Pool,
		botID:      opts.BotID,
		botAlt:     opts.BotAlt,
		pending:    make(map[string]*pendingEntry),
		timers:     make(map[string]*time.Timer),
		processing: make(map[string]bool),
		aborts:     make(map[string]context.CancelFunc),
	}
}

// Attach subscribes to inbound message events.
func (b *Bridge) Attach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attached {
		return
	}
	b.attached = true
	if b.events != nil {
		b.handlerID = b.events.AddEventHandler(func(rawEvt interface{}) {
			if evt, ok := rawEvt.(*events.Message); ok {
				b.HandleEvent(evt)
			}
		})
	}
	logrus.Info("[BRIDGE] Attached")
}

// Detach unsubscribes, cancels every pending timer, aborts every
// in-flight agent call, and clears all ephemeral state.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return
	}
	b.attached = false
	if b.events != nil {
		b.events.RemoveEventHandler(b.handlerID)
	}
	for key, t := range b.timers {
		t.Stop()
		delete(b.timers, key)
	}
	for key, cancel := range b.aborts {
		cancel()
		delete(b.aborts, key)
	}
	b.pending = make(map[string]*pendingEntry)
	b.processing = make(map[string]bool)
	logrus.Info("[BRIDGE] Detached")
}

// HandleEvent runs one inbound message through the filter pipeline and
// into the debounce buffer. Work is dispatched to the worker pool when
// one is configured, preserving per-chat ordering.
func (b *Bridge) HandleEvent(evt *events.Message) {
	if evt == nil || evt.Message == nil {
		return
	}

	b.mu.Lock()
	attached := b.attached
	b.mu.Unlock()
	if !attached {
		return
	}

	b.tracker.Prune()

	if evt.Info.IsFromMe {
		if b.tracker.Consume(string(evt.Info.ID)) {
			logrus.Debugf("[BRIDGE] Suppressed echo of own message %s", evt.Info.ID)
		}
		// Self-authored traffic is never processed.
		return
	}

	chatJID := evt.Info.Chat.String()
	if chatJID == "" {
		return
	}

	if b.pool != nil {
		b.pool.Dispatch(msgworker.Job{
			ChatJID: chatJID,
			Handler: func(ctx context.Context) error {
				b.handleInbound(ctx, evt)
				return nil
			},
		})
		return
	}
	b.handleInbound(context.Background(), evt)
}

func (b *Bridge) handleInbound(ctx context.Context, evt *events.Message) {
	msg := Unwrap(evt.Message)
	text := strings.TrimSpace(ExtractText(msg))
	media := ExtractMedia(msg)
	if text == "" && media == nil {
		return
	}

	if evt.Info.Chat.Server == types.GroupServer {
		b.handleGroupMessage(ctx, evt, msg, text, media)
		return
	}
	b.handleDirectMessage(ctx, evt, msg, text, media)
}

func (b *Bridge) handleDirectMessage(ctx context.Context, evt *events.Message, msg *waE2E.Message, text string, media *envelope.MediaRef) {
	remoteID := evt.Info.Chat.String()
	phone := waid.Normalize(remoteID)

	if !b.store.IsAllowed(ctx, remoteID, phone) {
		if text == "/pair" {
			b.handlePairing(ctx, remoteID, evt.Info.Chat)
		}
		return
	}

	meta := &envelope.Meta{
		Channel:    "whatsapp",
		Type:       "dm",
		SenderJID:  remoteID,
		SenderName: evt.Info.PushName,
		Timestamp:  messageTime(evt),
		QuotedText: QuotedText(msg),
		Attachment: media,
	}
	b.buffer(remoteID, phone, text, remoteID, meta, false, false, "")
}

func (b *Bridge) handleGroupMessage(ctx context.Context, evt *events.Message, msg *waE2E.Message, text string, media *envelope.MediaRef) {
	groupID := evt.Info.Chat.String()

	cfg := b.store.GetGroupConfig(ctx, groupID)
	if !cfg.Allowed {
		return
	}

	participantID := evt.Info.Sender.String()
	if participantID == "" {
		return
	}

	phone := waid.Normalize(participantID)
	key := groupID + ":" + participantID
	mentioned := IsBotMentioned(msg, b.botID, b.botAlt)
	groupName := b.groups.Name(ctx, groupID)

	meta := &envelope.Meta{
		Channel:    "whatsapp",
		Type:       "group",
		SenderJID:  participantID,
		SenderName: evt.Info.PushName,
		Timestamp:  messageTime(evt),
		GroupJID:   groupID,
		GroupName:  groupName,
		Mentioned:  mentioned,
		QuotedText: QuotedText(msg),
		Attachment: media,
	}
	b.buffer(key, phone, text, groupID, meta, mentioned, true, cfg.Mode)
}

// buffer appends text under the debounce key, signals any in-flight run
// to abort, and (re)arms the flush timer. Mentions flush on the next
// tick instead of waiting out the window.
func (b *Bridge) buffer(key, phone, text, replyTo string, meta *envelope.Meta, immediate, isGroup bool, mode policy.GroupMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.attached {
		return
	}

	e := b.pending[key]
	if e == nil {
		e = &pendingEntry{phone: phone, replyTo: replyTo, isGroup: isGroup, mode: mode}
		b.pending[key] = e
	}
	if text != "" {
		e.texts = append(e.texts, text)
	} else if meta != nil && meta.Attachment != nil {
		// Attachment with no caption still reaches the agent.
		e.texts = append(e.texts, "")
	}
	e.meta = meta
	e.mode = mode

	if cancel, ok := b.aborts[key]; ok {
		cancel()
	}

	if t, ok := b.timers[key]; ok {
		t.Stop()
	}
	delay := config.DebounceWindow
	if immediate {
		delay = 0
	}
	b.timers[key] = time.AfterFunc(delay, func() {
		b.flush(key)
	})
}

func (b *Bridge) flush(key string) {
	b.mu.Lock()
	if b.processing[key] {
		// The outstanding run re-flushes on completion.
		b.mu.Unlock()
		return
	}
	e := b.pending[key]
	delete(b.pending, key)
	if t, ok := b.timers[key]; ok {
		t.Stop()
		delete(b.timers, key)
	}
	if e == nil || len(e.texts) == 0 {
		b.mu.Unlock()
		return
	}

	combined := strings.TrimSpace(strings.Join(e.texts, "\n"))

	b.processing[key] = true
	ctx, cancel := context.WithTimeout(context.Background(), config.AgentTimeout)
	b.aborts[key] = cancel
	b.mu.Unlock()

	runLog := logrus.WithFields(logrus.Fields{"run_id": uuid.NewString(), "key": key})
	runLog.Debugf("[BRIDGE] Run started with %d buffered message(s)", len(e.texts))
	if err := b.processMessage(ctx, e, combined); err != nil {
		runLog.WithError(err).Error("[BRIDGE] Processing failed")
	}

	cancel()
	b.mu.Lock()
	delete(b.processing, key)
	delete(b.aborts, key)
	hasPending := b.pending[key] != nil && len(b.pending[key].texts) > 0
	b.mu.Unlock()

	if hasPending {
		// The abort already implied urgency, no new debounce wait.
		go b.flush(key)
	}
}

func (b *Bridge) processMessage(ctx context.Context, e *pendingEntry, body string) error {
	meta := e.meta

	var threadID, threadTitle string
	threadMeta := map[string]string{}
	if e.isGroup {
		threadID = "whatsapp-group-" + meta.GroupJID
		threadTitle = "WhatsApp Group: " + meta.GroupName
		threadMeta["type"] = "whatsapp-group"
		threadMeta["groupID"] = meta.GroupJID
		threadMeta["groupName"] = meta.GroupName
	} else {
		threadID = "whatsapp-" + e.phone
		threadTitle = "WhatsApp: " + e.phone
		threadMeta["type"] = "whatsapp"
		threadMeta["phone"] = e.phone
	}

	observing := e.isGroup && (e.mode == policy.ModeObserve ||
		(e.mode == policy.ModeMentions && !meta.Mentioned))

	// The envelope always opens the agent input; the observe banner
	// wraps only the user body inside it.
	content := body
	if observing {
		content = envelope.ObserveWrap(meta.GroupJID, content)
	}
	if meta != nil {
		content = envelope.WrapContext(*meta, content)
	}

	replyJID, err := types.ParseJID(e.replyTo)
	if err != nil {
		return fmt.Errorf("invalid reply JID %q: %w", e.replyTo, err)
	}

	if !observing {
		b.presence(replyJID, types.ChatPresenceComposing)
	}
	defer func() {
		if !observing {
			b.presence(replyJID, types.ChatPresencePaused)
		}
	}()

	reply, err := b.agent.Generate(ctx, agent.Request{
		ThreadID:    threadID,
		ThreadTitle: threadTitle,
		ThreadMeta:  threadMeta,
		Content:     content,
		ResourceID:  config.AgentResourceID,
	})
	if err != nil {
		if ctx.Err() != nil {
			// Cancelled by newer input or the run timer: end of run,
			// no output. The re-flush path picks up buffered texts.
			logrus.Debugf("[BRIDGE] Agent run cancelled for %s", threadID)
			return nil
		}
		return fmt.Errorf("agent call failed: %w", err)
	}
	if reply == nil {
		return nil
	}

	text := reply.Text
	if strings.TrimSpace(text) == "" || envelope.ContainsNoReply(text) {
		return nil
	}
	text = envelope.StripDirectives(text)
	if text == "" {
		return nil
	}
	if observing {
		return nil
	}

	_, err = b.sendChunks(ctx, replyJID, text)
	return err
}

// sendChunks delivers a reply in order, recording each wire id so the
// server echo is recognized later. Cancellation is checked before each
// chunk; a send error abandons the rest of the reply.
func (b *Bridge) sendChunks(ctx context.Context, to types.JID, text string) (string, error) {
	lastID := ""
	for _, chunk := range textchunk.Split(text, config.MaxTextLength) {
		if ctx.Err() != nil {
			return lastID, nil
		}
		sendCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		resp, err := b.sock.SendMessage(sendCtx, to, &waE2E.Message{
			ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String(chunk)},
		})
		cancel()
		if err != nil {
			return lastID, fmt.Errorf("send to %s failed: %w", to, err)
		}
		b.tracker.Record(string(resp.ID))
		lastID = string(resp.ID)
	}
	return lastID, nil
}

// SendOutbound chunks and sends text (optionally preceded by media) to
// a raw JID string, returning the wire id of the last message.
func (b *Bridge) SendOutbound(ctx context.Context, toJID, text string, media *OutboundMedia) (string, error) {
	to, err := types.ParseJID(toJID)
	if err != nil {
		return "", fmt.Errorf("invalid JID %q: %w", toJID, err)
	}

	lastID := ""
	if media != nil {
		id, err := b.sendMedia(ctx, to, media)
		if err != nil {
			return "", err
		}
		b.tracker.Record(id)
		lastID = id
	}
	if strings.TrimSpace(text) != "" {
		id, err := b.sendChunks(ctx, to, text)
		if err != nil {
			return lastID, err
		}
		if id != "" {
			lastID = id
		}
	}
	return lastID, nil
}

// handlePairing answers an unknown DM's /pair request with a six-digit
// code valid for one hour. Approval happens out-of-band over the REST
// surface.
func (b *Bridge) handlePairing(ctx context.Context, rawID string, replyTo types.JID) {
	code := ""
	active, err := b.store.FindActivePairing(ctx, rawID)
	if err != nil {
		logrus.WithError(err).Errorf("[BRIDGE] Pairing lookup failed for %s", rawID)
		return
	}
	if active != nil {
		code = active.Code
	} else {
		if err := b.store.CleanExpiredPairings(ctx, rawID); err != nil {
			logrus.WithError(err).Warnf("[BRIDGE] Failed to clean expired pairings for %s", rawID)
		}
		code = fmt.Sprintf("%d", 100000+rand.IntN(900000))
		if err := b.store.CreatePairing(ctx, policy.PairingEntry{
			Code:      code,
			RawID:     rawID,
			ExpiresAt: time.Now().Add(config.PairingTTL),
		}); err != nil {
			logrus.WithError(err).Errorf("[BRIDGE] Failed to create pairing for %s", rawID)
			return
		}
	}

	body := fmt.Sprintf("Your pairing code is %s. Ask the operator to approve it within 1 hour.", code)
	resp, err := b.sock.SendMessage(ctx, replyTo, &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String(body)},
	})
	if err != nil {
		logrus.WithError(err).Errorf("[BRIDGE] Failed to send pairing code to %s", rawID)
		return
	}
	b.tracker.Record(string(resp.ID))
	logrus.Infof("[BRIDGE] Pairing code issued for %s", rawID)
}

// presence is fire-and-forget: never awaited, failures swallowed.
func (b *Bridge) presence(to types.JID, state types.ChatPresence) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := b.sock.SendChatPresence(ctx, to, state, types.ChatPresenceMediaText); err != nil {
			logrus.WithError(err).Debugf("[BRIDGE] Presence update to %s failed", to)
		}
	}()
}

func messageTime(evt *events.Message) time.Time {
	if !evt.Info.Timestamp.IsZero() {
		return evt.Info.Timestamp
	}
	return time.Now()
}
