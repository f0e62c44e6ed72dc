package whatsapp

import (
	"context"
	"fmt"
	"strings"

	"github.com/agentwa/wabridge/domains/policy"
	"github.com/agentwa/wabridge/pkg/waid"
)

// ChannelAdapter is the outbound face of the bridge: it resolves
// human-friendly recipients (phone numbers) to wire JIDs through the
// allowlist and delegates delivery to the bridge.
type ChannelAdapter struct {
	bridge *Bridge
	store  policy.Store
	status func() string
}

func NewChannelAdapter(bridge *Bridge, store policy.Store, status func() string) *ChannelAdapter {
	return &ChannelAdapter{bridge: bridge, store: store, status: status}
}

// Send resolves the recipient and delivers text (and optional media).
// Recipients already carrying a server ("@") pass through unchanged;
// bare phone numbers must be on the allowlist.
func (a *ChannelAdapter) Send(ctx context.Context, to, text string, media *OutboundMedia) (string, error) {
	toJID := strings.TrimSpace(to)
	if toJID == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	if !strings.Contains(toJID, "@") {
		phone := waid.Normalize(toJID)
		entry, err := a.store.GetAllowlistEntry(ctx, phone)
		if err != nil {
			return "", fmt.Errorf("allowlist lookup failed: %w", err)
		}
		if entry == nil {
			return "", fmt.Errorf("%s not in allowlist", phone)
		}
		if entry.RawID != "" {
			toJID = entry.RawID
		} else {
			toJID = waid.ToJID(phone)
		}
	}

	return a.bridge.SendOutbound(ctx, toJID, text, media)
}

// Status reports the supervisor's connection state.
func (a *ChannelAdapter) Status() string {
	if a.status == nil {
		return "unknown"
	}
	return a.status()
}
