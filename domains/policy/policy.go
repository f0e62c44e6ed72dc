// Package policy defines who the bridge talks to: the DM allowlist,
// pending pairing codes, and per-group reply modes.
package policy

import (
	"context"
	"time"
)

// GroupMode controls how the bridge reacts inside an allowed group.
type GroupMode string

const (
	// ModeAll forwards every group message to the agent.
	ModeAll GroupMode = "all"
	// ModeMentions forwards only messages that mention the bot.
	ModeMentions GroupMode = "mentions"
	// ModeObserve forwards everything but never sends a reply.
	ModeObserve GroupMode = "observe"
)

// Valid reports whether m is one of the known modes.
func (m GroupMode) Valid() bool {
	switch m {
	case ModeAll, ModeMentions, ModeObserve:
		return true
	}
	return false
}

// AllowlistEntry is one approved DM correspondent. Phone is the
// canonical +<digits> form and the unique key; RawID keeps the wire
// identifier the entry was approved under.
type AllowlistEntry struct {
	Phone     string
	RawID     string
	Label     string
	CreatedAt time.Time
}

// PairingEntry is a pending six-digit pairing code.
type PairingEntry struct {
	Code      string
	RawID     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the code is past its deadline.
func (p PairingEntry) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// GroupEntry is one configured group.
type GroupEntry struct {
	GroupID   string
	Label     string
	Allowed   bool
	Mode      GroupMode
	CreatedAt time.Time
}

// GroupConfig is the effective decision for a group: disabled or
// missing entries come back {Allowed: false, Mode: mentions}.
type GroupConfig struct {
	Allowed bool
	Mode    GroupMode
}

// Store persists bridge policy. Reads used for authorization are
// fail-closed: implementations must return false on storage errors,
// never true. All writes are serialized by the implementation.
type Store interface {
	// IsAllowed reports whether a DM correspondent may reach the agent,
	// matching by canonical phone or by raw wire identifier.
	IsAllowed(ctx context.Context, rawID, phone string) bool
	GetAllowlistEntry(ctx context.Context, phone string) (*AllowlistEntry, error)
	AddToAllowlist(ctx context.Context, entry AllowlistEntry) error
	RemoveFromAllowlist(ctx context.Context, phoneOrRawID string) error
	ListAllowlist(ctx context.Context) ([]AllowlistEntry, error)

	FindActivePairing(ctx context.Context, rawID string) (*PairingEntry, error)
	CreatePairing(ctx context.Context, entry PairingEntry) error
	CleanExpiredPairings(ctx context.Context, rawID string) error
	GetPairing(ctx context.Context, code string) (*PairingEntry, error)
	DeletePairing(ctx context.Context, code string) error

	GetGroupConfig(ctx context.Context, groupID string) GroupConfig
	ListGroups(ctx context.Context) ([]GroupEntry, error)
	AddGroup(ctx context.Context, entry GroupEntry) error
	UpdateGroup(ctx context.Context, entry GroupEntry) error
	RemoveGroup(ctx context.Context, groupID string) error

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}
