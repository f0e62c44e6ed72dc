package policystore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentwa/wabridge/domains/policy"
)

func TestAllowlistMatchesPhoneOrRawID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AddToAllowlist(ctx, policy.AllowlistEntry{
		Phone: "+1234567890",
		RawID: "1234567890@s.whatsapp.net",
		Label: "Ada",
	}))

	assert.True(t, s.IsAllowed(ctx, "", "+1234567890"))
	assert.True(t, s.IsAllowed(ctx, "1234567890@s.whatsapp.net", "+000"))
	assert.False(t, s.IsAllowed(ctx, "other@s.whatsapp.net", "+999"))
}

func TestAllowlistUpsertKeepsPhoneUnique(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AddToAllowlist(ctx, policy.AllowlistEntry{Phone: "+1", Label: "old"}))
	require.NoError(t, s.AddToAllowlist(ctx, policy.AllowlistEntry{Phone: "+1", Label: "new"}))

	entries, err := s.ListAllowlist(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Label)
}

func TestRemoveFromAllowlistByRawID(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.AddToAllowlist(ctx, policy.AllowlistEntry{Phone: "+1", RawID: "1@s.whatsapp.net"}))
	require.NoError(t, s.RemoveFromAllowlist(ctx, "1@s.whatsapp.net"))
	assert.False(t, s.IsAllowed(ctx, "1@s.whatsapp.net", "+1"))
}

func TestFindActivePairingSkipsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rawID := "55@s.whatsapp.net"

	require.NoError(t, s.CreatePairing(ctx, policy.PairingEntry{
		Code:      "111111",
		RawID:     rawID,
		ExpiresAt: time.Now().Add(-time.Minute),
	}))
	got, err := s.FindActivePairing(ctx, rawID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, s.CreatePairing(ctx, policy.PairingEntry{
		Code:      "222222",
		RawID:     rawID,
		ExpiresAt: time.Now().Add(time.Hour),
	}))
	got, err = s.FindActivePairing(ctx, rawID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "222222", got.Code)
}

func TestCleanExpiredPairings(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	rawID := "55@s.whatsapp.net"

	require.NoError(t, s.CreatePairing(ctx, policy.PairingEntry{
		Code: "111111", RawID: rawID, ExpiresAt: time.Now().Add(-time.Minute),
	}))
	require.NoError(t, s.CreatePairing(ctx, policy.PairingEntry{
		Code: "222222", RawID: rawID, ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, s.CleanExpiredPairings(ctx, rawID))

	gone, err := s.GetPairing(ctx, "111111")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := s.GetPairing(ctx, "222222")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestGroupConfigDefaults(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Unknown group: not allowed, mentions mode.
	cfg := s.GetGroupConfig(ctx, "123@g.us")
	assert.False(t, cfg.Allowed)
	assert.Equal(t, policy.ModeMentions, cfg.Mode)

	// Disabled entry behaves like an absent one.
	require.NoError(t, s.AddGroup(ctx, policy.GroupEntry{GroupID: "123@g.us", Allowed: false, Mode: policy.ModeAll}))
	cfg = s.GetGroupConfig(ctx, "123@g.us")
	assert.False(t, cfg.Allowed)
	assert.Equal(t, policy.ModeMentions, cfg.Mode)

	// Entry without a mode defaults to mentions.
	require.NoError(t, s.AddGroup(ctx, policy.GroupEntry{GroupID: "456@g.us", Allowed: true}))
	cfg = s.GetGroupConfig(ctx, "456@g.us")
	assert.True(t, cfg.Allowed)
	assert.Equal(t, policy.ModeMentions, cfg.Mode)

	require.NoError(t, s.AddGroup(ctx, policy.GroupEntry{GroupID: "789@g.us", Allowed: true, Mode: policy.ModeObserve}))
	cfg = s.GetGroupConfig(ctx, "789@g.us")
	assert.True(t, cfg.Allowed)
	assert.Equal(t, policy.ModeObserve, cfg.Mode)
}

func TestUpdateGroupUnknownID(t *testing.T) {
	s := NewMemoryStore()
	err := s.UpdateGroup(context.Background(), policy.GroupEntry{GroupID: "nope@g.us"})
	assert.ErrorIs(t, err, ErrGroupNotFound)
}

func TestConfigRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	v, err := s.GetConfig(ctx, "bot_lid")
	require.NoError(t, err)
	assert.Empty(t, v)

	require.NoError(t, s.SetConfig(ctx, "bot_lid", "99887766@lid"))
	v, err = s.GetConfig(ctx, "bot_lid")
	require.NoError(t, err)
	assert.Equal(t, "99887766@lid", v)
}
