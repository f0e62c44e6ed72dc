package whatsapp

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
	"go.mau.fi/whatsmeow/types"

	"github.com/agentwa/wabridge/config"
	"github.com/agentwa/wabridge/pkg/kvcache"
)

// GroupMetaCache serves group display names with a short TTL so every
// group message doesn't hit the network. Fetch failures degrade to the
// group identifier and are not cached, letting the next call retry.
type GroupMetaCache struct {
	sock  Socket
	cache kvcache.Cache
}

func NewGroupMetaCache(sock Socket, cache kvcache.Cache) *GroupMetaCache {
	if cache == nil {
		cache = kvcache.NewMemory()
	}
	return &GroupMetaCache{sock: sock, cache: cache}
}

// Name returns the group subject, or the group id itself when the
// metadata cannot be fetched.
func (g *GroupMetaCache) Name(ctx context.Context, groupID string) string {
	key := "groupmeta:" + groupID
	if name, err := g.cache.Get(ctx, key); err == nil && name != "" {
		return name
	}

	jid, err := types.ParseJID(groupID)
	if err != nil {
		return groupID
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	info, err := g.sock.GetGroupInfo(fetchCtx, jid)
	if err != nil || info == nil {
		logrus.WithError(err).Debugf("[BRIDGE] Group metadata fetch failed for %s", groupID)
		return groupID
	}

	name := info.GroupName.Name
	if name == "" {
		return groupID
	}
	if err := g.cache.Set(ctx, key, name, int64(config.GroupMetaTTL/time.Second)); err != nil {
		logrus.WithError(err).Debugf("[BRIDGE] Group metadata cache write failed for %s", groupID)
	}
	return name
}
