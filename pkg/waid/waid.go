// Package waid normalizes WhatsApp identifiers between the wire form
// (JIDs with server suffixes and device sub-ids) and the canonical
// +<digits> phone form used by the policy store.
package waid

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

const (
	UserSuffix  = "@" + types.DefaultUserServer
	GroupSuffix = "@" + types.GroupServer
)

// Normalize converts a raw conversation identifier to its canonical form.
// Group JIDs pass through untouched. User JIDs lose their server suffix
// and device sub-id; pure digit heads gain a leading "+". Anything else
// is returned as-is (LID heads stay opaque).
func Normalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if strings.HasSuffix(s, GroupSuffix) {
		return s
	}
	head := s
	if idx := strings.Index(head, "@"); idx >= 0 {
		head = head[:idx]
	}
	if idx := strings.Index(head, ":"); idx >= 0 {
		head = head[:idx]
	}
	if strings.HasPrefix(head, "+") {
		return head
	}
	if head != "" && isDigits(head) {
		return "+" + head
	}
	return head
}

// ToJID builds a DM JID from a phone-number-ish string. Inputs that
// already carry a server pass through unchanged.
func ToJID(s string) string {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "@") {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String() + UserSuffix
}

// DigitHead returns the digit run that opens a JID user part, used for
// mention matching where device sub-ids and servers differ per event.
func DigitHead(s string) string {
	s = strings.TrimSpace(s)
	if idx := strings.Index(s, "@"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimPrefix(s, "+")
	for i, r := range s {
		if r < '0' || r > '9' {
			return s[:i]
		}
	}
	return s
}

// IsGroup reports whether a raw identifier names a group conversation.
func IsGroup(s string) bool {
	return strings.HasSuffix(strings.TrimSpace(s), GroupSuffix)
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
