package waid

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain jid", "1234567890@s.whatsapp.net", "+1234567890"},
		{"device sub-id", "1234567890:12@s.whatsapp.net", "+1234567890"},
		{"group untouched", "12036304@g.us", "12036304@g.us"},
		{"already canonical", "+1234567890", "+1234567890"},
		{"bare digits", "1234567890", "+1234567890"},
		{"lid head stays opaque", "abc123@lid", "abc123"},
		{"whitespace trimmed", "  1234567890@s.whatsapp.net ", "+1234567890"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"1234567890@s.whatsapp.net",
		"12036304@g.us",
		"+49123456",
		"weird-head@lid",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "Normalize must be idempotent for %q", in)
	}
}

func TestToJID(t *testing.T) {
	assert.Equal(t, "1234567890@s.whatsapp.net", ToJID("+1 (234) 567-890"))
	assert.Equal(t, "1234567890@s.whatsapp.net", ToJID("1234567890"))
	// Anything already carrying a server passes through.
	assert.Equal(t, "12036304@g.us", ToJID("12036304@g.us"))
	assert.Equal(t, "55@s.whatsapp.net", ToJID("55@s.whatsapp.net"))
}

func TestDigitHead(t *testing.T) {
	assert.Equal(t, "1234567890", DigitHead("1234567890:7@s.whatsapp.net"))
	assert.Equal(t, "1234567890", DigitHead("+1234567890"))
	assert.Equal(t, "", DigitHead("abc@lid"))
}

func TestIsGroup(t *testing.T) {
	assert.True(t, IsGroup("12036304@g.us"))
	assert.False(t, IsGroup("1234567890@s.whatsapp.net"))
}
