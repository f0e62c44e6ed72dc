package envelope

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ts = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func TestFormatDM(t *testing.T) {
	out := Format(Meta{
		Channel:    "whatsapp",
		Type:       "dm",
		SenderJID:  "1234567890@s.whatsapp.net",
		SenderName: "Ada",
		Timestamp:  ts,
	})

	assert.Contains(t, out, "<channel>whatsapp</channel>")
	assert.Contains(t, out, "<type>dm</type>")
	assert.Contains(t, out, `<sender name="Ada" jid="1234567890@s.whatsapp.net" />`)
	assert.Contains(t, out, "<timestamp>2026-03-14T09:26:53Z</timestamp>")
	assert.NotContains(t, out, "<group")
	assert.NotContains(t, out, "<mentioned>")
}

func TestFormatGroupWithMention(t *testing.T) {
	out := Format(Meta{
		Channel:   "whatsapp",
		Type:      "group",
		SenderJID: "55@s.whatsapp.net",
		Timestamp: ts,
		GroupJID:  "120363@g.us",
		GroupName: "Ops & Infra",
		Mentioned: true,
	})

	assert.Contains(t, out, `<group name="Ops &amp; Infra" jid="120363@g.us" />`)
	assert.Contains(t, out, "<mentioned>true</mentioned>")
	// No push name on the event yields a sender without a name attribute.
	assert.Contains(t, out, `<sender jid="55@s.whatsapp.net" />`)
}

func TestFormatEscapesSenderName(t *testing.T) {
	out := Format(Meta{
		Channel:    "whatsapp",
		Type:       "dm",
		SenderJID:  "1@s.whatsapp.net",
		SenderName: `He said "hi" <now>`,
		Timestamp:  ts,
	})
	assert.Contains(t, out, "He said &#34;hi&#34; &lt;now&gt;")
	assert.NotContains(t, out, `"hi"`)
}

func TestFormatQuotedAndAttachment(t *testing.T) {
	out := Format(Meta{
		Channel:    "whatsapp",
		Type:       "dm",
		SenderJID:  "1@s.whatsapp.net",
		Timestamp:  ts,
		QuotedText: "a < b",
		Attachment: &MediaRef{
			Kind:     "document",
			MimeType: "application/pdf",
			FileSize: 1024,
			FileName: "report.pdf",
		},
	})
	assert.Contains(t, out, "<quoted>a &lt; b</quoted>")
	assert.Contains(t, out, `<attachment type="document" mimeType="application/pdf" size="1024" fileName="report.pdf" />`)
}

func TestWrapContext(t *testing.T) {
	m := Meta{Channel: "whatsapp", Type: "dm", SenderJID: "1@s.whatsapp.net", Timestamp: ts}
	out := WrapContext(m, "hello there")
	require.True(t, len(out) > len("hello there"))
	assert.Contains(t, out, "<message-context>\n<context>")
	assert.Contains(t, out, "</context>\n</message-context>\nhello there")
}

func TestObserveWrap(t *testing.T) {
	out := ObserveWrap("120363@g.us", "body text")
	assert.Contains(t, out, "<observe-mode>")
	assert.Contains(t, out, "[OBSERVATION ONLY]")
	assert.Contains(t, out, `msg send --channel whatsapp --to "120363@g.us"`)
	assert.Contains(t, out, "</observe-mode>\nbody text")
}

func TestNoReplyDirective(t *testing.T) {
	assert.True(t, ContainsNoReply("something <no-reply/> else"))
	assert.False(t, ContainsNoReply("<NO-REPLY/>"))
	assert.False(t, ContainsNoReply("<no-reply />"))

	assert.Equal(t, "something  else", StripDirectives("something <no-reply/> else "))
	assert.Equal(t, "", StripDirectives(" <no-reply/> "))
}
