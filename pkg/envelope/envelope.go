// Package envelope renders the structured context block that precedes
// every message body handed to the agent, plus the reply directives the
// agent may embed in its output.
package envelope

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// NoReplyDirective suppresses delivery of the agent reply entirely.
const NoReplyDirective = "<no-reply/>"

// MediaRef describes an attachment without carrying its bytes.
type MediaRef struct {
	Kind     string // image, video, audio, document, sticker, location
	MimeType string
	Caption  string
	FileName string
	FileSize uint64
	Seconds  uint32
	Width    uint32
	Height   uint32
	Voice    bool
}

// Meta is everything the agent needs to know about where a message
// came from.
type Meta struct {
	Channel    string
	Type       string // "dm" or "group"
	SenderJID  string
	SenderName string
	Timestamp  time.Time
	GroupJID   string
	GroupName  string
	Mentioned  bool
	QuotedText string
	Attachment *MediaRef
}

// Format renders the <context> block. xml.EscapeText covers quotes, so
// the same escaping serves attribute values and text children.
func Format(m Meta) string {
	var b strings.Builder
	b.WriteString("<context>\n")
	fmt.Fprintf(&b, "  <channel>%s</channel>\n", escape(m.Channel))
	fmt.Fprintf(&b, "  <type>%s</type>\n", escape(m.Type))
	if m.SenderName != "" {
		fmt.Fprintf(&b, "  <sender name=\"%s\" jid=\"%s\" />\n", escape(m.SenderName), escape(m.SenderJID))
	} else {
		fmt.Fprintf(&b, "  <sender jid=\"%s\" />\n", escape(m.SenderJID))
	}
	fmt.Fprintf(&b, "  <timestamp>%s</timestamp>\n", m.Timestamp.UTC().Format(time.RFC3339))
	if m.GroupJID != "" {
		fmt.Fprintf(&b, "  <group name=\"%s\" jid=\"%s\" />\n", escape(m.GroupName), escape(m.GroupJID))
	}
	if m.Mentioned {
		b.WriteString("  <mentioned>true</mentioned>\n")
	}
	if m.QuotedText != "" {
		fmt.Fprintf(&b, "  <quoted>%s</quoted>\n", escape(m.QuotedText))
	}
	if a := m.Attachment; a != nil {
		fmt.Fprintf(&b, "  <attachment type=\"%s\" mimeType=\"%s\"", escape(a.Kind), escape(a.MimeType))
		if a.FileSize > 0 {
			fmt.Fprintf(&b, " size=\"%d\"", a.FileSize)
		}
		if a.FileName != "" {
			fmt.Fprintf(&b, " fileName=\"%s\"", escape(a.FileName))
		}
		b.WriteString(" />\n")
	}
	b.WriteString("</context>")
	return b.String()
}

// WrapContext prepends the rendered envelope to the message body.
func WrapContext(m Meta, body string) string {
	return "<message-context>\n" + Format(m) + "\n</message-context>\n" + body
}

// ObserveWrap marks content as observation-only so the agent knows its
// reply will never reach the group.
func ObserveWrap(groupID, body string) string {
	return "<observe-mode>\n" +
		"[OBSERVATION ONLY] Your response will NOT be sent to the group.\n" +
		"To proactively message this group, use the msg CLI:\n" +
		"  msg send --channel whatsapp --to \"" + groupID + "\" \"your message\"\n" +
		"</observe-mode>\n" + body
}

// ContainsNoReply reports whether the agent asked for silence. The
// match is literal and case-sensitive.
func ContainsNoReply(s string) bool {
	return strings.Contains(s, NoReplyDirective)
}

// StripDirectives removes reply directives and trims the result.
func StripDirectives(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, NoReplyDirective, ""))
}

func escape(s string) string {
	var buf bytes.Buffer
	_ = xml.EscapeText(&buf, []byte(s))
	return buf.String()
}
