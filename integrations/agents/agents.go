// Package agents provides the AI backends that answer bridged
// conversations. The active provider is chosen by configuration.
package agents

import (
	"fmt"
	"strings"
	"sync"

	"github.com/agentwa/wabridge/config"
	"github.com/agentwa/wabridge/domains/agent"
)

// New builds the configured provider.
func New() (agent.Agent, error) {
	switch config.AgentProvider {
	case "gemini", "":
		if config.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
		}
		return NewGemini(config.GeminiAPIKey, config.AgentModel), nil
	case "openai":
		if config.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
		}
		return NewOpenAI(config.OpenAIAPIKey, config.AgentModel), nil
	}
	return nil, fmt.Errorf("unknown agent provider: %s", config.AgentProvider)
}

const historyLimit = 20

type turn struct {
	role string // "user" or "model"
	text string
}

// history keeps a bounded per-thread transcript so follow-up messages
// carry conversational context to the model.
type history struct {
	mu      sync.Mutex
	threads map[string][]turn
}

func newHistory() *history {
	return &history{threads: make(map[string][]turn)}
}

func (h *history) get(threadID string) []turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]turn(nil), h.threads[threadID]...)
}

func (h *history) add(threadID string, userText, modelText string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := append(h.threads[threadID],
		turn{role: "user", text: userText},
		turn{role: "model", text: modelText},
	)
	if len(turns) > historyLimit {
		turns = turns[len(turns)-historyLimit:]
	}
	h.threads[threadID] = turns
}

// systemPrompt describes the bridge contract to the model.
func systemPrompt(req agent.Request) string {
	var b strings.Builder
	b.WriteString("You are a personal assistant reachable over WhatsApp. ")
	b.WriteString("Each user message starts with a <message-context> block describing the sender and conversation; never echo it back. ")
	b.WriteString("Messages wrapped in <observe-mode> are for your awareness only: reply with <no-reply/>. ")
	b.WriteString("If no response is warranted, reply with exactly <no-reply/>.")
	if req.ThreadTitle != "" {
		fmt.Fprintf(&b, "\nConversation: %s", req.ThreadTitle)
	}
	return b.String()
}
