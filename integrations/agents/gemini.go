package agents

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/agentwa/wabridge/domains/agent"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini answers through the Google genai API.
type Gemini struct {
	apiKey  string
	model   string
	history *history
}

func NewGemini(apiKey, model string) *Gemini {
	if model == "" {
		model = defaultGeminiModel
	}
	return &Gemini{apiKey: apiKey, model: model, history: newHistory()}
}

func (g *Gemini) Generate(ctx context.Context, req agent.Request) (*agent.Reply, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	genConfig := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(req), genai.RoleUser),
	}

	var contents []*genai.Content
	for _, t := range g.history.get(req.ThreadID) {
		role := genai.RoleUser
		if t.role == "model" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: t.text}},
		})
	}
	contents = append(contents, &genai.Content{
		Role:  genai.RoleUser,
		Parts: []*genai.Part{{Text: req.Content}},
	})

	result, err := client.Models.GenerateContent(ctx, g.model, contents, genConfig)
	if err != nil {
		return nil, fmt.Errorf("gemini generate: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	g.history.add(req.ThreadID, req.Content, text)
	return &agent.Reply{Text: text}, nil
}
