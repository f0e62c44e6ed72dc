package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/agentwa/wabridge/domains/agent"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI answers through the OpenAI chat completions API.
type OpenAI struct {
	client  openai.Client
	model   string
	history *history
}

func NewOpenAI(apiKey, model string) *OpenAI {
	if model == "" {
		model = defaultOpenAIModel
	}
	return &OpenAI{
		client:  openai.NewClient(option.WithAPIKey(apiKey)),
		model:   model,
		history: newHistory(),
	}
}

func (o *OpenAI) Generate(ctx context.Context, req agent.Request) (*agent.Reply, error) {
	messages := []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(systemPrompt(req)),
	}
	for _, t := range o.history.get(req.ThreadID) {
		if t.role == "model" {
			messages = append(messages, openai.AssistantMessage(t.text))
		} else {
			messages = append(messages, openai.UserMessage(t.text))
		}
	}
	messages = append(messages, openai.UserMessage(req.Content))

	completion, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(o.model),
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return &agent.Reply{}, nil
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	o.history.add(req.ThreadID, req.Content, text)
	return &agent.Reply{Text: text}, nil
}
