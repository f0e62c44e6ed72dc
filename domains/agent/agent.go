// Package agent defines the contract between the bridge and the AI
// backend that produces replies.
package agent

import "context"

// Request is one turn of conversation handed to the agent. ThreadID
// keys the agent-side conversation memory; ThreadMeta carries routing
// hints such as the channel and chat identifiers.
type Request struct {
	ThreadID    string
	ThreadTitle string
	ThreadMeta  map[string]string
	Content     string
	ResourceID  string
}

// Reply is the agent's answer. Empty text means stay silent.
type Reply struct {
	Text string
}

// Agent produces a reply for a conversation turn. Generate must honor
// ctx cancellation promptly: the bridge aborts in-flight calls whenever
// newer input arrives for the same conversation.
type Agent interface {
	Generate(ctx context.Context, req Request) (*Reply, error)
}
