// Package agenkit provides the core types shared by the research orchestrator:
// messages exchanged with models, the actions agents return, and the gateway
// contract through which agents are invoked.
package agenkit

import (
	"context"
	"time"
)

// Message roles understood by the LLM adapters.
const (
	RoleSystem = "system"
	RoleUser   = "user"
	RoleAgent  = "agent"
)

// Message represents a message exchanged with a model.
type Message struct {
	Role      string                 `json:"role"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role, content string) *Message {
	return &Message{
		Role:      role,
		Content:   content,
		Metadata:  make(map[string]interface{}),
		Timestamp: time.Now().UTC(),
	}
}

// WithMetadata adds metadata to the message and returns the message for chaining.
func (m *Message) WithMetadata(key string, value interface{}) *Message {
	m.Metadata[key] = value
	return m
}

// AgentRole identifies which agent a gateway request is addressed to.
type AgentRole string

const (
	RoleResearcher AgentRole = "researcher"
	RoleReviewer   AgentRole = "reviewer"
)

// Exchange is a prior question/answer pair from the same session.
type Exchange struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Observation is the outcome of a tool call as shown to the researcher.
type Observation struct {
	Tool   string                 `json:"tool"`
	Input  map[string]interface{} `json:"input,omitempty"`
	Output interface{}            `json:"output,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// Failed reports whether the tool call behind the observation failed.
func (o Observation) Failed() bool {
	return o.Error != ""
}

// Request carries everything an agent may look at for one invocation.
type Request struct {
	Role      AgentRole
	SessionID string
	Question  string

	// History holds the most recent prior turns of the session, oldest first.
	History []Exchange

	// Scratch holds the session's scratch notes at the start of the run.
	Scratch map[string]string

	Observations []Observation

	// Feedback holds reviewer feedback from earlier rounds of this run.
	Feedback []string

	// Draft is the answer under review. Reviewer requests only.
	Draft string

	// Tools describes the registered tools. Researcher requests only.
	Tools string

	Iteration int
}

// Gateway invokes an agent and returns its next action.
type Gateway interface {
	Invoke(ctx context.Context, req Request) (Action, error)
}

// GatewayFunc adapts a function to the Gateway interface.
type GatewayFunc func(ctx context.Context, req Request) (Action, error)

// Invoke calls f.
func (f GatewayFunc) Invoke(ctx context.Context, req Request) (Action, error) {
	return f(ctx, req)
}
