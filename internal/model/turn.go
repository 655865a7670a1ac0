package model

import (
	"time"
)

// Role represents the role of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// Turn represents one exchange unit in a conversation, scoped to a
// (tenant, end-user) pair.
type Turn struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"user_id"`

	Role    Role   `json:"role"`
	Content string `json:"content"`

	// ToolCallID links a tool-role turn back to the invocation that
	// produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// Sequence is the JetStream sequence, populated on read.
	Sequence uint64 `json:"sequence,omitempty"`
}

// Reply is the post-processed result of one pipeline turn: the
// user-visible text plus UI-routing metadata extracted from the raw
// model output.
type Reply struct {
	Text string `json:"text"`
	Meta Meta   `json:"meta"`
}

// Meta carries UI-routing hints the model appends as a trailing JSON
// object. Unknown keys are preserved in Extra.
type Meta struct {
	NextPanel    string         `json:"next_panel,omitempty"`
	SelectedPlan string         `json:"selected_plan,omitempty"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// DefaultMeta returns the metadata used when the model emitted none, or
// when the trailing block failed to parse.
func DefaultMeta() Meta {
	return Meta{NextPanel: "chat"}
}
