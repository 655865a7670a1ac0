// Package model defines data structures for the storefront agent platform.
package model

import (
	"encoding/json"
	"time"
)

// TenantStatus represents the operating status of a tenant.
type TenantStatus string

const (
	TenantActive    TenantStatus = "active"
	TenantInactive  TenantStatus = "inactive"
	TenantSuspended TenantStatus = "suspended"
)

// Plan represents a subscription tier. The tier gates which tools are
// exposed to the tenant's persona.
type Plan string

const (
	PlanFree  Plan = "free"
	PlanBasic Plan = "basic"
	PlanPro   Plan = "pro"
)

// Tenant represents one configured conversational persona ("store").
type Tenant struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Persona string       `json:"persona"`
	Status  TenantStatus `json:"status"`
	Plan    Plan         `json:"plan"`

	// OwnerID is the authenticated end-user allowed to issue admin
	// commands through chat. Empty until bound.
	OwnerID string `json:"owner_id,omitempty"`

	// Tools are tenant-registered function specs dispatched to remote
	// endpoints. Built-in tools always take precedence on name collision.
	Tools []ToolBinding `json:"tools,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the tenant may serve conversations.
func (t *Tenant) Active() bool {
	return t.Status == TenantActive
}

// ToolBinding is a tenant-registered tool: a function spec bound to a
// remote HTTP endpoint that receives the model-supplied arguments.
type ToolBinding struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
	Endpoint    string          `json:"endpoint"`
}

// KnowledgeEntry is one question/answer pair in a tenant's knowledge base.
type KnowledgeEntry struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}
