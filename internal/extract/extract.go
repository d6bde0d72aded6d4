// Package extract defines the boundary to the natural-language intent
// extraction service. The orchestrator treats it as an opaque,
// fallible collaborator: it may time out, return malformed output, or
// set several intent flags at once — the caller resolves conflicts by
// a fixed priority, never the extractor.
package extract

import (
	"context"

	"github.com/mbrandao/opchat/internal/models"
)

// Target narrows which record kind a delete or update refers to.
type Target string

const (
	TargetOrder Target = "order"
	TargetPart  Target = "part"
	TargetAny   Target = "any"
)

// Result is the structured extraction for one message. At most one
// intent flag is authoritative per turn; the dispatcher picks the
// branch by priority.
type Result struct {
	OrderIntent   bool `json:"is_order_intent"`
	AddPartIntent bool `json:"is_add_part_intent"`
	SearchIntent  bool `json:"is_search_intent"`
	DeleteIntent  bool `json:"is_delete_intent"`
	UpdateIntent  bool `json:"is_update_intent"`

	SearchQuery string `json:"search_query,omitempty"`

	DeleteTarget Target `json:"delete_target,omitempty"`
	DeleteQuery  string `json:"delete_query,omitempty"`

	UpdateTarget       Target         `json:"update_target,omitempty"`
	UpdateQuery        string         `json:"update_query,omitempty"`
	UpdateFields       map[string]any `json:"update_fields,omitempty"`
	MissingUpdateValue string         `json:"missing_update_value,omitempty"`

	// TargetOrderCode is the order an add-parts message names explicitly.
	TargetOrderCode string `json:"target_order_code,omitempty"`

	Data      *models.OrderDraft `json:"data,omitempty"`
	PartsData []models.PartDraft `json:"parts_data,omitempty"`

	MissingFields  []string `json:"missing_fields,omitempty"`
	MissingMessage string   `json:"missing_message,omitempty"`
}

// Extractor is the intent extraction service. Extract is called only
// in the Idle state, with the merged partial data and a bounded recent
// history window. Chat is the free-form conversational fallback.
type Extractor interface {
	Extract(ctx context.Context, message string, draft *models.OrderDraft, history []string) (*Result, error)
	Chat(ctx context.Context, message string, history []string) (string, error)
}
