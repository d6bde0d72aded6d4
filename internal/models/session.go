package models

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in the session's bounded history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// SessionState is the tagged conversational state. A session is in
// exactly one state at any time.
type SessionState string

const (
	StateIdle                SessionState = "idle"
	StateAwaitingCreate      SessionState = "awaiting_create"
	StateAwaitingParts       SessionState = "awaiting_parts"
	StateAwaitingDelete      SessionState = "awaiting_delete"
	StateAwaitingUpdate      SessionState = "awaiting_update"
	StateAwaitingUpdateValue SessionState = "awaiting_update_value"
)

// CandidateKind distinguishes what a disambiguated candidate refers to.
type CandidateKind string

const (
	CandidateOrder CandidateKind = "order"
	CandidatePart  CandidateKind = "part"
)

// Candidate is a single disambiguated record held while a delete or
// update confirmation is pending. Fields carries the pending changes
// for updates.
type Candidate struct {
	Kind   CandidateKind  `json:"kind"`
	Order  *Order         `json:"order,omitempty"`
	Part   *Part          `json:"part,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// Label returns a short human-readable identifier for the candidate.
func (c Candidate) Label() string {
	if c.Kind == CandidateOrder && c.Order != nil {
		return "order " + c.Order.Code
	}
	if c.Part != nil {
		return "part " + c.Part.Name
	}
	return string(c.Kind)
}

// PendingUpdate holds an update intent whose new value has not been
// supplied yet; the next raw message is treated as the literal value.
type PendingUpdate struct {
	Target string `json:"target"`
	Query  string `json:"query"`
	Field  string `json:"field"`
}

// SearchCache keeps the records shown by the most recent search so
// follow-ups like "edit the one you just showed me" resolve locally.
type SearchCache struct {
	Orders []Order `json:"orders,omitempty"`
	Parts  []Part  `json:"parts,omitempty"`
}

// OrderDraft accumulates partial order data across turns. Absent
// fields are nil; non-nil fields from a newer extraction overwrite.
type OrderDraft struct {
	ClientName       *string  `json:"client_name,omitempty"`
	OrderNumber      *int     `json:"order_number,omitempty"`
	OrderDate        *string  `json:"order_date,omitempty"`
	DeliveryDate     *string  `json:"delivery_date,omitempty"`
	DeliveryForecast *string  `json:"delivery_forecast,omitempty"`
	TotalPrice       *float64 `json:"total_price,omitempty"`
	Tax              *float64 `json:"tax,omitempty"`
}

// Merge applies non-nil fields from in over d. Fields in does not
// mention keep their stored value.
func (d *OrderDraft) Merge(in *OrderDraft) {
	if in == nil {
		return
	}
	if in.ClientName != nil {
		d.ClientName = in.ClientName
	}
	if in.OrderNumber != nil {
		d.OrderNumber = in.OrderNumber
	}
	if in.OrderDate != nil {
		d.OrderDate = in.OrderDate
	}
	if in.DeliveryDate != nil {
		d.DeliveryDate = in.DeliveryDate
	}
	if in.DeliveryForecast != nil {
		d.DeliveryForecast = in.DeliveryForecast
	}
	if in.TotalPrice != nil {
		d.TotalPrice = in.TotalPrice
	}
	if in.Tax != nil {
		d.Tax = in.Tax
	}
}

// Missing returns the names from required that have no value yet.
func (d *OrderDraft) Missing(required []string) []string {
	has := map[string]bool{
		"client_name":       d.ClientName != nil && *d.ClientName != "",
		"order_number":      d.OrderNumber != nil,
		"order_date":        d.OrderDate != nil && *d.OrderDate != "",
		"delivery_date":     d.DeliveryDate != nil && *d.DeliveryDate != "",
		"delivery_forecast": d.DeliveryForecast != nil && *d.DeliveryForecast != "",
		"total_price":       d.TotalPrice != nil,
		"tax":               d.Tax != nil,
	}
	var missing []string
	for _, f := range required {
		if !has[f] {
			missing = append(missing, f)
		}
	}
	return missing
}

// PartDraft is a staged part awaiting confirmation before insertion.
type PartDraft struct {
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// Session is the full per-identifier conversational state. It is the
// unit of persistence in the session store and round-trips as JSON.
type Session struct {
	ID              string         `json:"id"`
	Turns           []Turn         `json:"turns,omitempty"`
	State           SessionState   `json:"state"`
	Draft           *OrderDraft    `json:"draft,omitempty"`
	StagedParts     []PartDraft    `json:"staged_parts,omitempty"`
	ActiveOrderCode string         `json:"active_order_code,omitempty"`
	Candidates      []Candidate    `json:"candidates,omitempty"`
	PendingUpdate   *PendingUpdate `json:"pending_update,omitempty"`
	LastSearch      *SearchCache   `json:"last_search,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// NewSession returns an Idle session for the given identifier.
func NewSession(id string) *Session {
	return &Session{ID: id, State: StateIdle}
}

// AppendTurn records a turn, evicting the oldest beyond max.
func (s *Session) AppendTurn(role Role, content string, max int) {
	s.Turns = append(s.Turns, Turn{Role: role, Content: content})
	if max > 0 && len(s.Turns) > max {
		s.Turns = s.Turns[len(s.Turns)-max:]
	}
}

// ClearPending discards the state-specific payload and returns the
// session to Idle. History and the active order reference survive.
func (s *Session) ClearPending() {
	s.State = StateIdle
	s.Draft = nil
	s.StagedParts = nil
	s.Candidates = nil
	s.PendingUpdate = nil
}
