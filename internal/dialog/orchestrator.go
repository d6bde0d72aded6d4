// Package dialog implements the conversation orchestrator: the
// per-session state machine that turns ambiguous multi-turn chat into
// confirmed, at-most-once mutations against the record store.
package dialog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mbrandao/opchat/internal/extract"
	"github.com/mbrandao/opchat/internal/models"
	"github.com/mbrandao/opchat/internal/session"
	"github.com/mbrandao/opchat/internal/store"
)

// Config tunes the orchestrator.
type Config struct {
	// HistoryLimit bounds the turns kept per session.
	HistoryLimit int
	// HistoryWindow bounds the turns passed to the extractor.
	HistoryWindow int
	// RequiredFields must be present in the draft before an order
	// creation is offered for confirmation.
	RequiredFields []string
	// YesWords / NoWords override the confirmation keyword sets.
	YesWords []string
	NoWords  []string
}

// DefaultRequiredFields is the minimum needed to create an order.
var DefaultRequiredFields = []string{"client_name", "delivery_date"}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 10
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 5
	}
	if len(c.RequiredFields) == 0 {
		c.RequiredFields = DefaultRequiredFields
	}
	return c
}

// Reply is what one turn produces: user-facing text plus optional
// structured data (search hits and the like).
type Reply struct {
	Text string `json:"text"`
	Data any    `json:"data,omitempty"`
}

// Orchestrator owns the session state machine. It is stateless between
// calls except for the per-session locks that serialize concurrent
// turns for the same identifier.
type Orchestrator struct {
	store     store.Store
	sessions  session.Store
	extractor extract.Extractor
	matcher   *Matcher
	cfg       Config

	mu    sync.Mutex
	locks map[string]*sessionLock
}

// sessionLock serializes turns for one identifier. refs counts the
// holders and waiters so the entry can be dropped from the map once
// the last one releases it.
type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// New creates the orchestrator.
func New(st store.Store, ss session.Store, ex extract.Extractor, cfg Config) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store:     st,
		sessions:  ss,
		extractor: ex,
		matcher:   NewMatcher(cfg.YesWords, cfg.NoWords),
		cfg:       cfg,
		locks:     make(map[string]*sessionLock),
	}
}

// acquireSession blocks until this goroutine owns the session's turn.
func (o *Orchestrator) acquireSession(id string) *sessionLock {
	o.mu.Lock()
	l, ok := o.locks[id]
	if !ok {
		l = &sessionLock{}
		o.locks[id] = l
	}
	l.refs++
	o.mu.Unlock()

	l.mu.Lock()
	return l
}

// releaseSession unlocks the turn and evicts the map entry once no
// other goroutine holds or waits on it, so the map stays bounded by
// the number of in-flight sessions rather than all sessions ever seen.
func (o *Orchestrator) releaseSession(id string, l *sessionLock) {
	l.mu.Unlock()

	o.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(o.locks, id)
	}
	o.mu.Unlock()
}

// HandleMessage processes one inbound message for the session and
// returns the response. With an empty sessionID the turn runs
// statelessly: confirmation flows cannot persist across calls.
//
// Session state is written back only after the turn fully completes,
// so a crash mid-turn leaves the prior consistent state in place.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, message string) (*Reply, error) {
	if sessionID == "" {
		sess := models.NewSession("")
		return o.turn(ctx, sess, message), nil
	}

	lock := o.acquireSession(sessionID)
	defer o.releaseSession(sessionID, lock)

	sess, err := o.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		sess = models.NewSession(sessionID)
	}

	reply := o.turn(ctx, sess, message)

	sess.AppendTurn(models.RoleUser, message, o.cfg.HistoryLimit)
	sess.AppendTurn(models.RoleAssistant, reply.Text, o.cfg.HistoryLimit)
	sess.UpdatedAt = time.Now().UTC()

	if err := o.sessions.Save(ctx, sess); err != nil {
		return reply, fmt.Errorf("save session: %w", err)
	}
	return reply, nil
}

// turn runs the state machine for one message. While a confirmation or
// a missing value is pending the raw message is never sent to the
// extractor; it is interpreted only in the context of that state.
func (o *Orchestrator) turn(ctx context.Context, sess *models.Session, message string) *Reply {
	switch sess.State {
	case models.StateAwaitingCreate,
		models.StateAwaitingParts,
		models.StateAwaitingDelete,
		models.StateAwaitingUpdate:
		return o.handleConfirmation(ctx, sess, message)
	case models.StateAwaitingUpdateValue:
		return o.handleUpdateValue(ctx, sess, message)
	default:
		return o.dispatch(ctx, sess, message)
	}
}

// historyWindow renders the most recent turns as "ROLE: text" lines
// for the extractor.
func (o *Orchestrator) historyWindow(sess *models.Session) []string {
	turns := sess.Turns
	if len(turns) > o.cfg.HistoryWindow {
		turns = turns[len(turns)-o.cfg.HistoryWindow:]
	}
	var lines []string
	for _, t := range turns {
		lines = append(lines, strings.ToUpper(string(t.Role))+": "+t.Content)
	}
	return lines
}

// dispatch routes an Idle-state message by fixed intent priority.
// First match wins; this resolves extractions with several flags set.
func (o *Orchestrator) dispatch(ctx context.Context, sess *models.Session, message string) *Reply {
	res, err := o.extractor.Extract(ctx, message, sess.Draft, o.historyWindow(sess))
	if err != nil || res == nil {
		return &Reply{Text: msgDidNotUnderstand}
	}

	switch {
	case res.DeleteIntent:
		return o.handleDelete(ctx, sess, res)
	case res.UpdateIntent:
		return o.handleUpdate(ctx, sess, res)
	case res.OrderIntent:
		return o.handleOrder(sess, res)
	case res.AddPartIntent:
		return o.handleAddParts(ctx, sess, res)
	case res.SearchIntent:
		return o.handleSearch(ctx, sess, res)
	default:
		text, err := o.extractor.Chat(ctx, message, o.historyWindow(sess))
		if err != nil || text == "" {
			return &Reply{Text: msgDidNotUnderstand}
		}
		return &Reply{Text: text}
	}
}

// --- Confirmation protocol ---

func (o *Orchestrator) handleConfirmation(ctx context.Context, sess *models.Session, message string) *Reply {
	switch o.matcher.Classify(message) {
	case VerdictNo:
		sess.ClearPending()
		return &Reply{Text: msgCancelled}
	case VerdictYes:
		// fall through to execution below
	default:
		return &Reply{Text: msgConfirmOrCancel}
	}

	switch sess.State {
	case models.StateAwaitingCreate:
		return o.executeCreateOrder(ctx, sess)
	case models.StateAwaitingParts:
		return o.executeCreateParts(ctx, sess)
	case models.StateAwaitingDelete:
		return o.executeDelete(ctx, sess)
	case models.StateAwaitingUpdate:
		return o.executeUpdate(ctx, sess)
	default:
		sess.ClearPending()
		return &Reply{Text: msgInternalError}
	}
}

// executeCreateOrder performs the single insert a confirmed creation
// maps to. The consumed draft is cleared before returning so a stray
// repeated "yes" cannot replay it.
func (o *Orchestrator) executeCreateOrder(ctx context.Context, sess *models.Session) *Reply {
	draft := sess.Draft
	if draft == nil {
		sess.ClearPending()
		return &Reply{Text: msgInternalError}
	}

	order := draftToOrder(draft)
	if err := o.store.CreateOrder(ctx, order); err != nil {
		sess.ClearPending()
		return &Reply{Text: msgRepoFailure}
	}

	sess.ActiveOrderCode = order.Code
	staged := sess.StagedParts
	sess.Draft = nil

	if len(staged) > 0 {
		sess.State = models.StateAwaitingParts
		return &Reply{
			Text: fmt.Sprintf("Order created. Code: %s.\n\n%s",
				order.Code, formatPartsConfirmation(order.Code, staged)),
			Data: order,
		}
	}

	sess.ClearPending()
	return &Reply{
		Text: fmt.Sprintf("Order created. Code: %s. Send me the parts to register for it whenever you're ready.", order.Code),
		Data: order,
	}
}

func (o *Orchestrator) executeCreateParts(ctx context.Context, sess *models.Session) *Reply {
	code := sess.ActiveOrderCode
	staged := sess.StagedParts
	if code == "" || len(staged) == 0 {
		sess.ClearPending()
		return &Reply{Text: msgInternalError}
	}

	created, err := o.store.CreateParts(ctx, code, staged)
	if err != nil {
		sess.ClearPending()
		return &Reply{Text: msgRepoFailure}
	}

	sess.ClearPending()
	return &Reply{
		Text: fmt.Sprintf("Registered %d part(s) for order %s. Production is now being monitored.", len(created), code),
		Data: created,
	}
}

// executeDelete removes every candidate in dependency order: derived
// alerts first, then parts, then the order itself, so no dependents
// are orphaned even without referential integrity in the store.
func (o *Orchestrator) executeDelete(ctx context.Context, sess *models.Session) *Reply {
	candidates := sess.Candidates
	if len(candidates) == 0 {
		sess.ClearPending()
		return &Reply{Text: msgInternalError}
	}

	for _, c := range candidates {
		var err error
		switch {
		case c.Kind == models.CandidateOrder && c.Order != nil:
			err = o.deleteOrderCascade(ctx, c.Order.Code)
		case c.Kind == models.CandidatePart && c.Part != nil:
			err = o.deletePartCascade(ctx, c.Part)
		default:
			err = fmt.Errorf("candidate without record")
		}
		if err != nil {
			sess.ClearPending()
			return &Reply{Text: msgRepoFailure}
		}
	}

	label := candidates[0].Label()
	sess.ClearPending()
	if len(candidates) == 1 {
		return &Reply{Text: fmt.Sprintf("Deleted %s.", label)}
	}
	return &Reply{Text: fmt.Sprintf("Deleted %d records.", len(candidates))}
}

func (o *Orchestrator) deleteOrderCascade(ctx context.Context, code string) error {
	if _, err := o.store.DeleteAlertsByOrder(ctx, code); err != nil {
		return err
	}
	if _, err := o.store.DeletePartsByOrder(ctx, code); err != nil {
		return err
	}
	return o.store.DeleteOrder(ctx, code)
}

func (o *Orchestrator) deletePartCascade(ctx context.Context, p *models.Part) error {
	if _, err := o.store.DeleteAlertsByPart(ctx, p.OrderCode, p.Name); err != nil {
		return err
	}
	return o.store.DeletePart(ctx, p.ID)
}

// executeUpdate applies the pending fields to the exact candidates
// identified during disambiguation, never to the original query.
func (o *Orchestrator) executeUpdate(ctx context.Context, sess *models.Session) *Reply {
	candidates := sess.Candidates
	if len(candidates) == 0 {
		sess.ClearPending()
		return &Reply{Text: msgInternalError}
	}

	for _, c := range candidates {
		var err error
		switch {
		case c.Kind == models.CandidateOrder && c.Order != nil:
			_, err = o.store.UpdateOrder(ctx, c.Order.Code, c.Fields)
		case c.Kind == models.CandidatePart && c.Part != nil:
			_, err = o.store.UpdatePart(ctx, c.Part.ID, c.Fields)
		default:
			err = fmt.Errorf("candidate without record")
		}
		if err != nil {
			sess.ClearPending()
			return &Reply{Text: msgRepoFailure}
		}
	}

	label := candidates[0].Label()
	sess.ClearPending()
	if len(candidates) == 1 {
		return &Reply{Text: fmt.Sprintf("Updated %s.", label)}
	}
	return &Reply{Text: fmt.Sprintf("Updated %d records.", len(candidates))}
}

// handleUpdateValue treats the raw message as the literal value for
// the field whose value was missing, then re-enters the update flow.
func (o *Orchestrator) handleUpdateValue(ctx context.Context, sess *models.Session, message string) *Reply {
	pending := sess.PendingUpdate
	if pending == nil {
		sess.ClearPending()
		return &Reply{Text: msgInternalError}
	}

	res := &extract.Result{
		UpdateIntent: true,
		UpdateTarget: extract.Target(pending.Target),
		UpdateQuery:  pending.Query,
		UpdateFields: map[string]any{pending.Field: strings.TrimSpace(message)},
	}

	sess.PendingUpdate = nil
	sess.State = models.StateIdle
	return o.handleUpdate(ctx, sess, res)
}

// --- Intent handlers (Idle state) ---

func (o *Orchestrator) handleOrder(sess *models.Session, res *extract.Result) *Reply {
	if sess.Draft == nil {
		sess.Draft = &models.OrderDraft{}
	}
	sess.Draft.Merge(res.Data)

	if len(res.PartsData) > 0 {
		sess.StagedParts = res.PartsData
	}

	missing := sess.Draft.Missing(o.cfg.RequiredFields)
	if len(missing) > 0 {
		text := res.MissingMessage
		if text == "" {
			text = formatMissingFields(missing)
		}
		return &Reply{Text: text}
	}

	sess.State = models.StateAwaitingCreate
	return &Reply{Text: formatOrderConfirmation(sess.Draft)}
}

func (o *Orchestrator) handleAddParts(ctx context.Context, sess *models.Session, res *extract.Result) *Reply {
	if len(res.MissingFields) > 0 {
		text := res.MissingMessage
		if text == "" {
			text = formatMissingFields(res.MissingFields)
		}
		return &Reply{Text: text}
	}

	if len(res.PartsData) == 0 {
		return &Reply{Text: "I couldn't identify the parts. Could you list them with name and quantity?"}
	}

	code, reply := o.resolvePartsOrder(ctx, sess, res)
	if reply != nil {
		return reply
	}

	sess.ActiveOrderCode = code
	sess.StagedParts = res.PartsData
	sess.State = models.StateAwaitingParts
	return &Reply{Text: formatPartsConfirmation(code, res.PartsData)}
}

// resolvePartsOrder finds the order new parts belong to: an explicit
// code wins, then the session's active order, then a client lookup.
func (o *Orchestrator) resolvePartsOrder(ctx context.Context, sess *models.Session, res *extract.Result) (string, *Reply) {
	if res.TargetOrderCode != "" {
		order, err := o.store.GetOrder(ctx, res.TargetOrderCode)
		if err != nil {
			return "", &Reply{Text: fmt.Sprintf("I couldn't find order %s.", res.TargetOrderCode)}
		}
		return order.Code, nil
	}

	if sess.ActiveOrderCode != "" {
		return sess.ActiveOrderCode, nil
	}

	var client string
	if res.Data != nil && res.Data.ClientName != nil {
		client = *res.Data.ClientName
	}
	if client == "" {
		return "", &Reply{Text: "Which order (or client) should these parts go to?"}
	}

	orders, err := o.store.SearchOrders(ctx, client)
	if err != nil {
		return "", &Reply{Text: msgRepoFailure}
	}
	switch len(orders) {
	case 0:
		return "", &Reply{Text: fmt.Sprintf("I couldn't find an order for client %q.", client)}
	case 1:
		return orders[0].Code, nil
	default:
		return "", &Reply{Text: fmt.Sprintf("I found %d orders for %q. Which order code do you mean?", len(orders), client)}
	}
}

func (o *Orchestrator) handleDelete(ctx context.Context, sess *models.Session, res *extract.Result) *Reply {
	if res.DeleteQuery == "" {
		return &Reply{Text: "Tell me which order or part to delete."}
	}

	m, err := o.resolve(ctx, sess, res.DeleteTarget, res.DeleteQuery)
	if err != nil {
		return &Reply{Text: msgRepoFailure}
	}

	switch m.outcome() {
	case matchNone:
		return &Reply{Text: fmt.Sprintf("Nothing found matching %q to delete.", res.DeleteQuery)}
	case matchMixed:
		return &Reply{Text: msgNarrowQuery}
	default:
		sess.Candidates = m.candidates(nil)
		sess.State = models.StateAwaitingDelete
		return &Reply{Text: formatDeleteConfirmation(sess.Candidates)}
	}
}

func (o *Orchestrator) handleUpdate(ctx context.Context, sess *models.Session, res *extract.Result) *Reply {
	if res.MissingUpdateValue != "" {
		sess.PendingUpdate = &models.PendingUpdate{
			Target: string(res.UpdateTarget),
			Query:  res.UpdateQuery,
			Field:  res.MissingUpdateValue,
		}
		sess.State = models.StateAwaitingUpdateValue
		return &Reply{Text: fmt.Sprintf("What should the new value of %s be?", res.MissingUpdateValue)}
	}

	if len(res.UpdateFields) == 0 {
		return &Reply{Text: "What do you want to change, and to which value?"}
	}

	query := res.UpdateQuery
	target := res.UpdateTarget
	if query == "" {
		// Fall back to the session's active order; with no context at
		// all there is nothing to resolve against.
		if sess.ActiveOrderCode == "" {
			return &Reply{Text: "Which order or part do you want to change?"}
		}
		query = sess.ActiveOrderCode
		target = extract.TargetOrder
	}

	m, err := o.resolve(ctx, sess, target, query)
	if err != nil {
		return &Reply{Text: msgRepoFailure}
	}

	switch m.outcome() {
	case matchNone:
		return &Reply{Text: fmt.Sprintf("Nothing found matching %q to update.", query)}
	case matchMixed:
		return &Reply{Text: msgNarrowQuery}
	default:
		sess.Candidates = m.candidates(res.UpdateFields)
		sess.State = models.StateAwaitingUpdate
		return &Reply{Text: formatUpdateConfirmation(sess.Candidates)}
	}
}

// searchData is the structured payload returned alongside search text.
type searchData struct {
	Orders []*models.Order `json:"orders,omitempty"`
	Parts  []*models.Part  `json:"parts,omitempty"`
}

func (o *Orchestrator) handleSearch(ctx context.Context, sess *models.Session, res *extract.Result) *Reply {
	query := res.SearchQuery

	orders, err := o.store.SearchOrders(ctx, query)
	if err != nil {
		return &Reply{Text: msgRepoFailure}
	}
	parts, err := o.store.SearchParts(ctx, query)
	if err != nil {
		return &Reply{Text: msgRepoFailure}
	}

	if len(orders) == 0 && len(parts) == 0 {
		return &Reply{Text: fmt.Sprintf("No results for %q.", query)}
	}

	// Cache the shown records so "edit the one you just showed me"
	// follow-ups resolve without another repository search.
	cache := &models.SearchCache{}
	for _, ord := range orders {
		cache.Orders = append(cache.Orders, *ord)
	}
	for _, p := range parts {
		cache.Parts = append(cache.Parts, *p)
	}
	sess.LastSearch = cache

	return &Reply{
		Text: formatSearchResults(query, orders, parts),
		Data: searchData{Orders: orders, Parts: parts},
	}
}

// draftToOrder converts a complete draft into an order payload.
func draftToOrder(d *models.OrderDraft) *models.Order {
	o := &models.Order{}
	if d.ClientName != nil {
		o.ClientName = *d.ClientName
	}
	if d.OrderNumber != nil {
		o.OrderNumber = *d.OrderNumber
	}
	if d.OrderDate != nil {
		o.OrderDate = *d.OrderDate
	}
	if d.DeliveryDate != nil {
		o.DeliveryDate = *d.DeliveryDate
	}
	if d.DeliveryForecast != nil {
		o.DeliveryForecast = *d.DeliveryForecast
	}
	if d.TotalPrice != nil {
		o.TotalPrice = *d.TotalPrice
	}
	if d.Tax != nil {
		o.Tax = *d.Tax
	}
	return o
}
