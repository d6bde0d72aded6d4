package dialog

import (
	"context"
	"strings"

	"github.com/mbrandao/opchat/internal/extract"
	"github.com/mbrandao/opchat/internal/models"
)

// matchOutcome classifies a disambiguation attempt.
type matchOutcome int

const (
	matchNone  matchOutcome = iota // zero hits
	matchOne                       // exactly one record
	matchBatch                     // several records, all the same kind
	matchMixed                     // several records across kinds: refuse
)

// matches holds the records a query resolved to.
type matches struct {
	orders []*models.Order
	parts  []*models.Part
}

func (m matches) outcome() matchOutcome {
	total := len(m.orders) + len(m.parts)
	switch {
	case total == 0:
		return matchNone
	case total == 1:
		return matchOne
	case len(m.orders) > 0 && len(m.parts) > 0:
		return matchMixed
	default:
		return matchBatch
	}
}

// candidates converts the matches into confirmation candidates, all
// carrying the same pending fields (nil for deletes).
func (m matches) candidates(fields map[string]any) []models.Candidate {
	var out []models.Candidate
	for _, o := range m.orders {
		out = append(out, models.Candidate{Kind: models.CandidateOrder, Order: o, Fields: fields})
	}
	for _, p := range m.parts {
		out = append(out, models.Candidate{Kind: models.CandidatePart, Part: p, Fields: fields})
	}
	return out
}

// orderMatchesQuery applies the identifying-field substring rule,
// case- and diacritic-insensitively.
func orderMatchesQuery(o *models.Order, query string) bool {
	q := normalize(query)
	return strings.Contains(normalize(o.Code), q) ||
		strings.Contains(normalize(o.ClientName), q) ||
		strings.Contains(normalize(string(o.Status)), q)
}

func partMatchesQuery(p *models.Part, query string) bool {
	q := normalize(query)
	return strings.Contains(normalize(p.Name), q) ||
		strings.Contains(normalize(p.ClientName), q) ||
		strings.Contains(normalize(p.OrderCode), q) ||
		strings.Contains(normalize(string(p.Status)), q)
}

// filterCache matches the query against the session's cached search
// results, supporting "edit the one you just showed me" follow-ups
// without another repository round trip.
func filterCache(cache *models.SearchCache, target extract.Target, query string) matches {
	var m matches
	if cache == nil || query == "" {
		return m
	}
	if target == extract.TargetOrder || target == extract.TargetAny {
		for i := range cache.Orders {
			if orderMatchesQuery(&cache.Orders[i], query) {
				o := cache.Orders[i]
				m.orders = append(m.orders, &o)
			}
		}
	}
	if target == extract.TargetPart || target == extract.TargetAny {
		for i := range cache.Parts {
			if partMatchesQuery(&cache.Parts[i], query) {
				p := cache.Parts[i]
				m.parts = append(m.parts, &p)
			}
		}
	}
	return m
}

// resolve narrows a target filter plus free-text query to matches,
// consulting the session's cached search results before the repository.
func (o *Orchestrator) resolve(ctx context.Context, sess *models.Session, target extract.Target, query string) (matches, error) {
	if target == "" {
		target = extract.TargetAny
	}

	if cached := filterCache(sess.LastSearch, target, query); cached.outcome() != matchNone {
		return cached, nil
	}

	var m matches
	var err error
	if target == extract.TargetOrder || target == extract.TargetAny {
		m.orders, err = o.store.SearchOrders(ctx, query)
		if err != nil {
			return m, err
		}
	}
	if target == extract.TargetPart || target == extract.TargetAny {
		m.parts, err = o.store.SearchParts(ctx, query)
		if err != nil {
			return m, err
		}
	}
	return m, nil
}
