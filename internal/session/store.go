// Package session persists conversational state keyed by session
// identifier. The orchestrator loads a session at the start of a turn
// and saves it back only after the turn fully completes, so a crash
// mid-turn leaves the prior consistent state in place.
package session

import (
	"context"

	"github.com/mbrandao/opchat/internal/models"
)

// Store is the session persistence boundary. Load returns (nil, nil)
// when no session exists for the identifier.
type Store interface {
	Load(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session) error
	Close() error
}
