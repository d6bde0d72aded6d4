package store

import (
	"context"
	"errors"

	"github.com/mbrandao/opchat/internal/models"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a caller-supplied order code is
// already taken.
var ErrConflict = errors.New("already exists")

// Store defines the record repository for opchat: orders, their parts,
// and the derived alert feed. Searches are case-insensitive substring
// matches over each kind's identifying fields.
type Store interface {
	// Orders
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, code string) (*models.Order, error)
	ListOrders(ctx context.Context) ([]*models.Order, error)
	SearchOrders(ctx context.Context, query string) ([]*models.Order, error)
	UpdateOrder(ctx context.Context, code string, fields map[string]any) (*models.Order, error)
	DeleteOrder(ctx context.Context, code string) error

	// Parts
	CreateParts(ctx context.Context, orderCode string, parts []models.PartDraft) ([]*models.Part, error)
	GetPart(ctx context.Context, id string) (*models.Part, error)
	GetOrderParts(ctx context.Context, orderCode string) ([]*models.Part, error)
	SearchParts(ctx context.Context, query string) ([]*models.Part, error)
	UpdatePart(ctx context.Context, id string, fields map[string]any) (*models.Part, error)
	DeletePart(ctx context.Context, id string) error
	DeletePartsByOrder(ctx context.Context, orderCode string) (int64, error)

	// Alerts
	CreateAlert(ctx context.Context, a *models.Alert) error
	ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error)
	DeleteAlertsByOrder(ctx context.Context, orderCode string) (int64, error)
	DeleteAlertsByPart(ctx context.Context, orderCode, partName string) (int64, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
