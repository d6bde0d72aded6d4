package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/mbrandao/opchat/internal/models"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, no CGO).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one concurrent writer. Limiting to a single
	// connection serializes all DB access through Go's connection pool,
	// preventing "database is locked" errors from concurrent requests.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// newULID generates a new ULID string.
func newULID() string {
	entropy := rand.New(rand.NewSource(time.Now().UnixNano()))
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(entropy, 0)).String()
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newOrderCode generates a 6-character human-facing order code.
func newOrderCode() string {
	b := make([]byte, 6)
	for i := range b {
		b[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
	}
	return string(b)
}

// Migrate runs all embedded SQL migration files in order.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		filename TEXT PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()

		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE filename = ?", name).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if count > 0 {
			continue
		}

		data, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}

		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (filename) VALUES (?)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Orders ---

const orderColumns = `code, order_number, client_name, order_date, delivery_date, delivery_forecast, total_price, tax, status, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (*models.Order, error) {
	o := &models.Order{}
	var status string
	err := row.Scan(&o.Code, &o.OrderNumber, &o.ClientName, &o.OrderDate, &o.DeliveryDate,
		&o.DeliveryForecast, &o.TotalPrice, &o.Tax, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.Status = models.OrderStatus(status)
	return o, nil
}

// CreateOrder inserts the order, generating its code and defaulting
// order date to today and delivery forecast to the delivery date.
func (s *SQLiteStore) CreateOrder(ctx context.Context, o *models.Order) error {
	now := time.Now().UTC()
	o.CreatedAt = now
	o.UpdatedAt = now
	if o.Status == "" {
		o.Status = models.OrderStatusInProduction
	}
	if o.OrderDate == "" {
		o.OrderDate = now.Format(models.DateLayout)
	}
	if o.DeliveryForecast == "" {
		o.DeliveryForecast = o.DeliveryDate
	}

	// A collision on a generated code is retried with a fresh one; a
	// collision on a caller-supplied code is a conflict, not ours to
	// paper over.
	supplied := o.Code != ""
	for attempt := 0; attempt < 5; attempt++ {
		if o.Code == "" {
			o.Code = newOrderCode()
		}
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO orders (`+orderColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			o.Code, o.OrderNumber, o.ClientName, o.OrderDate, o.DeliveryDate,
			o.DeliveryForecast, o.TotalPrice, o.Tax, string(o.Status), o.CreatedAt, o.UpdatedAt,
		)
		if err == nil {
			return nil
		}
		if strings.Contains(err.Error(), "UNIQUE") {
			if supplied {
				return fmt.Errorf("order %s: %w", o.Code, ErrConflict)
			}
			if attempt < 4 {
				o.Code = ""
				continue
			}
		}
		return fmt.Errorf("create order: %w", err)
	}
	return fmt.Errorf("create order: could not generate a unique code")
}

func (s *SQLiteStore) GetOrder(ctx context.Context, code string) (*models.Order, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE code = ?`, code)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("order %s: %w", code, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// ListOrders returns every order, newest first. Unlike SearchOrders
// it applies no row cap, so full-table walks like the alert scan see
// all orders.
func (s *SQLiteStore) ListOrders(ctx context.Context) ([]*models.Order, error) {
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

// SearchOrders matches code, client name, or status case-insensitively.
// An empty query returns the most recent 50 orders.
func (s *SQLiteStore) SearchOrders(ctx context.Context, query string) ([]*models.Order, error) {
	if query == "" {
		return s.queryOrders(ctx,
			`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT 50`)
	}
	like := "%" + query + "%"
	return s.queryOrders(ctx,
		`SELECT `+orderColumns+` FROM orders
		WHERE code LIKE ? OR client_name LIKE ? OR status LIKE ?
		ORDER BY created_at DESC`, like, like, like)
}

func (s *SQLiteStore) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// orderFieldColumns whitelists updatable order fields.
var orderFieldColumns = map[string]string{
	"order_number":      "order_number",
	"client_name":       "client_name",
	"order_date":        "order_date",
	"delivery_date":     "delivery_date",
	"delivery_forecast": "delivery_forecast",
	"total_price":       "total_price",
	"tax":               "tax",
	"status":            "status",
}

// UpdateOrder applies the whitelisted fields and returns the updated row.
func (s *SQLiteStore) UpdateOrder(ctx context.Context, code string, fields map[string]any) (*models.Order, error) {
	sets, args := buildSet(fields, orderFieldColumns)
	if len(sets) == 0 {
		return nil, fmt.Errorf("update order: no recognized fields")
	}
	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC(), code)

	result, err := s.db.ExecContext(ctx,
		"UPDATE orders SET "+strings.Join(sets, ", ")+" WHERE code=?", args...)
	if err != nil {
		return nil, fmt.Errorf("update order: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("order %s: %w", code, ErrNotFound)
	}
	return s.GetOrder(ctx, code)
}

// DeleteOrder removes the order row only. Dependent parts and alerts
// are the caller's responsibility to remove first.
func (s *SQLiteStore) DeleteOrder(ctx context.Context, code string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM orders WHERE code = ?", code)
	if err != nil {
		return fmt.Errorf("delete order: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("order %s: %w", code, ErrNotFound)
	}
	return nil
}

// buildSet translates a field map into SET clauses via a column whitelist.
func buildSet(fields map[string]any, whitelist map[string]string) ([]string, []any) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sets []string
	var args []any
	for _, k := range keys {
		col, ok := whitelist[k]
		if !ok {
			continue
		}
		sets = append(sets, col+"=?")
		args = append(args, fields[k])
	}
	return sets, args
}

// --- Parts ---

const partColumns = `id, order_code, name, quantity, unit_price, client_name, delivery_date, produced, status, created_at, updated_at`

func scanPart(row interface{ Scan(...any) error }) (*models.Part, error) {
	p := &models.Part{}
	var status string
	err := row.Scan(&p.ID, &p.OrderCode, &p.Name, &p.Quantity, &p.UnitPrice,
		&p.ClientName, &p.DeliveryDate, &p.Produced, &status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Status = models.PartStatus(status)
	return p, nil
}

// CreateParts inserts all drafts for the order in one transaction,
// denormalizing the order's client name and delivery date onto each
// part. Partial application is not possible: any failure rolls back
// the whole batch.
func (s *SQLiteStore) CreateParts(ctx context.Context, orderCode string, drafts []models.PartDraft) ([]*models.Part, error) {
	order, err := s.GetOrder(ctx, orderCode)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	parts := make([]*models.Part, 0, len(drafts))
	for _, d := range drafts {
		p := &models.Part{
			ID:           newULID(),
			OrderCode:    orderCode,
			Name:         d.Name,
			Quantity:     d.Quantity,
			UnitPrice:    d.UnitPrice,
			ClientName:   order.ClientName,
			DeliveryDate: order.DeliveryDate,
			Produced:     0,
			Status:       models.PartStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO parts (`+partColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.ID, p.OrderCode, p.Name, p.Quantity, p.UnitPrice,
			p.ClientName, p.DeliveryDate, p.Produced, string(p.Status), p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("create part %s: %w", d.Name, err)
		}
		parts = append(parts, p)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return parts, nil
}

func (s *SQLiteStore) GetPart(ctx context.Context, id string) (*models.Part, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+partColumns+` FROM parts WHERE id = ?`, id)
	p, err := scanPart(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("part %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get part: %w", err)
	}
	return p, nil
}

func (s *SQLiteStore) GetOrderParts(ctx context.Context, orderCode string) ([]*models.Part, error) {
	return s.queryParts(ctx,
		`SELECT `+partColumns+` FROM parts WHERE order_code = ? ORDER BY created_at`, orderCode)
}

// SearchParts matches name, client name, order code, or status
// case-insensitively. An empty query returns the most recent 50 parts.
func (s *SQLiteStore) SearchParts(ctx context.Context, query string) ([]*models.Part, error) {
	if query == "" {
		return s.queryParts(ctx,
			`SELECT `+partColumns+` FROM parts ORDER BY created_at DESC LIMIT 50`)
	}
	like := "%" + query + "%"
	return s.queryParts(ctx,
		`SELECT `+partColumns+` FROM parts
		WHERE name LIKE ? OR client_name LIKE ? OR order_code LIKE ? OR status LIKE ?
		ORDER BY created_at DESC`, like, like, like, like)
}

func (s *SQLiteStore) queryParts(ctx context.Context, query string, args ...any) ([]*models.Part, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query parts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var parts []*models.Part
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, fmt.Errorf("scan part: %w", err)
		}
		parts = append(parts, p)
	}
	return parts, rows.Err()
}

// partFieldColumns whitelists updatable part fields.
var partFieldColumns = map[string]string{
	"name":       "name",
	"quantity":   "quantity",
	"unit_price": "unit_price",
	"produced":   "produced",
	"status":     "status",
}

func (s *SQLiteStore) UpdatePart(ctx context.Context, id string, fields map[string]any) (*models.Part, error) {
	sets, args := buildSet(fields, partFieldColumns)
	if len(sets) == 0 {
		return nil, fmt.Errorf("update part: no recognized fields")
	}
	sets = append(sets, "updated_at=?")
	args = append(args, time.Now().UTC(), id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE parts SET "+strings.Join(sets, ", ")+" WHERE id=?", args...)
	if err != nil {
		return nil, fmt.Errorf("update part: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("part %s: %w", id, ErrNotFound)
	}
	return s.GetPart(ctx, id)
}

func (s *SQLiteStore) DeletePart(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM parts WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete part: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("part %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) DeletePartsByOrder(ctx context.Context, orderCode string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM parts WHERE order_code = ?", orderCode)
	if err != nil {
		return 0, fmt.Errorf("delete parts by order: %w", err)
	}
	return result.RowsAffected()
}

// --- Alerts ---

func (s *SQLiteStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	if a.ID == "" {
		a.ID = newULID()
	}
	a.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, order_code, part_name, client_name, delivery_date, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OrderCode, a.PartName, a.ClientName, a.DeliveryDate, a.Reason, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListAlerts(ctx context.Context, limit int) ([]*models.Alert, error) {
	query := `SELECT id, order_code, part_name, client_name, delivery_date, reason, created_at
		FROM alerts ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var alerts []*models.Alert
	for rows.Next() {
		a := &models.Alert{}
		if err := rows.Scan(&a.ID, &a.OrderCode, &a.PartName, &a.ClientName,
			&a.DeliveryDate, &a.Reason, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *SQLiteStore) DeleteAlertsByOrder(ctx context.Context, orderCode string) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM alerts WHERE order_code = ?", orderCode)
	if err != nil {
		return 0, fmt.Errorf("delete alerts by order: %w", err)
	}
	return result.RowsAffected()
}

func (s *SQLiteStore) DeleteAlertsByPart(ctx context.Context, orderCode, partName string) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM alerts WHERE order_code = ? AND part_name = ?", orderCode, partName)
	if err != nil {
		return 0, fmt.Errorf("delete alerts by part: %w", err)
	}
	return result.RowsAffected()
}
