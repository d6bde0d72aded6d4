package models

import "time"

// OrderStatus represents the production state of an order.
type OrderStatus string

const (
	OrderStatusInProduction OrderStatus = "in_production"
	OrderStatusDone         OrderStatus = "done"
	OrderStatusLate         OrderStatus = "late"
)

// Order represents a production order. Code is the human-facing
// reference used in chat; dates are civil dates in YYYY-MM-DD form.
type Order struct {
	Code             string      `json:"code"`
	OrderNumber      int         `json:"order_number"`
	ClientName       string      `json:"client_name"`
	OrderDate        string      `json:"order_date"`
	DeliveryDate     string      `json:"delivery_date"`
	DeliveryForecast string      `json:"delivery_forecast"`
	TotalPrice       float64     `json:"total_price"`
	Tax              float64     `json:"tax"`
	Status           OrderStatus `json:"status"`
	CreatedAt        time.Time   `json:"created_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// PartStatus represents the production state of a single part.
type PartStatus string

const (
	PartStatusPending      PartStatus = "pending"
	PartStatusInProduction PartStatus = "in_production"
	PartStatusDone         PartStatus = "done"
)

// Part belongs to exactly one order by OrderCode. ClientName and
// DeliveryDate are denormalized from the parent order so parts can be
// queried independently.
type Part struct {
	ID           string     `json:"id"`
	OrderCode    string     `json:"order_code"`
	Name         string     `json:"name"`
	Quantity     int        `json:"quantity"`
	UnitPrice    float64    `json:"unit_price"`
	ClientName   string     `json:"client_name"`
	DeliveryDate string     `json:"delivery_date"`
	Produced     int        `json:"produced"`
	Status       PartStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Alert records a delivery-window or production deviation detected by
// the scan. It references the part it was raised for.
type Alert struct {
	ID           string    `json:"id"`
	OrderCode    string    `json:"order_code"`
	PartName     string    `json:"part_name"`
	ClientName   string    `json:"client_name"`
	DeliveryDate string    `json:"delivery_date"`
	Reason       string    `json:"reason"`
	CreatedAt    time.Time `json:"created_at"`
}

// DateLayout is the civil date format used across orders and parts.
const DateLayout = "2006-01-02"
