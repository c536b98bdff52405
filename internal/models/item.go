package models

import (
	"encoding/json"
	"time"
)

// Item is one record of a fetched collection (product, order, customer...).
type Item struct {
	ID        string            `json:"id" validate:"required"`
	Name      string            `json:"name"`
	Price     float64           `json:"price" validate:"gte=0"`
	Category  string            `json:"category,omitempty"`
	Status    string            `json:"status,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
	Text      map[string]string `json:"text,omitempty"` // Free-text fields used by search
}

// Envelope is the backend's list response.
type Envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message,omitempty"`
}

// MutationEnvelope is the backend's response to any state-changing call.
type MutationEnvelope struct {
	Success *bool  `json:"success"`
	Message string `json:"message,omitempty"`
}

type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type ViewResponse struct {
	View       string      `json:"view"`
	Items      []Item      `json:"items"`
	Total      int         `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalPages int         `json:"total_pages"`
	Filters    FilterState `json:"filters"`
	Categories []string    `json:"categories"`
	PriceRange PriceRange  `json:"price_range"`
	Loading    bool        `json:"loading"`
	LoadedAt   *time.Time  `json:"loaded_at,omitempty"`
	Error      string      `json:"error,omitempty"`
	Warnings   []string    `json:"warnings,omitempty"`
	Duration   string      `json:"duration"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}
