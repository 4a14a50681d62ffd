// internal/core/domain/warehouse.go
package domain

import (
	"strings"
	"time"
)

// Warehouse is a physical stock location
type Warehouse struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Location  string    `json:"location"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Validate trims and checks required fields
func (w *Warehouse) Validate() error {
	w.Name = strings.TrimSpace(w.Name)
	w.Location = strings.TrimSpace(w.Location)
	if w.Name == "" {
		return NewValidationError("name is required")
	}
	if len(w.Name) > 255 {
		return NewValidationError("name must be at most 255 characters")
	}
	return nil
}

// Supplier is a party purchase orders are placed with
type Supplier struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate trims and checks required fields
func (s *Supplier) Validate() error {
	s.Name = strings.TrimSpace(s.Name)
	s.Email = strings.TrimSpace(s.Email)
	if s.Name == "" {
		return NewValidationError("name is required")
	}
	if s.Email != "" && !strings.Contains(s.Email, "@") {
		return NewValidationError("email is invalid")
	}
	return nil
}
