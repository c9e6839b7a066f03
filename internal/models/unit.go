package models

import "github.com/google/uuid"

// UnitStatus defines the listing status of a unit in the catalog.
type UnitStatus string

const (
	UnitStatusOffered UnitStatus = "OFFERED"
	UnitStatusSold    UnitStatus = "SOLD"
	UnitStatusDraft   UnitStatus = "DRAFT"
)

// Unit is a property listing available for selection. The catalog is owned
// by the listings subsystem; this service only reads units that are
// currently offered.
type Unit struct {
	ID      uuid.UUID  `json:"id"`
	Title   string     `json:"title"`
	Address string     `json:"address"`
	Price   int64      `json:"price"` // IDR, whole rupiah
	Status  UnitStatus `json:"status"`
}
