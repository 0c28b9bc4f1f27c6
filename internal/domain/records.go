// Package domain defines the business records kept in the synchronized
// collections and the store that binds them to the local cache.
//
// Business rules (stock thresholds, balance recalculation, invoice
// formatting) live with the application, not here: this package only gives
// each collection a typed, order-preserving view and assembles the snapshot
// the sync engine ships to the remote store.
package domain

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// Product is one inventory item.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  string    `json:"category,omitempty"`
	Unit      string    `json:"unit,omitempty"`
	Price     float64   `json:"price"`
	Stock     float64   `json:"stock"`
	MinStock  float64   `json:"minStock,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// RecordID implements collection.Record.
func (p Product) RecordID() string { return p.ID }

// Category groups products.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RecordID implements collection.Record.
func (c Category) RecordID() string { return c.ID }

// Movement is one stock movement (delivery in, sale out, manual adjustment).
type Movement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"productId"`
	Kind      string    `json:"kind"` // "in", "out", "adjust"
	Quantity  float64   `json:"quantity"`
	Note      string    `json:"note,omitempty"`
	At        time.Time `json:"at"`
}

// RecordID implements collection.Record.
func (m Movement) RecordID() string { return m.ID }

// Customer is a buyer with a running balance.
type Customer struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone,omitempty"`
	Address string  `json:"address,omitempty"`
	Balance float64 `json:"balance"`
}

// RecordID implements collection.Record.
func (c Customer) RecordID() string { return c.ID }

// Supplier is a vendor with a running balance.
type Supplier struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Phone   string  `json:"phone,omitempty"`
	Balance float64 `json:"balance"`
}

// RecordID implements collection.Record.
func (s Supplier) RecordID() string { return s.ID }

// SaleItem is one line of a sale.
type SaleItem struct {
	ProductID string  `json:"productId"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unitPrice"`
}

// Sale is one completed sale.
type Sale struct {
	ID         string     `json:"id"`
	CustomerID string     `json:"customerId,omitempty"`
	Items      []SaleItem `json:"items"`
	Total      float64    `json:"total"`
	Paid       float64    `json:"paid"`
	At         time.Time  `json:"at"`
}

// RecordID implements collection.Record.
func (s Sale) RecordID() string { return s.ID }

// LedgerEntry is one debit or credit against a customer or supplier.
type LedgerEntry struct {
	ID        string    `json:"id"`
	PartyType string    `json:"partyType"` // "customer" or "supplier"
	PartyID   string    `json:"partyId"`
	Amount    float64   `json:"amount"` // positive credit, negative debit
	Note      string    `json:"note,omitempty"`
	At        time.Time `json:"at"`
}

// RecordID implements collection.Record.
func (l LedgerEntry) RecordID() string { return l.ID }

// BookedStock is stock reserved for a customer but not yet loaded.
type BookedStock struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"productId"`
	CustomerID string    `json:"customerId"`
	Quantity   float64   `json:"quantity"`
	At         time.Time `json:"at"`
}

// RecordID implements collection.Record.
func (b BookedStock) RecordID() string { return b.ID }

// LoadingItem is one line of a loading.
type LoadingItem struct {
	ProductID string  `json:"productId"`
	Quantity  float64 `json:"quantity"`
}

// Loading is one vehicle loading sheet.
type Loading struct {
	ID    string        `json:"id"`
	Date  string        `json:"date"` // YYYY-MM-DD
	Items []LoadingItem `json:"items"`
	Note  string        `json:"note,omitempty"`
}

// RecordID implements collection.Record.
func (l Loading) RecordID() string { return l.ID }

// NewID generates a collection-unique record id with a readable prefix,
// e.g. "prod-9f3a6c12e4b0".
func NewID(prefix string) string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		// crypto/rand only fails when the platform entropy source is broken.
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%s", prefix, hex.EncodeToString(b[:]))
}
