package models

import "time"

// Account statuses.
const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

// Account represents one connected trading terminal (master or slave).
// Identity and license fields are set at registration and never mutated by
// heartbeats; only timestamps, metrics and status are volatile.
type Account struct {
	AccountID      string    `json:"account_id"`
	Name           string    `json:"name"`
	IsMaster       bool      `json:"is_master"`
	ConnectedSince time.Time `json:"connected_since"`
	LastSeen       time.Time `json:"last_seen"`
	Equity         float64   `json:"equity"`
	Profit         float64   `json:"profit"`
	Status         string    `json:"status"`
	IPAddress      string    `json:"ip_address"`
	LicenseOwner   string    `json:"license_owner"`
	LicenseKey     string    `json:"license_key"`
}
