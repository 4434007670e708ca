package models

// Requests and responses for the relay HTTP endpoints. The response shapes
// are the contract existing master/slave terminals already parse.

type RegisterRequest struct {
	AccountID    string  `json:"account_id" validate:"required"`
	Name         string  `json:"name" default:"Unknown"`
	IsMaster     bool    `json:"is_master"`
	Equity       float64 `json:"equity"`
	Profit       float64 `json:"profit"`
	LicenseOwner string  `json:"license_owner"`
	LicenseKey   string  `json:"license_key"`
}

type HeartbeatRequest struct {
	AccountID string   `json:"account_id" validate:"required"`
	Equity    *float64 `json:"equity"`
	Profit    *float64 `json:"profit"`
}

type DisconnectRequest struct {
	AccountID string `json:"account_id" validate:"required"`
}

type RegisterResponse struct {
	Status    string `json:"status"`
	AccountID string `json:"account_id"`
	IsMaster  bool   `json:"is_master"`
}

type SignalAcceptedResponse struct {
	Status   string `json:"status"`
	SignalID string `json:"signal_id"`
	Message  string `json:"message"`
}

type SignalsResponse struct {
	Signals []Signal `json:"signals"`
	Count   int      `json:"count"`
}

type AccountsResponse struct {
	Accounts      map[string]Account `json:"accounts"`
	TotalCount    int                `json:"total_count"`
	MasterAccount *string            `json:"master_account"`
	Timestamp     float64            `json:"timestamp"`
}

type MasterStatusResponse struct {
	MasterAccount *Account `json:"master_account"`
	HasMaster     bool     `json:"has_master"`
}

type HealthResponse struct {
	Status        string  `json:"status"`
	Timestamp     float64 `json:"timestamp"`
	AccountsCount int     `json:"accounts_count"`
	SlaveCount    int     `json:"slave_count"`
	MasterCount   int     `json:"master_count"`
	SignalsCount  int     `json:"signals_count"`
	MasterOnline  bool    `json:"master_online"`
}

type StatusResponse struct {
	Status string `json:"status"`
}
