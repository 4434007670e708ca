package http

// ErrorBody is the error payload returned by every failing endpoint.
type ErrorBody struct {
	Error string `json:"error"`
}

// ValidationError represents validation error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"account_id"`
	Message string                 `json:"message,omitempty" example:"AccountID is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}
