package dto

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}
