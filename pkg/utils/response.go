package utils

// ResponseData is the envelope for errors rendered outside a handler, e.g.
// by the recovery middleware.
type ResponseData struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Results any    `json:"results,omitempty"`
}
