package dto

// StartLaneRequest is the body of POST /api/lanes/{lane}/start. Omitted
// fields keep the lane's saved or configured values.
type StartLaneRequest struct {
	Source    string   `json:"source"`
	Category  *string  `json:"category,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`
}

// ErrorResponse is the JSON body of a failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
}
