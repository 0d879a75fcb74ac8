// internal/models/query.go
package models

// ResponseSource tells the caller where the answer came from.
type ResponseSource string

const (
	SourceCache     ResponseSource = "cache"
	SourceGenerated ResponseSource = "generated"
	SourceError     ResponseSource = "error"
)

// QueryRequest is the pipeline entry payload.
type QueryRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
	Query     string `json:"query"`
	History   []Turn `json:"conversationHistory,omitempty"`
}

// QueryResponse is what the pipeline returns for every query. Timings
// breaks down wall-clock milliseconds per stage for timeout tuning.
type QueryResponse struct {
	RequestID string           `json:"requestId"`
	Response  string           `json:"response"`
	QueryType string           `json:"queryType"`
	Intent    string           `json:"intent"`
	Source    ResponseSource   `json:"source"`
	Timings   map[string]int64 `json:"timings"`
}

// InvalidateRequest asks for bulk removal of cached answers for a user and
// query type, used when underlying artist data changes.
type InvalidateRequest struct {
	UserID    string `json:"userId"`
	QueryType string `json:"queryType"`
}
