package models

import "time"

// ConversationTurn is one prior exchange supplied with a query request.
type ConversationTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// QueryRequest is the inbound shape of a natural-language query.
type QueryRequest struct {
	Question            string             `json:"question"`
	ConversationHistory []ConversationTurn `json:"conversation_history,omitempty"`
	MaxRetries          *int               `json:"max_retries,omitempty"`
	SchemaName          string             `json:"schema_name,omitempty"`
	SessionID           string             `json:"session_id,omitempty"`
}

// QueryResponse is the outbound shape of a completed query, successful or
// exhausted. ExecutionTime is seconds.
type QueryResponse struct {
	Question          string           `json:"question"`
	SQLQuery          string           `json:"sql_query"`
	Results           []map[string]any `json:"results"`
	Columns           []string         `json:"columns"`
	RowCount          int              `json:"row_count"`
	ExecutionTime     float64          `json:"execution_time"`
	Explanation       string           `json:"explanation,omitempty"`
	RetryCount        int              `json:"retry_count"`
	ErrorsEncountered []string         `json:"errors_encountered"`
	Success           bool             `json:"success"`
}

// HistoricalQuery is a past (question, SQL) pair kept for retrieval.
type HistoricalQuery struct {
	Question   string    `json:"question"`
	SQL        string    `json:"sql"`
	Dialect    string    `json:"dialect"`
	SchemaName string    `json:"schema_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
