package history

import (
	"context"
	"time"
)

// Exchange stores one completed question/answer round trip. Answer and
// ErrorText are mutually exclusive: a server-reported failure fills ErrorText.
type Exchange struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer,omitempty"`
	ErrorText string    `json:"error,omitempty"`
	Redacted  bool      `json:"redacted"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves past exchanges.
type Store interface {
	SaveExchange(ctx context.Context, ex Exchange) error
	Recent(ctx context.Context, limit int) ([]Exchange, error)
	Close() error
}
