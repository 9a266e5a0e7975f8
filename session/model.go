package session

import (
	"encoding/json"
	"fmt"
)

// Record is the server-side existence marker for a live access token.
//
// SessionID equals the access token's jti. Metadata is reserved for callers and
// is persisted verbatim.
type Record struct {
	SessionID    string                 `json:"session_id"`
	SessionToken string                 `json:"session_token"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// Info describes one indexed session of a principal.
type Info struct {
	SessionID   string
	PrincipalID string
	IssuedAt    int64
	ExpiresAt   int64
}

func encodeRecord(rec *Record) ([]byte, error) {
	if rec == nil || rec.SessionID == "" {
		return nil, fmt.Errorf("%w: missing session id", ErrSessionCorrupt)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]interface{}{}
	}
	return json.Marshal(rec)
}

func decodeRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCorrupt, err)
	}
	if rec.Metadata == nil {
		rec.Metadata = map[string]interface{}{}
	}
	return &rec, nil
}
