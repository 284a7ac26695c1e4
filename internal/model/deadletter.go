package model

import "time"

// DeadLetter is a message that exhausted its publish attempts.
type DeadLetter struct {
	ID         string            `json:"id"`
	Topic      string            `json:"topic"`
	Key        []byte            `json:"key,omitempty"`
	Body       []byte            `json:"body"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Error      string            `json:"error"`
	Attempts   int               `json:"attempts"`
	FailedAt   time.Time         `json:"failed_at"`
}
