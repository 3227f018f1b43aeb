package precompute

import (
	"context"
	"encoding/json"
	"fmt"
)

// Queue carries precompute requests from the API to workers.
type Queue interface {
	Send(ctx context.Context, body string) error
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}

// Message is one queued request.
type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
}

type jobPayload struct {
	JobID       string `json:"job_id"`
	OrganizerID string `json:"organizer_id"`
	DaysAhead   int    `json:"days_ahead"`
}

func encodePayload(p jobPayload) (string, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("precompute: encode payload: %w", err)
	}
	return string(body), nil
}

func decodePayload(body string) (jobPayload, error) {
	var p jobPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		return jobPayload{}, fmt.Errorf("precompute: decode payload: %w", err)
	}
	if p.JobID == "" || p.OrganizerID == "" {
		return jobPayload{}, fmt.Errorf("precompute: decode payload: missing job or organizer id")
	}
	return p, nil
}
