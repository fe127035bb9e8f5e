// Package queue holds what the queue transports share: the wire envelope
// and the redelivery limit.
package queue

import (
	"encoding/json"
	"fmt"

	"go.kirha.ai/appmigrate"
)

// DefaultMaxAttempts bounds how often a message is delivered before it is
// dropped.
const DefaultMaxAttempts = 5

// Envelope is the JSON payload published on the wire.
type Envelope struct {
	Message appmigrate.Message `json:"message"`
	Attempt int                `json:"attempt"`
}

func Encode(msg appmigrate.Message, attempt int) ([]byte, error) {
	data, err := json.Marshal(Envelope{Message: msg, Attempt: attempt})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode message: %w", err)
	}
	return env, nil
}
