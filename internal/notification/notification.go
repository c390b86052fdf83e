// Package notification decodes and validates inbound budget notification events.
//
// DESIGN: Events arrive as base64-encoded JSON, either raw or wrapped in a
// push delivery envelope. Decoding validates required fields at the boundary
// so downstream code never touches a half-formed notification.
package notification

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedInput marks event payloads that cannot be decoded or that fail
// required-field validation. Fatal; no retry is performed internally.
var ErrMalformedInput = errors.New("malformed budget notification")

// BudgetNotification is a decoded budget alert event.
//
// BudgetDisplayName doubles as the id of the project whose costs are capped:
// budgets must be created upstream with the project id as their display name.
// AddedAt is stamped by the handler on receipt, never by the source.
type BudgetNotification struct {
	BudgetDisplayName string  `json:"budgetDisplayName"`
	BudgetAmount      float64 `json:"budgetAmount"`
	CostAmount        float64 `json:"costAmount"`
	CostIntervalStart string  `json:"costIntervalStart"`
	AddedAt           string  `json:"addedAt,omitempty"`
}

// ProjectID returns the id of the project this notification targets.
func (n *BudgetNotification) ProjectID() string {
	return n.BudgetDisplayName
}

// wireNotification uses pointers so absent fields are distinguishable from
// zero values (a costAmount of 0 is legitimate, a missing one is not).
type wireNotification struct {
	BudgetDisplayName *string  `json:"budgetDisplayName"`
	BudgetAmount      *float64 `json:"budgetAmount"`
	CostAmount        *float64 `json:"costAmount"`
	CostIntervalStart *string  `json:"costIntervalStart"`
}

// Decode parses a base64-encoded JSON budget notification payload.
func Decode(data []byte) (*BudgetNotification, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode: %v", ErrMalformedInput, err)
	}

	var wire wireNotification
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, fmt.Errorf("%w: json decode: %v", ErrMalformedInput, err)
	}

	switch {
	case wire.BudgetDisplayName == nil || *wire.BudgetDisplayName == "":
		return nil, fmt.Errorf("%w: missing budgetDisplayName", ErrMalformedInput)
	case wire.BudgetAmount == nil:
		return nil, fmt.Errorf("%w: missing budgetAmount", ErrMalformedInput)
	case wire.CostAmount == nil:
		return nil, fmt.Errorf("%w: missing costAmount", ErrMalformedInput)
	case wire.CostIntervalStart == nil || *wire.CostIntervalStart == "":
		return nil, fmt.Errorf("%w: missing costIntervalStart", ErrMalformedInput)
	}

	return &BudgetNotification{
		BudgetDisplayName: *wire.BudgetDisplayName,
		BudgetAmount:      *wire.BudgetAmount,
		CostAmount:        *wire.CostAmount,
		CostIntervalStart: *wire.CostIntervalStart,
	}, nil
}

// pushEnvelope is the JSON wrapper used by push-style event delivery.
type pushEnvelope struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// DecodePushEnvelope unwraps a push delivery body and returns the inner
// payload (still base64-encoded, ready for Decode) plus the message id.
func DecodePushEnvelope(body []byte) ([]byte, string, error) {
	var env pushEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, "", fmt.Errorf("%w: envelope decode: %v", ErrMalformedInput, err)
	}
	if env.Message.Data == "" {
		return nil, "", fmt.Errorf("%w: envelope has no message data", ErrMalformedInput)
	}
	return []byte(env.Message.Data), env.Message.MessageID, nil
}

// DecodeRequestBody reads an HTTP delivery body and returns the base64
// notification payload, ready for Decode. Bodies starting with '{' are
// treated as push envelopes; anything else is the raw payload itself, in
// which case the returned message id is empty.
func DecodeRequestBody(r io.Reader) ([]byte, string, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("%w: reading body: %v", ErrMalformedInput, err)
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		return DecodePushEnvelope(trimmed)
	}
	return trimmed, "", nil
}
