package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind identifies which inbound topic an event arrived on. The set is
// closed: adding a topic means adding a kind and handling it everywhere
// the compiler points.
type Kind int

const (
	KindUserRegistered Kind = iota
	KindPaymentSucceeded
	KindPaymentFailed
)

// Topics maps the configured inbound topic names onto event kinds.
type Topics struct {
	UserRegistration string
	PaymentSuccess   string
	PaymentFailure   string
}

func (t Topics) Kind(topic string) (Kind, bool) {
	switch topic {
	case t.UserRegistration:
		return KindUserRegistered, true
	case t.PaymentSuccess:
		return KindPaymentSucceeded, true
	case t.PaymentFailure:
		return KindPaymentFailed, true
	}
	return 0, false
}

func (t Topics) Names() []string {
	return []string{t.UserRegistration, t.PaymentSuccess, t.PaymentFailure}
}

// Event is one decoded inbound message. Fields carries every key of the
// original payload untouched so the dead-letter path can forward it
// verbatim.
type Event struct {
	Kind    Kind
	Topic   string
	UserID  string
	OrderID string
	Fields  map[string]json.RawMessage
}

// DecodeError marks a payload that is not a well-formed JSON object.
// Producers that emit pseudo-JSON (single quotes, bare keys) land here;
// the decoder does not attempt repair.
type DecodeError struct {
	Topic string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s event: %v", e.Topic, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Reason() string {
	return fmt.Sprintf("Malformed event payload: %v", e.Err)
}

// ValidationError marks a well-formed payload whose required field is
// missing, empty, or not a string.
type ValidationError struct {
	Topic  string
	Field  string
	reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s event: missing or empty %s", e.Topic, e.Field)
}

func (e *ValidationError) Reason() string { return e.reason }

// Decode parses a raw broker payload from the given topic into an Event.
// Failures are either a *DecodeError (not a JSON object) or a
// *ValidationError (required field absent); both carry the reason string
// recorded on the dead-letter topic.
func Decode(topics Topics, topic string, payload []byte) (Event, error) {
	kind, ok := topics.Kind(topic)
	if !ok {
		return Event{}, &DecodeError{Topic: topic, Err: errors.New("unknown topic")}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return Event{}, &DecodeError{Topic: topic, Err: err}
	}
	if fields == nil {
		return Event{}, &DecodeError{Topic: topic, Err: errors.New("payload is not a JSON object")}
	}

	evt := Event{Kind: kind, Topic: topic, Fields: fields}
	switch kind {
	case KindUserRegistered:
		evt.UserID = stringField(fields, "user_id")
		if evt.UserID == "" {
			return Event{}, &ValidationError{Topic: topic, Field: "user_id", reason: "User is not valid"}
		}
	case KindPaymentSucceeded, KindPaymentFailed:
		evt.OrderID = stringField(fields, "order_id")
		if evt.OrderID == "" {
			return Event{}, &ValidationError{Topic: topic, Field: "order_id", reason: "Order ID is not valid"}
		}
	}
	return evt, nil
}

func stringField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
