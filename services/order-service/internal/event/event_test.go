package event

import (
	"errors"
	"testing"
)

var testTopics = Topics{
	UserRegistration: "user-registration",
	PaymentSuccess:   "payment-success",
	PaymentFailure:   "payment-failure",
}

func TestDecodeUserRegistered(t *testing.T) {
	payload := []byte(`{"user_id": "u-1", "username": "alice", "email": "alice@example.com"}`)
	evt, err := Decode(testTopics, "user-registration", payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if evt.Kind != KindUserRegistered {
		t.Fatalf("unexpected kind: %d", evt.Kind)
	}
	if evt.UserID != "u-1" {
		t.Fatalf("unexpected user id: %q", evt.UserID)
	}
	if string(evt.Fields["email"]) != `"alice@example.com"` {
		t.Fatalf("residual field not preserved: %s", evt.Fields["email"])
	}
}

func TestDecodePaymentEvents(t *testing.T) {
	payload := []byte(`{"payment_id": "p-1", "order_id": "o-1", "amount": 49.99, "payment_gateway_response": "APPROVED"}`)

	evt, err := Decode(testTopics, "payment-success", payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if evt.Kind != KindPaymentSucceeded || evt.OrderID != "o-1" {
		t.Fatalf("unexpected event: %+v", evt)
	}
	if string(evt.Fields["amount"]) != "49.99" {
		t.Fatalf("amount not preserved verbatim: %s", evt.Fields["amount"])
	}

	evt, err = Decode(testTopics, "payment-failure", payload)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if evt.Kind != KindPaymentFailed {
		t.Fatalf("unexpected kind: %d", evt.Kind)
	}
}

func TestDecodeMissingOrEmptyField(t *testing.T) {
	cases := []struct {
		name    string
		topic   string
		payload string
		reason  string
	}{
		{"empty order id", "payment-failure", `{"order_id": ""}`, "Order ID is not valid"},
		{"missing order id", "payment-success", `{"amount": 10}`, "Order ID is not valid"},
		{"order id not a string", "payment-success", `{"order_id": 42}`, "Order ID is not valid"},
		{"empty user id", "user-registration", `{"user_id": ""}`, "User is not valid"},
		{"missing user id", "user-registration", `{"email": "x@y.z"}`, "User is not valid"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(testTopics, tc.topic, []byte(tc.payload))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if verr.Reason() != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, verr.Reason())
			}
		})
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	cases := []struct {
		name    string
		payload string
	}{
		{"single-quoted pseudo json", `{'order_id': 'o-1'}`},
		{"not json", `order_id=o-1`},
		{"json null", `null`},
		{"json array", `["o-1"]`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(testTopics, "payment-success", []byte(tc.payload))
			var derr *DecodeError
			if !errors.As(err, &derr) {
				t.Fatalf("expected decode error, got %v", err)
			}
			if derr.Reason() == "" {
				t.Fatal("expected non-empty reason")
			}
		})
	}
}

func TestDecodeUnknownTopic(t *testing.T) {
	_, err := Decode(testTopics, "order-created", []byte(`{}`))
	var derr *DecodeError
	if !errors.As(err, &derr) {
		t.Fatalf("expected decode error for unknown topic, got %v", err)
	}
}
