package domain

import (
	"encoding/json"
	"testing"
)

func TestEnvelopeOrderReferences(t *testing.T) {
	cases := []struct {
		name      string
		body      string
		gatewayID string
		localID   string
	}{
		{
			name:      "payment entity with notes",
			body:      `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_a","notes":{"orderId":"ORD_A"}}}}}`,
			gatewayID: "order_a",
			localID:   "ORD_A",
		},
		{
			name:      "order entity wins, empty notes array",
			body:      `{"event":"order.paid","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_x","notes":[]}},"order":{"entity":{"id":"order_b","receipt":"ORD_B","notes":[]}}}}`,
			gatewayID: "order_b",
			localID:   "ORD_B",
		},
		{
			name: "no entities",
			body: `{"event":"refund.created","payload":{}}`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var env Envelope
			if err := json.Unmarshal([]byte(tc.body), &env); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got := env.GatewayOrderID(); got != tc.gatewayID {
				t.Fatalf("gateway order id = %q, want %q", got, tc.gatewayID)
			}
			if got := env.LocalOrderID(); got != tc.localID {
				t.Fatalf("local order id = %q, want %q", got, tc.localID)
			}
		})
	}
}
