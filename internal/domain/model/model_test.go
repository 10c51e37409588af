package model

import (
	"strings"
	"testing"
	"time"
)

func TestOrderStatusValues(t *testing.T) {
	cases := []struct {
		name  string
		got   OrderStatus
		value string
	}{
		{"pending", OrderStatusPendingPayment, "pending_payment"},
		{"pending crypto", OrderStatusPendingCryptoPayment, "pending_crypto_payment"},
		{"in progress", OrderStatusInProgress, "in_progress"},
		{"delivered", OrderStatusDelivered, "delivered"},
		{"completed", OrderStatusCompleted, "completed"},
		{"cancelled", OrderStatusCancelled, "cancelled"},
		{"disputed", OrderStatusDisputed, "disputed"},
		{"refunded", OrderStatusRefunded, "refunded"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if string(tc.got) != tc.value {
				t.Fatalf("expected %s, got %s", tc.value, tc.got)
			}
		})
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []OrderStatus{OrderStatusCompleted, OrderStatusCancelled, OrderStatusRefunded} {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []OrderStatus{OrderStatusPendingPayment, OrderStatusInProgress, OrderStatusDelivered, OrderStatusDisputed} {
		if s.Terminal() {
			t.Errorf("did not expect %s to be terminal", s)
		}
	}
}

func TestValidateCryptoPaymentPresence(t *testing.T) {
	base := Order{Buyer: Party{ID: "b"}, Seller: Party{ID: "s"}, GigID: "g", Price: 10}

	standard := base
	standard.PaymentType = PaymentTypeStandard
	if problems := standard.Validate(); len(problems) != 0 {
		t.Fatalf("expected valid standard order, got %v", problems)
	}

	standard.CryptoPayment = &CryptoPayment{}
	if problems := standard.Validate(); len(problems) == 0 {
		t.Fatal("expected standard order with crypto payment to be rejected")
	}

	crypto := base
	crypto.PaymentType = PaymentTypeCrypto
	if problems := crypto.Validate(); len(problems) == 0 {
		t.Fatal("expected crypto order without payment to be rejected")
	}

	crypto.CryptoPayment = &CryptoPayment{TokenAddress: "0xT", TokenSymbol: "USDC", BuyerWallet: "0xB", ChainID: 137}
	problems := crypto.Validate()
	if len(problems) != 1 || !strings.Contains(problems[0], "seller wallet") {
		t.Fatalf("expected seller wallet problem, got %v", problems)
	}
}

func TestAmountFormatting(t *testing.T) {
	if got := (Order{Price: 100}).Amount(); got != "100.00" {
		t.Fatalf("expected 100.00, got %s", got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	now := time.Now()
	o := Order{
		Events:        OrderEvents{PlaceOrder: &now},
		CryptoPayment: &CryptoPayment{EscrowOrderID: "e1"},
		DeliveredWork: []DeliveredWork{{FileName: "a"}},
	}
	c := o.Clone()
	c.CryptoPayment.EscrowOrderID = "e2"
	c.DeliveredWork[0].FileName = "b"
	*c.Events.PlaceOrder = now.Add(time.Hour)

	if o.CryptoPayment.EscrowOrderID != "e1" || o.DeliveredWork[0].FileName != "a" || !o.Events.PlaceOrder.Equal(now) {
		t.Fatal("clone shares state with original")
	}
}

func TestDomainEventIdempotencyKey(t *testing.T) {
	at := time.Unix(100, 5)
	prev := Order{ID: "o1", Status: OrderStatusPendingCryptoPayment}
	next := Order{ID: "o1", Status: OrderStatusInProgress, PaymentType: PaymentTypeCrypto, CryptoPayment: &CryptoPayment{EscrowOrderID: "e"}}
	ev := NewDomainEvent("id", EventPaymentConfirmed, prev, next, at)

	if ev.PreviousStatus != OrderStatusPendingCryptoPayment {
		t.Fatalf("unexpected previous status %s", ev.PreviousStatus)
	}
	if ev.Order.EscrowOrderID != "e" {
		t.Fatalf("expected escrow id in snapshot")
	}
	if ev.IdempotencyKey() != "o1:order.payment_confirmed:100000000005" {
		t.Fatalf("unexpected key %s", ev.IdempotencyKey())
	}
	if !EventPaymentConfirmed.Known() || EventType("order.unknown").Known() {
		t.Fatal("unexpected Known result")
	}
}

func TestNewOutboxMessageEncodesPayload(t *testing.T) {
	at := time.Unix(10, 0)
	msg, err := NewOutboxMessage("m1", "order-1", "exchange", "key", map[string]string{"a": "b"}, at)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(msg.Payload) != `{"a":"b"}` || msg.OrderID != "order-1" || !msg.CreatedAt.Equal(at) || msg.PublishedAt != nil {
		t.Fatalf("unexpected message %+v", msg)
	}

	if _, err := NewOutboxMessage("m2", "order-1", "exchange", "key", func() {}, at); err == nil {
		t.Fatal("expected encode error")
	}
}
