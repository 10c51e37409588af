package model

import (
	"fmt"
	"time"

	domainErrors "github.com/polkiloo/jobber/internal/domain/errors"
)

// TransitionKind names an edge of the order state machine.
type TransitionKind string

const (
	TransitionConfirmPayment TransitionKind = "confirm_payment"
	TransitionDeliver        TransitionKind = "deliver"
	TransitionComplete       TransitionKind = "complete"
	TransitionCancel         TransitionKind = "cancel"
	TransitionDispute        TransitionKind = "dispute"
	TransitionResolveRelease TransitionKind = "resolve_release"
	TransitionResolveRefund  TransitionKind = "resolve_refund"
)

// Transition carries the input of a single state change.
type Transition struct {
	Kind             TransitionKind
	TransactionHash  string
	BlockNumber      uint64
	PaymentReference string
	DeliveredWork    []DeliveredWork
	Reason           string
}

type edge struct {
	from     []OrderStatus
	to       OrderStatus
	escrow   EscrowStatus
	event    EventType
	cryptoOK bool
	plainOK  bool
}

var edges = map[TransitionKind]edge{
	TransitionConfirmPayment: {
		from:     []OrderStatus{OrderStatusPendingPayment, OrderStatusPendingCryptoPayment},
		to:       OrderStatusInProgress,
		escrow:   EscrowStatusPaid,
		event:    EventPaymentConfirmed,
		cryptoOK: true, plainOK: true,
	},
	TransitionDeliver: {
		from:     []OrderStatus{OrderStatusInProgress},
		to:       OrderStatusDelivered,
		escrow:   EscrowStatusDelivered,
		event:    EventDelivered,
		cryptoOK: true, plainOK: true,
	},
	TransitionComplete: {
		from:     []OrderStatus{OrderStatusDelivered},
		to:       OrderStatusCompleted,
		escrow:   EscrowStatusCompleted,
		event:    EventCompleted,
		cryptoOK: true, plainOK: true,
	},
	TransitionCancel: {
		from:     []OrderStatus{OrderStatusPendingPayment, OrderStatusPendingCryptoPayment, OrderStatusInProgress},
		to:       OrderStatusCancelled,
		escrow:   EscrowStatusCancelled,
		event:    EventCancelled,
		cryptoOK: true, plainOK: true,
	},
	TransitionDispute: {
		from:     []OrderStatus{OrderStatusDelivered},
		to:       OrderStatusDisputed,
		escrow:   EscrowStatusDisputed,
		event:    EventDisputed,
		cryptoOK: true,
	},
	TransitionResolveRelease: {
		from:     []OrderStatus{OrderStatusDisputed},
		to:       OrderStatusCompleted,
		escrow:   EscrowStatusCompleted,
		event:    EventCompleted,
		cryptoOK: true,
	},
	TransitionResolveRefund: {
		from:     []OrderStatus{OrderStatusDisputed},
		to:       OrderStatusRefunded,
		escrow:   EscrowStatusRefunded,
		event:    EventRefunded,
		cryptoOK: true,
	},
}

// EventFor returns the domain event emitted by a transition kind.
func EventFor(kind TransitionKind) EventType {
	return edges[kind].event
}

// CanApply validates the guard of a transition without computing the result.
func CanApply(o Order, kind TransitionKind) error {
	e, ok := edges[kind]
	if !ok {
		return fmt.Errorf("%w: unknown transition %q", domainErrors.ErrInvalidTransition, kind)
	}
	if o.IsCrypto() && !e.cryptoOK || !o.IsCrypto() && !e.plainOK {
		return fmt.Errorf("%w: %s is not available for %s orders", domainErrors.ErrInvalidTransition, kind, o.PaymentType)
	}
	if !statusIn(o.Status, e.from) {
		return fmt.Errorf("%w: cannot %s order in status %s", domainErrors.ErrInvalidTransition, kind, o.Status)
	}
	if kind == TransitionConfirmPayment {
		if o.IsCrypto() && o.Status != OrderStatusPendingCryptoPayment || !o.IsCrypto() && o.Status != OrderStatusPendingPayment {
			return fmt.Errorf("%w: cannot confirm payment in status %s", domainErrors.ErrInvalidTransition, o.Status)
		}
	}
	if o.IsCrypto() && o.EscrowOrderID() == "" {
		return fmt.Errorf("%w: escrow order is not attached", domainErrors.ErrInvalidTransition)
	}
	return nil
}

// Apply is the pure state transition function: it returns the next order value
// and leaves the input untouched.
func Apply(o Order, t Transition, at time.Time) (Order, error) {
	if err := CanApply(o, t.Kind); err != nil {
		return o, err
	}
	e := edges[t.Kind]
	next := o.Clone()
	next.Status = e.to
	next.UpdatedAt = at
	stamp := at

	switch t.Kind {
	case TransitionConfirmPayment:
		next.Events.PlaceOrder = &stamp
		next.Events.OrderStarted = &stamp
		if next.IsCrypto() {
			next.CryptoPayment.TransactionHash = t.TransactionHash
			next.CryptoPayment.BlockNumber = t.BlockNumber
		} else {
			next.PaymentRef = t.PaymentReference
		}
	case TransitionDeliver:
		next.Delivered = true
		next.Events.OrderDelivered = &stamp
		next.DeliveredWork = append(next.DeliveredWork, t.DeliveredWork...)
	case TransitionComplete, TransitionResolveRelease:
		next.Approved = true
		next.ApprovedAt = &stamp
		next.Events.OrderApproved = &stamp
	case TransitionCancel:
		next.Cancelled = true
		next.Offer.Cancelled = true
		next.Offer.Reason = t.Reason
		if next.IsCrypto() {
			next.CryptoPayment.CancelReason = t.Reason
		}
	case TransitionDispute, TransitionResolveRefund:
	}

	if next.IsCrypto() {
		next.CryptoPayment.EscrowStatus = e.escrow
	}
	return next, nil
}

// CatchUpPath lists the transitions that bring a lagging local order in line with
// the remote escrow status. It returns nil when the local order is not behind.
func CatchUpPath(o Order, remote EscrowStatus) ([]TransitionKind, error) {
	if !o.IsCrypto() {
		return nil, nil
	}

	switch remote {
	case EscrowStatusCancelled:
		if o.Status == OrderStatusCancelled {
			return nil, nil
		}
		if statusIn(o.Status, edges[TransitionCancel].from) {
			return []TransitionKind{TransitionCancel}, nil
		}
	case EscrowStatusDisputed:
		switch o.Status {
		case OrderStatusDisputed:
			return nil, nil
		case OrderStatusDelivered:
			return []TransitionKind{TransitionDispute}, nil
		}
	case EscrowStatusRefunded:
		switch o.Status {
		case OrderStatusRefunded:
			return nil, nil
		case OrderStatusDisputed:
			return []TransitionKind{TransitionResolveRefund}, nil
		case OrderStatusDelivered:
			return []TransitionKind{TransitionDispute, TransitionResolveRefund}, nil
		}
	case EscrowStatusCompleted:
		if o.Status == OrderStatusDisputed {
			return []TransitionKind{TransitionResolveRelease}, nil
		}
		fallthrough
	case EscrowStatusCreated, EscrowStatusPending, EscrowStatusPaid, EscrowStatusDelivered:
		return linearPath(o.Status, remote)
	}
	return nil, fmt.Errorf("%w: local status %s cannot follow escrow status %s", domainErrors.ErrInvalidTransition, o.Status, remote)
}

var linear = []struct {
	local  OrderStatus
	remote EscrowStatus
	next   TransitionKind
}{
	{OrderStatusPendingCryptoPayment, EscrowStatusCreated, TransitionConfirmPayment},
	{OrderStatusInProgress, EscrowStatusPaid, TransitionDeliver},
	{OrderStatusDelivered, EscrowStatusDelivered, TransitionComplete},
	{OrderStatusCompleted, EscrowStatusCompleted, ""},
}

func linearPath(local OrderStatus, remote EscrowStatus) ([]TransitionKind, error) {
	if remote == EscrowStatusPending {
		remote = EscrowStatusCreated
	}
	localRank, remoteRank := -1, -1
	for i, step := range linear {
		if step.local == local {
			localRank = i
		}
		if step.remote == remote {
			remoteRank = i
		}
	}
	if localRank < 0 || remoteRank < 0 {
		return nil, fmt.Errorf("%w: local status %s cannot follow escrow status %s", domainErrors.ErrInvalidTransition, local, remote)
	}
	if remoteRank <= localRank {
		return nil, nil
	}
	path := make([]TransitionKind, 0, remoteRank-localRank)
	for i := localRank; i < remoteRank; i++ {
		path = append(path, linear[i].next)
	}
	return path, nil
}

func statusIn(s OrderStatus, set []OrderStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}
