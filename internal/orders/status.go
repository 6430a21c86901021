package orders

import "errors"

type Status string

const (
	StatusPending            Status = "PENDING"
	StatusPreparing          Status = "PREPARING"
	StatusDispatchInstructed Status = "DISPATCH_INSTRUCTED"
	StatusShipping           Status = "SHIPPING"
	StatusDelivered          Status = "DELIVERED"
	StatusCancelled          Status = "CANCELLED"
)

// Statuses in lifecycle order.
var Statuses = []Status{
	StatusPending,
	StatusPreparing,
	StatusDispatchInstructed,
	StatusShipping,
	StatusDelivered,
	StatusCancelled,
}

var labels = map[Status]string{
	StatusPending:            "접수대기",
	StatusPreparing:          "상품준비중",
	StatusDispatchInstructed: "출고지시",
	StatusShipping:           "배송중",
	StatusDelivered:          "배송완료",
	StatusCancelled:          "주문취소",
}

var (
	ErrNotCancellable    = errors.New("order can only be cancelled while pending")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown status")
	ErrEmptyTracking     = errors.New("tracking number is empty")
)

func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

// Label is the name shown to buyers and admins.
func (s Status) Label() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func ParseStatus(v string) (Status, error) {
	s := Status(v)
	if s.Valid() {
		return s, nil
	}
	for st, l := range labels {
		if l == v {
			return st, nil
		}
	}
	return "", ErrUnknownStatus
}

// Admin actions that move an order forward without a tracking number.
var validNext = map[Status]map[Status]bool{
	StatusPending:            {StatusPreparing: true, StatusCancelled: true},
	StatusPreparing:          {StatusDispatchInstructed: true, StatusDelivered: true},
	StatusDispatchInstructed: {},
	StatusShipping:           {StatusDelivered: true},
	StatusDelivered:          {},
	StatusCancelled:          {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

// Transition returns the patch for a forward admin action from -> to.
func Transition(from, to Status) (Patch, error) {
	if !to.Valid() {
		return Patch{}, ErrUnknownStatus
	}
	if !CanTransition(from, to) {
		return Patch{}, ErrInvalidTransition
	}
	return SetStatus(to), nil
}

// Cancel is the customer/admin cancel action. Only the status changes.
func Cancel(from Status) (Patch, error) {
	if from != StatusPending {
		return Patch{}, ErrNotCancellable
	}
	return SetStatus(StatusCancelled), nil
}

// AssignTracking persists courier and tracking number together and moves the
// order to SHIPPING. Terminal orders are refused.
func AssignTracking(from Status, courier, tracking string) (Patch, error) {
	if tracking == "" {
		return Patch{}, ErrEmptyTracking
	}
	if from.Terminal() {
		return Patch{}, ErrInvalidTransition
	}
	return ShipPatch(courier, tracking), nil
}

// ClearTracking reverts the order to PENDING and drops courier and tracking.
func ClearTracking() Patch {
	empty := ""
	return Patch{Status: ptr(StatusPending), Courier: &empty, TrackingNumber: &empty}
}

// ShipPatch is the unconditional write used by the spreadsheet import.
func ShipPatch(courier, tracking string) Patch {
	return Patch{Status: ptr(StatusShipping), Courier: &courier, TrackingNumber: &tracking}
}

func ptr[T any](v T) *T { return &v }
