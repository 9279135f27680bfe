package core

import "time"

// EventType enumerates engine events surfaced to the host UI.
type EventType string

const (
	EventRewardApplied      EventType = "reward_applied"
	EventRewardSkipped      EventType = "reward_skipped"
	EventMinimumNotMet      EventType = "minimum_not_met"
	EventCouponRedeemed     EventType = "coupon_redeemed"
	EventCouponReleased     EventType = "coupon_released"
	EventValidationFailed   EventType = "validation_failed"
	EventReconcileCompleted EventType = "reconcile_completed"
)

// Event is an immutable engine notification.
type Event struct {
	Type      EventType      `json:"type"`
	Time      time.Time      `json:"time"`
	OrderID   string         `json:"order_id"`
	ProgramID ProgramID      `json:"program_id,omitempty"`
	RewardID  RewardID       `json:"reward_id,omitempty"`
	CouponID  CouponID       `json:"coupon_id,omitempty"`
	Amount    float64        `json:"amount,omitempty"`
	Points    float64        `json:"points,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewRewardApplied(orderID string, program ProgramID, reward RewardID, coupon CouponID, amount, points float64) Event {
	return Event{Type: EventRewardApplied, Time: time.Now().UTC(), OrderID: orderID,
		ProgramID: program, RewardID: reward, CouponID: coupon, Amount: amount, Points: points}
}

func NewRewardSkipped(orderID string, program ProgramID, reward RewardID, reason string) Event {
	return Event{Type: EventRewardSkipped, Time: time.Now().UTC(), OrderID: orderID,
		ProgramID: program, RewardID: reward, Reason: reason}
}

func NewMinimumNotMet(orderID string, program ProgramID, reason string) Event {
	return Event{Type: EventMinimumNotMet, Time: time.Now().UTC(), OrderID: orderID,
		ProgramID: program, Reason: reason}
}

func NewCouponRedeemed(orderID string, program ProgramID, coupon CouponID, points float64) Event {
	return Event{Type: EventCouponRedeemed, Time: time.Now().UTC(), OrderID: orderID,
		ProgramID: program, CouponID: coupon, Points: points}
}

func NewCouponReleased(orderID string, coupon CouponID) Event {
	return Event{Type: EventCouponReleased, Time: time.Now().UTC(), OrderID: orderID, CouponID: coupon}
}

func NewValidationFailed(orderID, reason string) Event {
	return Event{Type: EventValidationFailed, Time: time.Now().UTC(), OrderID: orderID, Reason: reason}
}

func NewReconcileCompleted(orderID string, rewardLines int) Event {
	return Event{Type: EventReconcileCompleted, Time: time.Now().UTC(), OrderID: orderID,
		Metadata: map[string]any{"reward_lines": rewardLines}}
}
