// Package queue defines reservation activity messages and the RabbitMQ
// publisher and consumer that carry them.
package queue

// QueueName is the durable queue reservation activity is published to.
const QueueName = "reservation.activity"

// Actions carried in ReservationEvent.Action.
const (
    ActionCreated   = "reservation.created"
    ActionUpdated   = "reservation.updated"
    ActionCancelled = "reservation.cancelled"
)

// ReservationEvent is published after a reservation change is committed.
// It contains enough information for downstream consumers to log or
// notify without querying the primary database.
type ReservationEvent struct {
    Action        string `json:"action"`
    ReservationID uint64 `json:"reservation_id"`
    UserID        uint64 `json:"user_id"`
    EventID       uint64 `json:"event_id"`
    EventTitle    string `json:"event_title"`
    Seats         int    `json:"seats"`
    PreviousSeats int    `json:"previous_seats,omitempty"`
    Available     int    `json:"available"`
    OccurredAt    string `json:"occurred_at"`
}
