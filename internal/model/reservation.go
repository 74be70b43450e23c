package model

import "time"

// Reservation records a user's booking of some seats for an event.
// Seats is always positive.  Cancelling a reservation deletes the row.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – user who made the reservation.
//  EventID   – event being reserved.
//  Seats     – number of seats held.
//  CreatedAt – creation timestamp.
type Reservation struct {
    ID        uint64    // reservations.id
    UserID    uint64    // reservations.user_id
    EventID   uint64    // reservations.event_id
    Seats     int       // reservations.seats
    CreatedAt time.Time // reservations.created_at
}

// ReservationDetail is a reservation joined with the event it targets.
// It is returned by the user profile listing.
type ReservationDetail struct {
    ID         uint64    `json:"id"`
    EventID    uint64    `json:"event_id"`
    Seats      int       `json:"seats"`
    CreatedAt  time.Time `json:"created_at"`
    EventTitle string    `json:"event_title"`
    EventDate  string    `json:"event_date"`
    StartTime  string    `json:"start_time"`
    Location   string    `json:"location"`
}
