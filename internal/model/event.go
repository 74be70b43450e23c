package model

import "time"

// Event is a published happening with a fixed number of seats.  Only the
// organizer (a business user) may change it.  Capacity may be edited at
// any time, including below the seats already committed.
//
// Fields:
//  ID          – primary key identifier.
//  OrganizerID – owning business user.
//  Title       – short name shown in listings.
//  Description – long text.
//  EventDate   – calendar day of the event (UTC midnight).
//  StartTime   – wall clock start formatted "15:04".
//  DurationMin – length in minutes.
//  Capacity    – maximum seats that can be sold.
//  EventType   – free-form category (Concert, Sport, ...).
//  Location    – venue.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Event struct {
    ID          uint64    // events.id
    OrganizerID uint64    // events.organizer_id
    Title       string    // events.title
    Description string    // events.description
    EventDate   time.Time // events.event_date
    StartTime   string    // events.start_time
    DurationMin int       // events.duration
    Capacity    int       // events.capacity
    EventType   string    // events.event_type
    Location    string    // events.location
    CreatedAt   time.Time // events.created_at
    UpdatedAt   time.Time // events.updated_at
}

var eventImages = map[string]string{
    "Concert":    "concert.webp",
    "Sport":      "sport.webp",
    "Theatre":    "theatre.webp",
    "Cinema":     "cinema.webp",
    "Exhibition": "exhibition.webp",
    "Festival":   "festival.webp",
    "Workshop":   "workshop.webp",
    "Other":      "other.webp",
}

// Image returns the default illustration for the event's type.
func (e Event) Image() string {
    if img, ok := eventImages[e.EventType]; ok {
        return img
    }
    return "default.jpg"
}

// EventWithSeats pairs an event with the seats committed to it.  It is
// produced by listing queries that aggregate reservations in SQL.
type EventWithSeats struct {
    Event
    Committed int
}
