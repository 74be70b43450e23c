package model

import "time"

// AccountKind distinguishes organizers from attendees.  It is carried in
// access tokens and checked at the authorization boundary; business and
// regular accounts share the same User record.
type AccountKind string

const (
    KindBusiness AccountKind = "BUSINESS" // may publish and edit events
    KindRegular  AccountKind = "REGULAR"  // may reserve seats
)

// Valid reports whether k is one of the known account kinds.
func (k AccountKind) Valid() bool {
    return k == KindBusiness || k == KindRegular
}

// User represents an application user record as stored in the
// `users` table.  Business accounts carry a company name; regular
// accounts never do.
//
// Fields:
//  ID           – primary key identifier of the user.
//  Username     – unique login name.
//  Email        – unique email address.
//  PasswordHash – bcrypt hashed password.
//  IsBusiness   – whether the account publishes events.
//  CompanyName  – organizer display name (nil unless IsBusiness).
//  CreatedAt    – timestamp of creation.
type User struct {
    ID           uint64    // users.id
    Username     string    // users.username
    Email        string    // users.email
    PasswordHash string    // users.password_hash
    IsBusiness   bool      // users.is_business
    CompanyName  *string   // users.company_name (nullable)
    CreatedAt    time.Time // users.created_at
}

// Kind maps the stored flag onto an AccountKind.
func (u User) Kind() AccountKind {
    if u.IsBusiness {
        return KindBusiness
    }
    return KindRegular
}

// Session models an entry in the `sessions` table.  A session is the
// server side of a refresh token: only the SHA‑256 hash of the raw
// token is stored.
//
// Fields:
//  ID        – primary key identifier.
//  UserID    – owner of the session.
//  TokenHash – SHA‑256 hex digest of the refresh token.
//  ExpiresAt – expiration timestamp.
//  RevokedAt – when the session was ended (nil while active).
//  CreatedAt – timestamp of creation.
type Session struct {
    ID        uint64     // sessions.id
    UserID    uint64     // sessions.user_id
    TokenHash string     // sessions.token_hash
    ExpiresAt time.Time  // sessions.expires_at
    RevokedAt *time.Time // sessions.revoked_at (nullable)
    CreatedAt time.Time  // sessions.created_at
}
