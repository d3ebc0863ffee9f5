package tokenauth

import "time"

const (
	claimEmail = "email"
	claimRole  = "role"
)

// Claims is the payload signed into every issued token.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Principal is the sanitized view of a validated token handed to request
// handlers. The expiry is intentionally not part of it.
type Principal struct {
	UserID   string    `json:"userId"`
	Email    string    `json:"email,omitempty"`
	Role     string    `json:"role"`
	IssuedAt time.Time `json:"-"`
}

// IssuedAtUnix returns the issued-at time in Unix seconds.
func (p Principal) IssuedAtUnix() int64 {
	return p.IssuedAt.Unix()
}

// IssuedToken is the result of a successful issuance.
type IssuedToken struct {
	AccessToken string
	TokenType   string
	ExpiresIn   string
	Lifetime    time.Duration
	IssuedAt    time.Time
	Claims      Claims
}

// ExpiresAt returns the token expiry.
func (t IssuedToken) ExpiresAt() time.Time {
	return t.Claims.ExpiresAt
}
