package wsaa

import "time"

// AccessTicket is the credential pair issued by the authentication service.
// ExpiresAt reflects the validity window the client requested; the service
// may grant a longer one, which the client does not track.
type AccessTicket struct {
	Token       string
	Sign        string
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the requested validity window has passed.
func (t *AccessTicket) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
