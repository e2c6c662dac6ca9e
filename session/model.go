package session

import "time"

// Session is the authoritative record for one opaque token. The subject
// identity (Provider + Subject) is immutable after creation; only LastSeenAt
// changes over the session's lifetime.
type Session struct {
	Token string

	Provider string
	Subject  string
	Email    string
	Name     string

	IP        string
	UserAgent string

	CreatedAt  int64
	ExpiresAt  int64
	LastSeenAt int64
}

// ExpiresIn returns the time remaining until the absolute expiry, measured
// from now. Negative when already expired.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	return time.Unix(s.ExpiresAt, 0).Sub(now)
}

// SubjectRef returns the provider-qualified subject identifier used for
// audit correlation and the per-subject session index.
func (s *Session) SubjectRef() string {
	return s.Provider + ":" + s.Subject
}
