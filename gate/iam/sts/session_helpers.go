package sts

import "time"

// Expiry checks shared by credential issuance and session validation. Nil
// receivers count as expired so callers can gate on a lookup result without
// a separate nil check.

// IsExpired reports whether the credentials are past their expiration.
func (c *Credentials) IsExpired() bool {
	return c == nil || !time.Now().Before(c.Expiration)
}

// IsExpired reports whether the session is past its expiration.
func (s *SessionInfo) IsExpired() bool {
	return s == nil || !time.Now().Before(s.ExpiresAt)
}
