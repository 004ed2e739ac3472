// Package session keeps the cookies and formhash of a signed-in account
// between runs so a fresh clearance cookie is reused until it expires.
package session

import "time"

// Entry is the saved state of one account.
type Entry struct {
	Cookies   string    `json:"cookies"`
	Formhash  string    `json:"formhash,omitempty"`
	SavedAt   time.Time `json:"savedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether e is past its expiry. A zero expiry never expires.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && !now.Before(e.ExpiresAt)
}

// Store saves entries keyed by site and account.
type Store interface {
	Get(key string) (Entry, bool)
	Set(key string, value Entry)
}

// Key derives the store key of an account.
func Key(site, account string) string {
	return site + "|" + account
}
