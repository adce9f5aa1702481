// Package identity resolves LMS users to external account emails using the
// explicit identity mapping table, with a payload-supplied email fallback.
package identity

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/classync/classync/internal/db"
)

// ErrUnresolved means no identity mapping exists and no fallback email was
// supplied. Remediation: import an identity mapping for the user.
var ErrUnresolved = errors.New("identity unresolved: add an identity mapping or supply user_email")

var emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether s looks like an email address.
func ValidEmail(s string) bool {
	return emailRe.MatchString(s)
}

// Resolver resolves LMS user ids to external emails.
type Resolver struct {
	db *db.DB
}

// NewResolver creates a resolver backed by the identity mapping table.
func NewResolver(database *db.DB) *Resolver {
	return &Resolver{db: database}
}

// Resolve returns the external email for an LMS user. An explicit mapping
// wins; otherwise a non-empty fallback email is used; otherwise ErrUnresolved.
func (r *Resolver) Resolve(source, userID, fallbackEmail string) (string, error) {
	email, err := r.db.LookupIdentity(source, userID)
	if err != nil {
		return "", fmt.Errorf("resolve identity: %w", err)
	}
	if email != "" {
		return email, nil
	}
	if fallbackEmail != "" {
		return fallbackEmail, nil
	}
	return "", fmt.Errorf("%w (source=%s user=%s)", ErrUnresolved, source, userID)
}
