// Package namespace derives the storage-key prefixes that partition assets
// per user and per team. Identity comes from an explicit, ordered list of
// session providers rather than ambient globals; a provider that errors is
// treated as absent and the chain falls through to the next one.
package namespace

import (
	"strings"

	"cav/asset-vault/internal/domain"
)

// AnonymousKey is the final fallback when no identity source yields an email.
const AnonymousKey = "anonymous"

// Sanitize lowercases s and replaces every non-alphanumeric rune with an
// underscore, producing a string safe to embed in a storage key.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// UserKeyFor returns the personal partition key for an email address.
// An empty email maps to the anonymous key.
func UserKeyFor(email string) string {
	if email == "" {
		return AnonymousKey
	}
	return Sanitize(email)
}

// TeamKeyFor returns the shared partition key derived from the email's
// domain, or "" when no domain can be extracted.
func TeamKeyFor(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return Sanitize(email[at+1:])
}

// SessionProvider yields an identity from one source. Returning an error or
// a session with an empty email both mean "source absent".
type SessionProvider interface {
	Session() (domain.Session, error)
}

// ProviderFunc adapts a plain function to the SessionProvider interface.
type ProviderFunc func() (domain.Session, error)

func (f ProviderFunc) Session() (domain.Session, error) {
	return f()
}

// Resolver walks an ordered provider list and settles on the first usable
// identity. Resolution never fails: with no usable source it answers an
// anonymous session.
type Resolver struct {
	providers []SessionProvider
}

func NewResolver(providers ...SessionProvider) *Resolver {
	return &Resolver{providers: providers}
}

// Resolve returns the first session whose source produced an email. Provider
// errors are swallowed; they only mean that source has nothing to offer.
func (r *Resolver) Resolve() domain.Session {
	for _, p := range r.providers {
		if p == nil {
			continue
		}
		sess, err := p.Session()
		if err != nil || sess.Email == "" {
			continue
		}
		return sess
	}
	// Anonymous callers keep the editor gates of the local-first tool:
	// they can work in their own anonymous partition, just not delete
	// anyone else's assets.
	return domain.Session{Role: domain.RoleEditor}
}

// UserKey resolves the current identity and returns its personal partition
// key, "anonymous" when unknown.
func (r *Resolver) UserKey() string {
	return UserKeyFor(r.Resolve().Email)
}

// TeamKey returns the shared partition key, or "" when the session is not
// team-capable or carries no usable domain.
func (r *Resolver) TeamKey() string {
	sess := r.Resolve()
	if !sess.CanAccessTeam {
		return ""
	}
	return TeamKeyFor(sess.Email)
}
