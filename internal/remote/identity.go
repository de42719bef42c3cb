package remote

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dunglas/httpsfv"
	"github.com/google/uuid"
)

// SessionHeader carries the guest session as an RFC 8941 dictionary: guest="<id>".
const SessionHeader = "Cart-Session"

// Identity scopes remote calls. GuestID names the anonymous session; Token is the
// bearer credential of a logged-in user. The engine carries both but never issues
// or validates either.
type Identity struct {
	GuestID string
	UserID  string
	Token   string
}

// Authenticated reports whether the identity carries a user credential.
func (i Identity) Authenticated() bool { return i.Token != "" }

// NewGuestIdentity returns an anonymous identity with a fresh session id.
func NewGuestIdentity() Identity {
	return Identity{GuestID: uuid.NewString()}
}

// IdentitySource hands out the identity to use for the next remote call.
type IdentitySource interface {
	Identity() Identity
}

// Credentials is the mutable identity of one cart session.
type Credentials struct {
	mu sync.RWMutex
	id Identity
}

// NewCredentials starts from id; a zero GuestID is replaced by a fresh one.
func NewCredentials(id Identity) *Credentials {
	if id.GuestID == "" {
		id.GuestID = uuid.NewString()
	}
	return &Credentials{id: id}
}

func (c *Credentials) Identity() Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// SignIn attaches a user credential. The guest id is kept so the guest cart can be merged.
func (c *Credentials) SignIn(userID, token string) Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id.UserID = userID
	c.id.Token = token
	return c.id
}

// SignOut drops the user credential and starts a new anonymous session.
func (c *Credentials) SignOut() Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.id = NewGuestIdentity()
	return c.id
}

// FormatSessionHeader renders the Cart-Session header value for guestID.
func FormatSessionHeader(guestID string) (string, error) {
	dict := httpsfv.NewDictionary()
	dict.Add("guest", httpsfv.NewItem(guestID))
	return httpsfv.Marshal(dict)
}

// ParseSessionHeader extracts the guest id from a Cart-Session header value.
func ParseSessionHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("empty Cart-Session header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{header})
	if err != nil {
		return "", fmt.Errorf("invalid Cart-Session header: %w", err)
	}

	member, ok := dict.Get("guest")
	if !ok {
		return "", errors.New("guest key not found in Cart-Session header")
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return "", errors.New("guest value must be an item")
	}
	guestID, ok := item.Value.(string)
	if !ok {
		return "", errors.New("guest value must be a string")
	}
	return guestID, nil
}
