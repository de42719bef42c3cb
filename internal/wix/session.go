package wix

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"cart-sync/internal/model"
	"cart-sync/internal/remote"
)

// accessToken returns the bearer credential for id: the member token when signed in,
// otherwise the guest's visitor token, created or renewed as needed.
func (c *Client) accessToken(ctx context.Context, id remote.Identity) (string, error) {
	if id.Authenticated() {
		return id.Token, nil
	}
	if id.GuestID == "" {
		return "", model.NewValidationError("guest_session_id", "required for a visitor cart")
	}

	c.mu.Lock()
	tok, ok := c.tokens[id.GuestID]
	c.mu.Unlock()
	if ok && c.now().Before(tok.expiresAt.Add(-refreshSkew)) {
		return tok.access, nil
	}

	// One token request per guest at a time; concurrent callers share the result.
	v, err, _ := c.group.Do(id.GuestID, func() (any, error) {
		next, err := c.renew(ctx, tok, ok)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.tokens[id.GuestID] = next
		c.mu.Unlock()
		return next.access, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// renew refreshes prev when it carries a refresh token, and otherwise (or when the
// refresh is refused) starts a new visitor session.
func (c *Client) renew(ctx context.Context, prev visitorToken, havePrev bool) (visitorToken, error) {
	if havePrev && prev.refresh != "" {
		resp, err := c.requestToken(ctx, &OAuthRefreshRequest{
			ClientID:     c.clientID,
			GrantType:    "refresh_token",
			RefreshToken: prev.refresh,
		})
		if err == nil {
			return c.visitorToken(resp), nil
		}
		if model.IsRetryable(err) {
			return visitorToken{}, err
		}
	}
	resp, err := c.requestToken(ctx, &OAuthTokenRequest{
		ClientID:  c.clientID,
		GrantType: "anonymous",
	})
	if err != nil {
		return visitorToken{}, err
	}
	return c.visitorToken(resp), nil
}

func (c *Client) visitorToken(resp *OAuthTokenResponse) visitorToken {
	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = 4 * time.Hour
	}
	return visitorToken{
		access:    resp.AccessToken,
		refresh:   resp.RefreshToken,
		expiresAt: c.now().Add(ttl),
	}
}

// requestToken posts body to the token endpoint, which takes no Authorization header.
func (c *Client) requestToken(ctx context.Context, body any) (*OAuthTokenResponse, error) {
	req, err := c.newRequest(ctx, http.MethodPost, pathOAuthToken, body)
	if err != nil {
		return nil, err
	}
	var resp OAuthTokenResponse
	if err := c.do(req, model.ProductKey{}, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, model.NewServerError(serviceName, fmt.Errorf("empty access token from OAuth"))
	}
	return &resp, nil
}

// forget drops the visitor session of guestID.
func (c *Client) forget(guestID string) {
	c.mu.Lock()
	delete(c.tokens, guestID)
	c.mu.Unlock()
}
