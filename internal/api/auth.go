package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pavelanni/qtadmin/internal/model"
)

// Login exchanges credentials for a bearer token.
func (c *Client) Login(ctx context.Context, creds model.Credentials) (model.Token, error) {
	var tok model.Token
	err := c.do(ctx, call{
		op:         "login",
		method:     http.MethodPost,
		path:       "/auth/login",
		body:       creds,
		out:        &tok,
		defaultMsg: "Login failed",
	})
	return tok, err
}

// Register creates an account. The reply is the new user record; it carries no token.
func (c *Client) Register(ctx context.Context, reg model.Registration) (map[string]any, error) {
	var user map[string]any
	err := c.do(ctx, call{
		op:         "register",
		method:     http.MethodPost,
		path:       "/auth/register",
		body:       reg,
		out:        &user,
		unwrap:     true,
		defaultMsg: "Registration failed",
	})
	return user, err
}

// GoogleLogin posts an identity provider assertion for account linkage.
func (c *Client) GoogleLogin(ctx context.Context, id model.Identity) (model.FederatedLogin, error) {
	var out model.FederatedLogin
	err := c.do(ctx, call{
		op:         "federated login",
		method:     http.MethodPost,
		path:       "/auth/google",
		body:       id,
		out:        &out,
		defaultMsg: "Google sign-in failed",
	})
	return out, err
}

// Me fetches the current user's profile as raw JSON so the caller can keep
// the backend's key order when normalizing it.
func (c *Client) Me(ctx context.Context) (json.RawMessage, error) {
	var raw json.RawMessage
	err := c.do(ctx, call{
		op:         "current user",
		method:     http.MethodGet,
		path:       "/users/me",
		out:        &raw,
		unwrap:     true,
		defaultMsg: "Failed to fetch user profile",
	})
	return raw, err
}
