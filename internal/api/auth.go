// Package api wraps the admin backend endpoints the console core depends on.
// Every call goes through the gateway.
package api

import (
	"context"
	"fmt"
	"net/http"

	"memberconsole/internal/gateway"
	"memberconsole/internal/model"
)

// Doer is the subset of *gateway.Gateway the clients use.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

// LoginResponse is the body of both login endpoints.
type LoginResponse struct {
	User   model.Principal `json:"user"`
	Tokens model.TokenPair `json:"tokens"`
}

type userEnvelope struct {
	User model.Principal `json:"user"`
}

type AuthClient struct {
	gw Doer
}

func NewAuthClient(gw Doer) *AuthClient {
	return &AuthClient{gw: gw}
}

func (c *AuthClient) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	var resp LoginResponse
	err := c.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      map[string]string{"email": email, "password": password},
		Anonymous: true,
	}, &resp)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("login: %w", err)
	}
	return resp, nil
}

// LoginWithGoogle exchanges an opaque Google ID credential for a token pair.
func (c *AuthClient) LoginWithGoogle(ctx context.Context, credential string) (LoginResponse, error) {
	var resp LoginResponse
	err := c.gw.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/google",
		Body:      map[string]string{"credential": credential},
		Anonymous: true,
	}, &resp)
	if err != nil {
		return LoginResponse{}, fmt.Errorf("google login: %w", err)
	}
	return resp, nil
}

// Logout revokes the given pair on the server. The tokens are passed in
// because the caller has usually cleared them locally already.
func (c *AuthClient) Logout(ctx context.Context, pair model.TokenPair) error {
	req := gateway.Request{
		Method:    http.MethodPost,
		Path:      "/auth/logout",
		Body:      map[string]string{"refreshToken": pair.RefreshToken},
		Token:     pair.AccessToken,
		Anonymous: pair.AccessToken == "",
	}
	if err := c.gw.Do(ctx, req, nil); err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Me fetches the current principal with the stored credentials.
func (c *AuthClient) Me(ctx context.Context) (model.Principal, error) {
	return c.me(ctx, "")
}

// MeWithToken fetches the principal for a freshly issued access token that
// has not been stored yet.
func (c *AuthClient) MeWithToken(ctx context.Context, accessToken string) (model.Principal, error) {
	return c.me(ctx, accessToken)
}

func (c *AuthClient) me(ctx context.Context, token string) (model.Principal, error) {
	var env userEnvelope
	err := c.gw.Do(ctx, gateway.Request{Method: http.MethodGet, Path: "/users/me", Token: token}, &env)
	if err != nil {
		return model.Principal{}, fmt.Errorf("current user: %w", err)
	}
	return env.User, nil
}
