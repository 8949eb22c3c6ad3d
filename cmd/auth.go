package main

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/goodhare/goodhare/internal/server"
	"github.com/goodhare/goodhare/internal/services"
	"github.com/goodhare/goodhare/internal/shared"
	"golang.org/x/oauth2"
)

// loginTimeout bounds how long the CLI waits for the browser to come back.
const loginTimeout = 2 * time.Minute

// callbackAddr returns the listen address for the local callback server named by redirectURI.
func callbackAddr(redirectURI string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", fmt.Errorf("%w: redirect_uri %q", shared.ErrInvalidConfig, redirectURI)
	}
	if u.Scheme != "http" {
		return "", fmt.Errorf("%w: redirect_uri must use http for the local callback, got %q", shared.ErrInvalidConfig, redirectURI)
	}
	if u.Path != "/callback" {
		return "", fmt.Errorf("%w: redirect_uri path must be /callback, got %q", shared.ErrInvalidConfig, u.Path)
	}

	port := u.Port()
	if port == "" {
		port = "80"
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// login runs the authorization-code flow against a short-lived local callback server.
//
// The browser is opened on the authorization URL; when that fails (or noBrowser is set) the URL is printed.
func (r *Runner) login(ctx context.Context, config *shared.Config, auth services.Authenticator, noBrowser bool) (*oauth2.Token, error) {
	addr, err := callbackAddr(config.Credentials.Spotify.RedirectURI)
	if err != nil {
		return nil, err
	}

	state, err := shared.GenerateState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate state token: %w", err)
	}

	handler := server.NewOAuthHandler(auth, state)
	router := server.NewBasicRouter()
	router.Use(server.Recover(r.logger))
	router.Handler(handler)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	serverCtx, stop := context.WithCancel(ctx)
	defer stop()

	done := make(chan error, 1)
	go func() {
		done <- server.Run(serverCtx, server.New(router, server.Options{Addr: addr}), ln, r.logger)
	}()

	authURL := auth.AuthURL(state)
	if noBrowser {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for Spotify authorization...\n")
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warn("failed to open browser automatically", "error", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", loginTimeout)
	token, err := handler.Wait(ctx, loginTimeout)

	stop()
	if serverErr := <-done; serverErr != nil {
		r.logger.Warn("callback server error", "error", serverErr)
	}

	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}
	r.writePlain("✓ Authorization successful\n")
	return token, nil
}
