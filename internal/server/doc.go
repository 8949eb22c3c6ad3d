// Package server provides HTTP routing, middleware, and OAuth callback handling for the web shell and the CLI.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first), following the standard Go pattern.
//
// The [BasicRouter] implementation uses [http.ServeMux] method patterns ("GET /download/{file}").
//
// # Middleware
//
//   - [Logging] : one structured log line per request (method, path, status, duration)
//   - [Recover] : converts handler panics into 500 responses
//   - [SecurityHeaders] : nosniff, frame denial and referrer policy
//
// # OAuth Callback Handler
//
// [OAuthHandler] implements the callback half of the authorization-code flow for `goodhare export`.
// It validates the state parameter (CSRF protection), exchanges the code through a [CodeExchanger], and sends
// the result through a channel. It only processes one callback to prevent replay attacks.
//
// # Lifecycle
//
// [New] builds an [http.Server] with timeouts and [Run] serves it until its context is cancelled.
//
// # Handler Interface
//
// Custom handlers implement the [Handler] interface, which wraps the stdlib handler interface and adds routes,
// allowing handlers to register multiple routes to encapsulate route definitions within the implementation.
package server
