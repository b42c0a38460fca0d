// Package middleware provides the HTTP middleware that establishes who a request is for.
//
// # Middleware Components
//
// RequestID: assigns or propagates X-Request-ID and puts the logger in the context
//
//	router.Use(middleware.RequestID(logger))
//
// IdentityGate: resolves "Authorization: Bearer <token>" to an account ID
//
//	gate := middleware.NewIdentityGate(middleware.NewStaticTokens(cfg.Auth.Tokens), logger)
//	api.Use(gate.Handler)
//	// handlers read contextkeys.GetAccountID(r.Context())
//
// Missing, malformed or unknown tokens get a 401 with a {"message": ...} body. Any
// AccountResolver can back the gate; StaticTokens is the configured one.
//
// # Related Packages
//
//   - pkg/contextkeys: where the account and request IDs live
//   - pkg/httputil: recovery, logging and CORS middleware
package middleware
