// Package httputil provides the request parsing, response writing and
// middleware shared by the billing HTTP API.
//
// Errors are written as
//
//	{"error": "human readable", "kind": "budget_exceeded", "details": {"remaining": "4000.00"}}
//
// where kind is stable across releases.
//
// Middleware is composed with Chain, outermost first:
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.LoggingMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
