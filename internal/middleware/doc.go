// Package middleware implements the Middleware Chain (§4.4): an ordered,
// onion-style pipeline of logging, validation, rate-limiting, auth, and
// metrics middlewares that wraps every request the dispatcher handles.
package middleware
