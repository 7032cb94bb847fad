// Package frame implements the JSON-RPC 2.0 Frame Codec (§4.1): decoding
// wire bytes into Requests, Notifications, Responses and Batches, and
// encoding the reverse. It owns the canonical error-code table (§4.8) used
// to shape every failure the dispatcher produces into a Response.
package frame
