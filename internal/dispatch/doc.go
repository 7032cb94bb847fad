// Package dispatch implements the Request Router / Dispatcher (§4.6) and
// the Concurrency & Cancellation Controller (§4.7): built-in MCP methods,
// tool-call routing through the registry, global/per-tool/per-connection
// in-flight limits, a bounded backpressure queue, per-request deadlines,
// and cancellation propagation.
package dispatch
