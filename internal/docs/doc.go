// Package docs renders the registered tool catalog to HTML for an optional
// human-facing debug endpoint. It is informational only, same as the Event
// Bus: nothing here ever sits on the JSON-RPC dispatch path.
package docs
