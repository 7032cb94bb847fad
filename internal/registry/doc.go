// ABOUTME: Package registry implements the tool registry (ToolModule registration, lookup).
// ABOUTME: It is the only owner of ToolModule handles; the dispatcher holds a borrowed reference.
package registry
