// ABOUTME: Renders the registered tool catalog to an HTML fragment for the
// ABOUTME: optional human-facing /tools.html debug endpoint on the HTTP transport.
package docs

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"

	"github.com/2389/mcp-gateway/internal/registry"
)

// RenderCatalog converts each tool's Markdown description to HTML via
// goldmark and assembles a catalog fragment listing each tool's title
// (display name, or name when unset), version, required capabilities, and
// rendered description. This never sits on the
// JSON-RPC dispatch path — it exists purely for an operator or integrator
// browsing what a deployment exposes.
func RenderCatalog(tools []registry.ToolDefinition) (string, error) {
	var out bytes.Buffer
	out.WriteString(`<section class="tool-catalog">` + "\n")

	for _, def := range tools {
		var descHTML bytes.Buffer
		if err := goldmark.Convert([]byte(def.Description), &descHTML); err != nil {
			return "", fmt.Errorf("docs: rendering description for %q: %w", def.Name, err)
		}

		fmt.Fprintf(&out, "<article class=\"tool\" id=%q>\n", html.EscapeString(def.Name))
		fmt.Fprintf(&out, "<h3>%s</h3>\n", html.EscapeString(toolTitle(def)))
		if def.Version != "" {
			fmt.Fprintf(&out, "<p class=\"version\">v%s</p>\n", html.EscapeString(def.Version))
		}
		if len(def.Capabilities) > 0 {
			fmt.Fprintf(&out, "<p class=\"capabilities\">requires: %s</p>\n", html.EscapeString(strings.Join(def.Capabilities, ", ")))
		}
		out.Write(descHTML.Bytes())
		out.WriteString("</article>\n")
	}

	out.WriteString("</section>\n")
	return out.String(), nil
}

func toolTitle(def registry.ToolDefinition) string {
	if def.DisplayName != "" {
		return def.DisplayName
	}
	return def.Name
}
