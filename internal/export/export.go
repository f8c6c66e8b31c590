// Package export renders a crawl graph into formats consumed by downstream
// visualization tools.
package export

import (
	"fmt"
	"io"
	"strings"

	"github.com/JakeFAU/ripples/internal/crawler"
)

// Supported output formats.
const (
	FormatDOT  = "dot"
	FormatJSON = "json"
)

// Options tunes the rendered output.
type Options struct {
	// IncludeState adds each node's crawl state to its label or record.
	IncludeState bool
	// ClusterBySite groups DOT nodes into one subgraph per registrable domain.
	ClusterBySite bool
}

// Render writes g to w in the requested format.
func Render(w io.Writer, g *crawler.Graph, format string, opts Options) error {
	if g == nil {
		return fmt.Errorf("graph is required")
	}
	switch strings.ToLower(format) {
	case FormatDOT:
		return WriteDOT(w, g, opts)
	case FormatJSON:
		return WriteJSON(w, g, opts)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ContentType returns the media type for format.
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case FormatJSON:
		return "application/json"
	case FormatDOT:
		return "text/vnd.graphviz"
	default:
		return "application/octet-stream"
	}
}
