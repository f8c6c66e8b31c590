package export

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/JakeFAU/ripples/internal/crawler"
)

// stateColors keeps the rendered graph readable at a glance.
var stateColors = map[crawler.CrawlState]string{
	crawler.StateUncrawled:   "gray",
	crawler.StateInProgress:  "orange",
	crawler.StateComplete:    "black",
	crawler.StateUnreachable: "red",
}

// WriteDOT renders g as a Graphviz digraph. Nodes are emitted in creation
// order and edges in insertion order, so output is stable for a given graph.
func WriteDOT(w io.Writer, g *crawler.Graph, opts Options) error {
	bw := bufio.NewWriter(w)
	nodes := g.Nodes()

	fmt.Fprintln(bw, "digraph ripples {")
	fmt.Fprintln(bw, "  node [shape=box];")

	if opts.ClusterBySite {
		sites, bySite := groupBySite(nodes)
		for i, site := range sites {
			fmt.Fprintf(bw, "  subgraph cluster_%d {\n", i)
			fmt.Fprintf(bw, "    label=%s;\n", strconv.Quote(site))
			for _, n := range bySite[site] {
				writeDOTNode(bw, "    ", n, opts)
			}
			fmt.Fprintln(bw, "  }")
		}
	} else {
		for _, n := range nodes {
			writeDOTNode(bw, "  ", n, opts)
		}
	}

	for _, e := range g.Edges() {
		fmt.Fprintf(bw, "  %d -> %d;\n", e.From, e.To)
	}
	fmt.Fprintln(bw, "}")
	return bw.Flush()
}

func writeDOTNode(w io.Writer, indent string, n crawler.Node, opts Options) {
	label := escapeDOT(n.URL.String())
	attrs := ""
	if opts.IncludeState {
		label += `\n` + n.State.String()
		attrs = ", color=" + stateColors[n.State]
	}
	fmt.Fprintf(w, "%s%d [label=\"%s\"%s];\n", indent, n.Ref, label, attrs)
}

var dotEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", " ", "\r", " ")

// escapeDOT escapes characters that would terminate a quoted DOT string.
func escapeDOT(s string) string {
	return dotEscaper.Replace(s)
}

func groupBySite(nodes []crawler.Node) ([]string, map[string][]crawler.Node) {
	bySite := make(map[string][]crawler.Node)
	for _, n := range nodes {
		site := crawler.RegistrableDomain(n.URL.String())
		bySite[site] = append(bySite[site], n)
	}
	sites := make([]string, 0, len(bySite))
	for site := range bySite {
		sites = append(sites, site)
	}
	sort.Strings(sites)
	return sites, bySite
}
