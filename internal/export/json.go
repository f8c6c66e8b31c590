package export

import (
	"encoding/json"
	"io"

	"github.com/JakeFAU/ripples/internal/crawler"
)

type jsonGraph struct {
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

type jsonNode struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	State string `json:"state,omitempty"`
	Depth int    `json:"depth"`
}

type jsonEdge struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// WriteJSON renders g as {"nodes":[...],"edges":[...]}. Node ids are the
// graph's NodeRefs.
func WriteJSON(w io.Writer, g *crawler.Graph, opts Options) error {
	nodes := g.Nodes()
	edges := g.Edges()
	out := jsonGraph{
		Nodes: make([]jsonNode, 0, len(nodes)),
		Edges: make([]jsonEdge, 0, len(edges)),
	}
	for _, n := range nodes {
		jn := jsonNode{ID: int(n.Ref), URL: n.URL.String(), Depth: n.Depth}
		if opts.IncludeState {
			jn.State = n.State.String()
		}
		out.Nodes = append(out.Nodes, jn)
	}
	for _, e := range edges {
		out.Edges = append(out.Edges, jsonEdge{From: int(e.From), To: int(e.To)})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
