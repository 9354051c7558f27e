package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/leofalp/devforge/internal/pipeline"
	"github.com/leofalp/devforge/patterns/graph"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand(_ *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "graph",
		Short:         "Print the workflow nodes and edges",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := pipeline.New(nil).Graph()
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderGraph(g))
			return nil
		},
	}
}

func renderGraph(g *graph.Graph) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("nodes") + "\n")
	for _, n := range g.Nodes() {
		marker := " "
		if n.Name == g.Entry() {
			marker = "*"
		}
		fmt.Fprintf(&b, " %s %-9s %s\n", marker, n.Name, dimStyle.Render(n.Description))
	}

	b.WriteString("\n" + titleStyle.Render("edges") + "\n")
	for _, e := range g.Edges() {
		to := e.To
		if to == graph.End {
			to = "END"
		}
		switch e.Kind {
		case graph.EdgeBranch:
			fmt.Fprintf(&b, "   %-9s -> %-9s %s\n", e.From, to, dimStyle.Render("when "+e.When.String()))
		case graph.EdgeFallback:
			fmt.Fprintf(&b, "   %-9s -> %-9s %s\n", e.From, to, warnStyle.Render("on failure"))
		default:
			fmt.Fprintf(&b, "   %-9s -> %s\n", e.From, to)
		}
	}
	return b.String()
}
