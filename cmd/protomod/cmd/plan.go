package cmd

import (
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/protomod"
	"github.com/dbsmedya/protomod/internal/graph"
)

var planModule string

var planCmd = &cobra.Command{
	Use:   "plan FILE...",
	Short: "Show the materialization plan for compiled schemas",
	Long: `Plan compiles the given files with their imports, registers them and
shows how the modules would be materialized, without materializing them.

The plan shows:
  - Dependency graph (mermaid syntax)
  - Materialization order (dependencies first)
  - Per-module plan: imports, then descriptor registrations

Example:
  protomod plan -I proto acme/orders.proto --module protomod.acme.orders`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPlan,
}

func init() {
	planCmd.Flags().StringVarP(&planModule, "module", "m", "",
		"Only show the plan for this module identity")

	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Compiler.IncludeImports = true

	s, log, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx := setupSignalHandler()
	bin, err := s.CompileBin(ctx, args)
	if err != nil {
		return reportCompileError(err)
	}
	if _, err := s.LoadDescriptorSet(ctx, bin); err != nil {
		return err
	}

	g, err := s.Graph()
	if err != nil {
		return fmt.Errorf("failed to build dependency graph: %w", err)
	}

	identities := s.Identities()
	if planModule != "" {
		if !g.HasNode(planModule) || g.GetNode(planModule).WellKnown {
			return fmt.Errorf("module %q is not registered", planModule)
		}
		identities = []string{planModule}
	}

	printHeader("Dependency Graph")
	fmt.Fprintln(outputWriter)
	fmt.Fprint(outputWriter, generateMermaidSyntax(g))

	order, err := g.MaterializeOrder()
	if err != nil {
		return fmt.Errorf("failed to generate materialization order: %w", err)
	}

	fmt.Fprintln(outputWriter)
	printSection("Materialization Order (dependencies first)")
	for i, id := range order {
		printOrderItem(i+1, id, g.GetNode(id))
	}

	for _, id := range identities {
		if err := printModulePlan(s, id); err != nil {
			return err
		}
	}
	return nil
}

func printModulePlan(s *protomod.Session, identity string) error {
	text, err := s.Plan(identity)
	if err != nil {
		return err
	}
	fmt.Fprintln(outputWriter)
	printSection("Plan: " + identity)
	for _, line := range strings.Split(strings.TrimRight(text, "\n"), "\n") {
		fmt.Fprintf(outputWriter, "  %s\n", line)
	}
	return nil
}

// printHeader prints a formatted header
func printHeader(format string, args ...interface{}) {
	title := fmt.Sprintf(format, args...)
	width := len(title) + 4
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
	fmt.Fprintf(outputWriter, "  %s\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("=", width))
}

// printSection prints a section header
func printSection(title string) {
	fmt.Fprintf(outputWriter, "[%s]\n", title)
	fmt.Fprintln(outputWriter, strings.Repeat("-", len(title)+2))
}

// printOrderItem prints a module in the materialization order list
func printOrderItem(num int, identity string, node *graph.Node) {
	numStr := fmt.Sprintf("[%d]", num)

	switch {
	case node == nil:
		fmt.Fprintf(outputWriter, "  %s %s\n", numStr, identity)
	case node.WellKnown:
		fmt.Fprintf(outputWriter, "  %s %s (well-known: %s)\n", numStr, identity, node.File)
	case node.Missing:
		fmt.Fprintf(outputWriter, "  %s %s %s\n", numStr, identity, color.Red.Sprint("(missing)"))
	default:
		fmt.Fprintf(outputWriter, "  %s %s\n", numStr, identity)
	}
}

// generateMermaidSyntax creates mermaid graph syntax with an edge from every
// module to each module it imports.
func generateMermaidSyntax(g *graph.Graph) string {
	var sb strings.Builder

	sb.WriteString("graph TD\n")
	for _, id := range g.AllNodes() {
		node := g.GetNode(id)
		switch {
		case node.WellKnown:
			sb.WriteString(fmt.Sprintf("    %s([%s])\n", sanitizeNodeID(id), id))
		case node.Missing:
			sb.WriteString(fmt.Sprintf("    %s{{%s}}\n", sanitizeNodeID(id), id))
		default:
			sb.WriteString(fmt.Sprintf("    %s[%s]\n", sanitizeNodeID(id), id))
		}
	}
	for _, edge := range g.AllEdges() {
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeNodeID(edge.To), sanitizeNodeID(edge.From)))
	}

	return sb.String()
}

// sanitizeNodeID ensures identities are valid mermaid node IDs
func sanitizeNodeID(identity string) string {
	return strings.NewReplacer(
		".", "_",
		"/", "_",
		"-", "_",
		" ", "_",
	).Replace(identity)
}
