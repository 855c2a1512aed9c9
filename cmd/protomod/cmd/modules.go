package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/dbsmedya/protomod"
)

var modulesCmd = &cobra.Command{
	Use:   "modules FILE...",
	Short: "Compile schemas as modules and list their contents",
	Long: `Modules compiles every file on its own, materializes one module per file
and lists what each module binds: messages, enums, extensions and services.

Modules are named after the file stem plus the configured suffix.

Example:
  protomod modules acme/orders.proto acme/billing.proto`,
	Args: cobra.MinimumNArgs(1),
	RunE: runModules,
}

func init() {
	rootCmd.AddCommand(modulesCmd)
}

func runModules(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	s, log, err := newSession(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	mods, err := s.CompileAsModules(setupSignalHandler(), args)
	if err != nil {
		return reportCompileError(err)
	}

	names := make([]string, 0, len(mods))
	for name := range mods {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		if i > 0 {
			fmt.Fprintln(outputWriter)
		}
		printModule(name, mods[name])
	}
	return nil
}

func printModule(name string, m *protomod.Module) {
	fmt.Fprintf(outputWriter, "%s (%s)\n", color.Bold.Sprint(name), m.Identity)
	if m.StubOnly {
		fmt.Fprintln(outputWriter, "  stub only")
		return
	}
	printNames("messages", m.MessageNames())
	printNames("enums", m.EnumNames())
	printNames("extensions", m.ExtensionNames())
	printNames("services", m.ServiceNames())

	if len(m.Deps) > 0 {
		deps := make([]string, len(m.Deps))
		for i, d := range m.Deps {
			deps[i] = d.Identity
		}
		printNames("imports", deps)
	}
}

func printNames(kind string, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintf(outputWriter, "  %-11s %s\n", kind+":", strings.Join(names, ", "))
}
