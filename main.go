package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	configPath string
	assumeYes  bool
)

var rootCmd = &cobra.Command{
	Use:   "dbferry [config.toml]",
	Short: "Schema and data migration between PostgreSQL, MySQL and SQLite",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runCommand,
}

func init() {
	rootCmd.Flags().StringVar(&configPath, "config", "", "path to migration TOML config file")
	rootCmd.Flags().BoolVar(&assumeYes, "yes", false, "skip the destructive-action confirmation prompt")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runCommand(cmd *cobra.Command, args []string) error {
	// Resolve config path: positional arg takes precedence over --config flag
	cfgPath := configPath
	if len(args) > 0 {
		cfgPath = args[0]
	}
	if cfgPath == "" {
		return fmt.Errorf("config file required: dbferry <config.toml> or dbferry --config <config.toml>")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}
	req, err := buildRequest(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("dbferry: %s -> %s migration", sourceLabel(req.Source), req.Target.Kind)
	log.Printf("config: batch_size=%d workers=%d truncate_strings=%t exclude=%d ordered=%d",
		req.BatchSize, req.Workers, req.TruncateStrings,
		len(req.ExcludeTables), len(req.TableOrder))

	confirm := promptConfirm
	if assumeYes {
		confirm = func([]string) bool { return true }
	}

	report, err := newMigrator(req, confirm).Run(ctx)
	if report != nil {
		report.print()
	}
	if err != nil {
		return err
	}
	if report.Status == StatusAborted {
		os.Exit(2)
	}
	return nil
}

func sourceLabel(ep EndpointSpec) string {
	if ep.IsDump {
		if ep.Kind == "" {
			return "dump"
		}
		return fmt.Sprintf("%s dump", ep.Kind)
	}
	return string(ep.Kind)
}

// promptConfirm warns which target tables are about to be cleared and
// requires a literal "yes" on stdin. Anything else aborts the run before any
// write happens.
func promptConfirm(tables []string) bool {
	fmt.Printf("About to clear and repopulate %d target tables:\n", len(tables))
	for _, t := range tables {
		fmt.Printf("  %s\n", t)
	}
	fmt.Print("Existing rows in these tables will be DELETED. Type 'yes' to continue: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.TrimSpace(line) == "yes"
}
