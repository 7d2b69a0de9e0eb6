// Package cli defines the cobra commands of ocmt.
// This file contains the root command, which generates a commit message for
// the staged changes and commits it.
package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/iHildy/ocmt/internal/ui"
)

var version = "dev" // set via ldflags at build time

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	model   string
	agent   string
	debug   bool
	yes     bool
	timeout time.Duration
}

var flags globalFlags

var rootCmd = &cobra.Command{
	Use:   "ocmt",
	Short: "AI-written commit messages, branches, changelogs and pull requests",
	Long: `ocmt drives a local OpenCode server to write commit messages for staged
changes, name branches, maintain CHANGELOG.md, open pull requests and clean
AI slop out of staged edits.

Run without a subcommand to generate a commit message for the staged changes.`,
	Version:       version,
	Args:          cobra.NoArgs,
	SilenceErrors: true,
	SilenceUsage:  true,
	RunE:          runCommit,
}

// Execute runs the root command. Called from main.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		ui.Error(os.Stderr, "%v", err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.model, "model", "m", "", "Model as provider/model (overrides config and OCMT_MODEL)")
	pf.StringVar(&flags.agent, "agent", "", "OpenCode agent to run the prompt with")
	pf.BoolVar(&flags.debug, "debug", false, "Log debug output to stderr")
	pf.BoolVarP(&flags.yes, "yes", "y", false, "Accept generated results without asking")
	pf.DurationVar(&flags.timeout, "timeout", 0, "Overall deadline of one generation (e.g. 2m)")

	registerCommitFlags(rootCmd)

	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(changelogCmd)
	rootCmd.AddCommand(prCmd)
	rootCmd.AddCommand(deslopCmd)
	rootCmd.AddCommand(configCmd)
}

// printCancelled reports a declined action, which exits 0.
func printCancelled() {
	fmt.Fprintln(os.Stderr, ui.DimStyle.Render("Cancelled."))
}
