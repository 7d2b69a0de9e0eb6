// config.go implements "ocmt config init" and "ocmt config show".
package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iHildy/ocmt/internal/config"
	"github.com/iHildy/ocmt/internal/git"
	"github.com/iHildy/ocmt/internal/ui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create or inspect ocmt configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write the default configuration to .ocmt/config.yaml in the current
repository, or with --global to the user config file.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configOpts struct {
	global bool
	force  bool
}

func init() {
	configInitCmd.Flags().BoolVar(&configOpts.global, "global", false, "Write the user config instead of the repository config")
	configInitCmd.Flags().BoolVar(&configOpts.force, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	var path string
	if configOpts.global {
		p, err := config.UserPath()
		if err != nil {
			return err
		}
		path = p
	} else {
		root, err := repoRoot(cmd)
		if err != nil {
			return err
		}
		path = config.RepoPath(root)
	}

	if _, err := os.Stat(path); err == nil && !configOpts.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.WriteFile(path, config.DefaultConfig()); err != nil {
		return err
	}
	ui.Success(cmd.ErrOrStderr(), "Wrote %s", path)
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Outside a repository only the user file and environment apply.
	root, err := repoRoot(cmd)
	if err != nil {
		root = ""
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	applyFlags(cfg)

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func repoRoot(cmd *cobra.Command) (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting working directory: %w", err)
	}
	repo, err := git.Open(cmd.Context(), wd)
	if err != nil {
		return "", err
	}
	return filepath.Clean(repo.Dir), nil
}
