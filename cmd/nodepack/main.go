package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/tingly-dev/nodepack/internal/command"
	"github.com/tingly-dev/nodepack/pkg/fs"
)

// Build information variables
var (
	// Set by compiler via -ldflags
	version   = "dev"
	gitCommit = "unknown"
	buildTime = "unknown"
	goVersion = "unknown"
	platform  = "unknown"
)

func newRootCmd() *cobra.Command {
	var configDir string
	appManager := &command.AppManager{}

	rootCmd := &cobra.Command{
		Use:   "nodepack",
		Short: "Nodepack - export content repository subtrees as portable archives",
		Long: `Nodepack serializes a subtree of a hierarchical content repository into a
portable archive. Archives can be produced over HTTP (nodepack serve) or
directly from the command line (nodepack export).`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "configuration directory (default: ~/.nodepack)")

	// the manager is created lazily so flags are parsed first
	manager := func(cmd *cobra.Command) error {
		dir, err := fs.ExpandConfigDir(configDir)
		if err != nil {
			return fmt.Errorf("error expanding config directory path: %w", err)
		}
		if err := appManager.Load(dir); err != nil {
			return err
		}
		appManager.SetVersion(version)

		verbose, _ := cmd.Flags().GetBool("verbose")
		return appManager.SetupLogging(verbose, cmd.Name() == "serve")
	}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "inspect" {
			verbose, _ := cmd.Flags().GetBool("verbose")
			if verbose {
				logrus.SetLevel(logrus.TraceLevel)
			}
			return nil
		}
		return manager(cmd)
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		return appManager.Close()
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Nodepack CLI\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Git Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Build Time: %s\n", buildTime)
			fmt.Fprintf(out, "Go Version: %s\n", goVersion)
			fmt.Fprintf(out, "Platform:   %s\n", platform)
		},
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(command.ServeCommand(appManager))
	rootCmd.AddCommand(command.ExportCommand(appManager))
	rootCmd.AddCommand(command.InspectCommand())
	rootCmd.AddCommand(command.ContentCommand(appManager))
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
