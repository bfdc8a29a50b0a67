package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tingly-dev/nodepack/internal/repo"
)

// ContentCommand groups the content store maintenance commands
func ContentCommand(appManager *AppManager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "content",
		Short: "Manage the local content store",
	}
	cmd.AddCommand(contentLoadCommand(appManager))
	cmd.AddCommand(contentListCommand(appManager))
	return cmd
}

func contentLoadCommand(appManager *AppManager) *cobra.Command {
	return &cobra.Command{
		Use:   "load <fixture.yaml>...",
		Short: "Load nodes from YAML fixture files",
		Long: `Load nodes from YAML fixture files into the content store. Missing
ancestors are created, existing nodes have their properties replaced.

Example fixture:
  nodes:
    - path: /content/page/jcr:content
      properties:
        title: Home
        tags: [a, b]
        published: 2024-01-02T03:04:05Z
        logo: {type: Binary, file: logo.png}`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := appManager.Store()
			if err != nil {
				return err
			}
			for _, file := range args {
				n, err := repo.LoadFixtureFile(cmd.Context(), store, file)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✓ Loaded %d nodes from %s\n", n, file)
			}
			return nil
		},
	}
}

func contentListCommand(appManager *AppManager) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List the children of a node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := "/"
			if len(args) == 1 {
				p = args[0]
			}
			store, err := appManager.Store()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			node, err := store.Resolve(ctx, p)
			if err != nil {
				return err
			}
			if repo.IsNonExisting(node) {
				return fmt.Errorf("node %s not found", p)
			}
			children, err := store.Children(ctx, node)
			if err != nil {
				return err
			}
			for _, c := range children {
				props, err := store.Properties(ctx, c)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d properties\n", c.Path, len(props))
			}
			return nil
		},
	}
}
