package command

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tingly-dev/nodepack/internal/archive"
	"github.com/tingly-dev/nodepack/internal/export"
)

// ExportCommand exports a content subtree to a file or stdout
func ExportCommand(appManager *AppManager) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <path>",
		Short: "Export a content subtree to an archive",
		Long: `Export the node at <path> and its descendants from the content store.
The archive is written as JSONL (default), zstd compressed JSONL, or a single
Base64 line for easy copy-paste.

Examples:
  # Export a page with all descendants
  nodepack export /content/page --output page.nodepack.jsonl

  # Export only the node itself, re-rooted under /backup
  nodepack export /content/page --node-only --mount-path /backup/page

  # Compressed export to stdout
  nodepack export /content --format zstd > content.nodepack.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(cmd.Context(), appManager, cmd, args[0])
		},
	}

	cmd.Flags().String("mount-path", "", "Archive path prefix (default: the exported path)")
	cmd.Flags().Bool("node-only", false, "Export the node without its descendants")
	cmd.Flags().String("group", "", "Package group (default: from config)")
	cmd.Flags().String("name", "", "Package name (default: from config)")
	cmd.Flags().StringArray("exclude", nil, "Absolute doublestar pattern of paths to skip, repeatable")
	cmd.Flags().String("format", "jsonl", "Archive format: jsonl, zstd or base64")
	cmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")

	return cmd
}

func runExport(ctx context.Context, appManager *AppManager, cmd *cobra.Command, p string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	flags := cmd.Flags()
	formatStr, _ := flags.GetString("format")
	format, err := archive.ParseFormat(formatStr)
	if err != nil {
		return err
	}

	settings := appManager.Config().Settings()
	opts := export.Options{
		Group:  settings.DefaultGroup,
		Name:   settings.DefaultName,
		Format: format,
	}
	opts.MountPath, _ = flags.GetString("mount-path")
	opts.NodeOnly, _ = flags.GetBool("node-only")
	opts.Exclude, _ = flags.GetStringArray("exclude")
	if flags.Changed("group") {
		opts.Group, _ = flags.GetString("group")
	}
	if flags.Changed("name") {
		opts.Name, _ = flags.GetString("name")
	}

	exporter, err := appManager.Exporter()
	if err != nil {
		return err
	}

	// validate first so a missing node leaves no empty output file behind
	node, err := exporter.Validate(ctx, p)
	if err != nil {
		return err
	}

	outputFile, _ := flags.GetString("output")
	var out io.Writer = cmd.OutOrStdout()
	if outputFile != "" {
		f, err := os.Create(outputFile)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}

	result, err := exporter.ExportNode(ctx, node, opts, out)
	if err != nil {
		if outputFile != "" {
			os.Remove(outputFile)
		}
		return fmt.Errorf("export failed: %w", err)
	}

	if outputFile != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d entries (%d bytes) to %s\n", result.Entries, result.Bytes, outputFile)
	}
	return nil
}
