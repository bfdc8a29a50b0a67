package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tingly-dev/nodepack/internal/archive"
)

// InspectCommand decodes an archive and prints its manifest and entries
func InspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect [file]",
		Short: "Show the manifest and entries of an archive",
		Long: `Decode an archive in any supported format and list its contents.
If no file is given the archive is read from stdin:
  nodepack export /content/page | nodepack inspect`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open archive: %w", err)
				}
				defer f.Close()
				in = f
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			return runInspect(in, cmd.OutOrStdout(), asJSON)
		},
	}

	cmd.Flags().Bool("json", false, "Print the manifest and an entry summary as JSON lines")
	return cmd
}

type entrySummary struct {
	Path       string           `json:"path"`
	Properties int              `json:"properties"`
	Binaries   map[string]int64 `json:"binaries,omitempty"`
}

func runInspect(in io.Reader, out io.Writer, asJSON bool) error {
	rd, err := archive.NewReader(in)
	if err != nil {
		return err
	}
	defer rd.Close()

	m := rd.Manifest()
	enc := json.NewEncoder(out)
	if asJSON {
		if err := enc.Encode(m); err != nil {
			return err
		}
	} else {
		identity := "(transient export)"
		if m.Identified() {
			identity = m.Group + ":" + m.Name
		}
		fmt.Fprintf(out, "Archive:    %s %s (%s)\n", m.Format, m.Version, rd.Format())
		fmt.Fprintf(out, "ID:         %s\n", m.ID)
		fmt.Fprintf(out, "Created:    %s\n", m.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		fmt.Fprintf(out, "Package:    %s\n", identity)
		fmt.Fprintf(out, "Root:       %s\n", m.RootPath)
		fmt.Fprintf(out, "Mount:      %s\n", m.MountPath)
		fmt.Fprintf(out, "Node only:  %t\n", m.NodeOnly)
		if len(m.Exclude) > 0 {
			fmt.Fprintf(out, "Exclude:    %v\n", m.Exclude)
		}
		fmt.Fprintln(out)
	}

	count := 0
	for {
		e, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("after %d entries: %w", count, err)
		}
		count++

		sum := entrySummary{Path: e.Path, Properties: len(e.Properties)}
		if len(e.Binaries) > 0 {
			sum.Binaries = make(map[string]int64, len(e.Binaries))
			for name, data := range e.Binaries {
				sum.Binaries[name] = int64(len(data))
			}
		}
		if asJSON {
			if err := enc.Encode(sum); err != nil {
				return err
			}
			continue
		}
		fmt.Fprintf(out, "%s (%d properties", sum.Path, sum.Properties)
		for _, name := range sortedKeys(sum.Binaries) {
			fmt.Fprintf(out, ", %s: %d bytes", name, sum.Binaries[name])
		}
		fmt.Fprintln(out, ")")
	}

	if !asJSON {
		fmt.Fprintf(out, "\n%d node entries\n", count)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
