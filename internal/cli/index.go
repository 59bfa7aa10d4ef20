package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ad/personsearch/internal/document"
	"github.com/ad/personsearch/internal/models"
)

func newCreateIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create-index",
		Short: "Create the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, client, err := newProvider()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := provider.CreateIndex(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created index %s\n", client.IndexName())
			return nil
		},
	}
}

func newDeleteIndexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-index",
		Short: "Delete the search index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, client, err := newProvider()
			if err != nil {
				return err
			}
			defer client.Close()

			if err := provider.DeleteIndex(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted index %s\n", client.IndexName())
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the index exists and how many documents it holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			provider, client, err := newProvider()
			if err != nil {
				return err
			}
			defer client.Close()

			healthy := "yes"
			if err := client.HealthCheck(cmd.Context()); err != nil {
				healthy = "no (" + err.Error() + ")"
			}

			status, err := provider.IndexStatus(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Index:     %s\n", client.IndexName())
			fmt.Fprintf(out, "  Healthy:   %s\n", healthy)
			if err != nil {
				fmt.Fprintf(out, "  Exists:    unknown (%v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "  Exists:    %v\n", status.Exists)
			fmt.Fprintf(out, "  Documents: %d\n", status.DocumentCount)
			fmt.Fprintf(out, "  Page size: %d\n", provider.PageSize())

			m := client.GetMetrics()
			cb := client.GetCircuitBreakerStats()
			fmt.Fprintf(out, "  Circuit:   %s\n", cb.State)
			fmt.Fprintf(out, "  Requests:  %d (%d errors)\n", m.RequestCount, m.ErrorCount)
			return nil
		},
	}
}

func newLoadCmd() *cobra.Command {
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "load [path...]",
		Short: "Upload documents from seed files or directories",
		Long:  "load uploads the JSON or YAML documents found at each path. With no path the configured seed directory is used.",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = []string{cfg.SeedDir}
			}

			docs, err := collectDocuments(paths)
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				return fmt.Errorf("no documents found in %v", paths)
			}

			provider, client, err := newProvider()
			if err != nil {
				return err
			}
			defer client.Close()

			start := time.Now()
			if rebuild {
				err = provider.Rebuild(cmd.Context(), docs)
			} else {
				err = provider.AddDocuments(cmd.Context(), docs)
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d documents into %s in %s\n",
				len(docs), client.IndexName(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Drop and recreate the index before loading")

	return cmd
}

// collectDocuments reads every path, treating directories as seed directories
func collectDocuments(paths []string) ([]*models.PersonCity, error) {
	var docs []*models.PersonCity
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}

		var loaded []*models.PersonCity
		if info.IsDir() {
			loaded, err = document.LoadDirectory(p, log)
		} else {
			loaded, err = document.LoadFile(p)
		}
		if err != nil {
			return nil, err
		}
		docs = append(docs, loaded...)
	}
	return docs, nil
}
