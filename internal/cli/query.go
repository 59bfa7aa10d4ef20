package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ad/personsearch/internal/models"
)

func newQueryCmd() *cobra.Command {
	var (
		page         int
		leftMostPage int
		output       string
	)

	cmd := &cobra.Command{
		Use:   "query [text...]",
		Short: "Run a paged search and print one page of results",
		Long:  "query runs a full-text search. An empty query or * matches every document.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if page < 0 || leftMostPage < 0 {
				return fmt.Errorf("page and left-most-page must not be negative")
			}

			provider, client, err := newProvider()
			if err != nil {
				return err
			}
			defer client.Close()

			data, err := provider.RunQuery(cmd.Context(), strings.Join(args, " "), page, leftMostPage)
			if err != nil {
				return err
			}
			return printSearchData(cmd.OutOrStdout(), data, output)
		},
	}

	cmd.Flags().IntVar(&page, "page", 0, "0-based page to fetch")
	cmd.Flags().IntVar(&leftMostPage, "left-most-page", 0, "Window start shown for the previous page")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")

	return cmd
}

// printSearchData writes data to w in the requested format
func printSearchData(w io.Writer, data *models.SearchData, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	fmt.Fprintf(w, "%d results for %q\n", data.TotalCount, data.SearchText)
	for _, hit := range data.Results {
		if hit.Document == nil {
			continue
		}
		d := hit.Document
		name := strings.TrimSpace(d.Name + " " + d.FamilyName)
		fmt.Fprintf(w, "  [%d] %s", d.ID, name)
		if d.CityCountry != "" {
			fmt.Fprintf(w, " (%s)", d.CityCountry)
		}
		if d.Mvp {
			fmt.Fprint(w, " MVP")
		}
		fmt.Fprintln(w)
	}

	if data.PageCount == 0 {
		return nil
	}

	labels := make([]string, 0, len(data.Pages))
	for _, p := range data.Pages {
		if p == data.CurrentPage {
			labels = append(labels, fmt.Sprintf("[%d]", p+1))
		} else {
			labels = append(labels, fmt.Sprintf("%d", p+1))
		}
	}
	if data.HasPrevious {
		labels = append([]string{"<"}, labels...)
	}
	if data.HasNext {
		labels = append(labels, ">")
	}
	fmt.Fprintf(w, "Page %d of %d  pages: %s  (next --left-most-page=%d)\n",
		data.CurrentPage+1, data.PageCount, strings.Join(labels, " "), data.LeftMostPage)
	return nil
}
