package cmds

import (
	"fmt"

	"github.com/go-go-golems/chartchat/pkg/dataset"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func NewPagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pages",
		Short: "List the dashboard pages the assistant can answer on",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := NewApp(withoutChat())
			if err != nil {
				return err
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"page", "title", "table", "date column", "description"})
			table.SetAutoWrapText(false)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, p := range app.Catalog.Pages {
				table.Append([]string{p.Key, p.Title, p.Table, p.DateColumn, p.Description})
			}
			table.Render()
			return nil
		},
	}
}

func NewSummarizeCommand() *cobra.Command {
	var page string
	cmd := &cobra.Command{
		Use:   "summarize [page]",
		Short: "Print the data summary the model sees for a page",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := requirePage(args, page)
			if err != nil {
				return err
			}
			app, err := NewApp(withoutChat())
			if err != nil {
				return err
			}
			p, _, ds, err := app.LoadPage(cmd.Context(), key)
			if err != nil {
				return err
			}
			if p.Description != "" {
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Page: %s\n\n", p.Description)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), dataset.Summarize(ds, p.Key))
			return nil
		},
	}
	cmd.Flags().StringVarP(&page, "page", "p", "", "Page key")
	return cmd
}
