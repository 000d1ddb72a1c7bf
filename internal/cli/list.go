package cli

import (
	"fmt"
	"io"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cookbook/internal/cookbook"
	"cookbook/models"
)

func newListCommand() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dishes with their ingredient count",
		Example: `  # Every dish in the seeded mock database
  cookbook list --mock

  # Dishes whose title contains "Soup"
  cookbook list --title Soup`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, title)
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "only dishes whose title contains this text")

	return cmd
}

func runList(cmd *cobra.Command, title string) error {
	ctx := cmd.Context()
	c, err := newFactory(cmd).CreateContext(ctx, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	q := c.Dishes.Query().Include("Ingredients").OrderBy("Title").AsNoTracking()
	if title != "" {
		q = q.Where(cookbook.Contains("Title", title))
	}

	dishes, err := q.ToList(ctx)
	if err != nil {
		return err
	}
	renderDishes(cmd.OutOrStdout(), dishes)
	return nil
}

func renderDishes(w io.Writer, dishes []*models.Dish) {
	if len(dishes) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Title", "Stars", "Ingredients", "Notes"})

	for _, d := range dishes {
		stars := "-"
		if d.Stars != nil {
			stars = strconv.Itoa(*d.Stars)
		}
		notes := ""
		if d.Notes != nil {
			notes = *d.Notes
		}
		t.AppendRow(table.Row{d.ID, d.Title, stars, len(d.Ingredients), notes})
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(dishes))
}
