// Package tutorial runs the fixed create, read, update and delete sequence
// against a cookbook context and reports progress on the console.
package tutorial

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"cookbook/internal/cookbook"
	applog "cookbook/internal/log"
	"cookbook/models"
)

const dishTitle = "Breakfast Porridge"

// Result summarizes a completed run.
type Result struct {
	DishID      uint
	Matches     int
	StarsBefore *int
	StarsAfter  *int
}

// Run adds a porridge dish, reads it back, raises its stars and removes it
// again, saving after each step. Progress goes to out; the diagnostic for an
// unexpected number of matches goes to errOut.
func Run(ctx context.Context, c *cookbook.Context, out, errOut io.Writer) (Result, error) {
	var res Result
	ctx = applog.WithAttrs(ctx, "dish", dishTitle)

	fmt.Fprintln(out, "Add Porridge for breakfast")
	porridge := &models.Dish{Title: dishTitle, Notes: ptr("This is soooo goood"), Stars: ptr(4)}
	c.Dishes.Add(porridge)
	if _, err := c.SaveChanges(ctx); err != nil {
		return res, fmt.Errorf("add porridge: %w", err)
	}
	res.DishID = porridge.ID
	fmt.Fprintf(out, "Added Porridge (id = %d) successfully\n", porridge.ID)

	fmt.Fprintln(out, "Checking stars for Porridge")
	dishes, err := c.Dishes.Where(cookbook.Contains("Title", "Porridge")).ToList(ctx)
	if err != nil {
		return res, fmt.Errorf("query porridge: %w", err)
	}
	res.Matches = len(dishes)
	// Titles are not unique, so more than one match is possible.
	if len(dishes) != 1 {
		applog.Warn(ctx, "unexpected number of porridge dishes", "matches", len(dishes))
		fmt.Fprintln(errOut, "Something really bad happened. Porridge disappeared :-(")
	}
	if len(dishes) > 0 {
		res.StarsBefore = copyInt(dishes[0].Stars)
		fmt.Fprintf(out, "Porridge was %s stars\n", formatStars(dishes[0].Stars))
	}

	fmt.Fprintln(out, "Change Porridge stars to 5")
	porridge.Stars = ptr(5)
	if _, err := c.SaveChanges(ctx); err != nil {
		return res, fmt.Errorf("change stars: %w", err)
	}
	res.StarsAfter = copyInt(porridge.Stars)
	fmt.Fprintln(out, "Changed stars")

	fmt.Fprintln(out, "Removing Porridge from database")
	c.Dishes.Remove(porridge)
	if _, err := c.SaveChanges(ctx); err != nil {
		return res, fmt.Errorf("remove porridge: %w", err)
	}
	fmt.Fprintln(out, "Porridge removed")

	applog.Debug(ctx, "tutorial finished", "dish_id", res.DishID, "matches", res.Matches)
	return res, nil
}

func formatStars(stars *int) string {
	if stars == nil {
		return "no"
	}
	return strconv.Itoa(*stars)
}

func ptr[T any](v T) *T {
	return &v
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	return ptr(*v)
}
