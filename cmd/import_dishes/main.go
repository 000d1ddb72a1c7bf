package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"syscall"

	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"gorm.io/gorm"

	"cookbook/internal/cookbook"
	applog "cookbook/internal/log"
	"cookbook/models"
)

var (
	numberPattern   = regexp.MustCompile(`[-+]?\d*\.?\d+`)
	cleanWhitespace = regexp.MustCompile(`\s+`)
)

var createContext = func(ctx context.Context, flags *pflag.FlagSet, migrate bool) (*cookbook.Context, error) {
	return cookbook.NewFactory(cookbook.WithFlags(flags), cookbook.WithMigrations(migrate)).CreateContext(ctx, nil)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "import failed: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("import_dishes", pflag.ContinueOnError)
	cookbook.RegisterFlags(fs)
	migrate := fs.Bool("migrate", false, "apply pending schema migrations first")
	if err := fs.Parse(args); err != nil {
		return err
	}

	csvPath := "dishes.csv"
	if fs.NArg() > 0 {
		csvPath = fs.Arg(0)
	}
	if strings.TrimSpace(csvPath) == "" {
		return fmt.Errorf("csv path must not be empty")
	}
	if _, err := os.Stat(csvPath); err != nil {
		return fmt.Errorf("locate csv: %w", err)
	}

	records, err := readCSV(csvPath)
	if err != nil {
		return fmt.Errorf("read csv: %w", err)
	}

	c, err := createContext(ctx, fs, *migrate)
	if err != nil {
		return err
	}
	defer c.Close()

	imported := 0
	for idx, group := range groupByDish(records) {
		if err := importDish(ctx, c, group); err != nil {
			return fmt.Errorf("dish %d (%s): %w", idx+1, group.title, err)
		}
		imported++
	}

	fmt.Fprintf(out, "Imported %d dishes from %s\n", imported, filepath.Base(csvPath))
	return nil
}

type dishRows struct {
	title   string
	records []map[string]string
}

// groupByDish collects consecutive and scattered rows of the same dish,
// keeping the order in which dishes first appear.
func groupByDish(records []map[string]string) []*dishRows {
	var groups []*dishRows
	index := map[string]*dishRows{}
	for _, record := range records {
		title := normalizeText(record["Dish"])
		if title == "" {
			continue
		}
		key := strings.ToLower(title)
		group, ok := index[key]
		if !ok {
			group = &dishRows{title: title}
			index[key] = group
			groups = append(groups, group)
		}
		group.records = append(group.records, record)
	}
	return groups
}

func importDish(ctx context.Context, c *cookbook.Context, group *dishRows) error {
	dish, err := c.Dishes.Where(cookbook.Eq("Title", group.title)).First(ctx)
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("find dish: %w", err)
	}
	if !found {
		dish = &models.Dish{Title: group.title}
	}

	for _, record := range group.records {
		if stars := parseStars(record["Stars"]); stars != nil {
			dish.Stars = stars
		}
		if notes := normalizeText(record["Notes"]); notes != "" {
			dish.Notes = &notes
		}
	}

	existing := map[string]*models.DishIngredient{}
	var added []*models.DishIngredient
	if found {
		current, err := c.Ingredients.Where(cookbook.Eq("DishID", dish.ID)).ToList(ctx)
		if err != nil {
			return fmt.Errorf("load ingredients: %w", err)
		}
		for _, ingredient := range current {
			existing[strings.ToLower(ingredient.Description)] = ingredient
		}
	}

	for _, record := range group.records {
		description := normalizeText(record["Ingredient"])
		if description == "" {
			continue
		}
		amount, err := parseAmount(record["Amount"])
		if err != nil {
			return fmt.Errorf("amount of %q: %w", description, err)
		}
		unit := normalizeValue(record["Unit"])

		if ingredient, ok := existing[strings.ToLower(description)]; ok {
			ingredient.Amount = amount
			ingredient.UnitOfMeasure = unit
			continue
		}

		ingredient := &models.DishIngredient{Description: description, UnitOfMeasure: unit, Amount: amount}
		existing[strings.ToLower(description)] = ingredient
		added = append(added, ingredient)
	}

	if found {
		for _, ingredient := range added {
			ingredient.DishID = dish.ID
			c.Ingredients.Add(ingredient)
		}
	} else {
		for _, ingredient := range added {
			dish.Ingredients = append(dish.Ingredients, *ingredient)
		}
		c.Dishes.Add(dish)
	}

	n, err := c.SaveChanges(ctx)
	if err != nil {
		return err
	}
	applog.Debug(ctx, "dish imported", "title", dish.Title, "id", dish.ID, "created", !found, "written", n)
	return nil
}

func readCSV(path string) ([]map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, errors.New("csv is empty")
	}

	header := rows[0]
	records := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) == 0 {
			continue
		}

		record := make(map[string]string, len(header))
		for idx, key := range header {
			if idx >= len(row) {
				continue
			}
			record[strings.TrimSpace(key)] = strings.TrimSpace(row[idx])
		}
		records = append(records, record)
	}

	return records, nil
}

func normalizeValue(value string) string {
	value = strings.TrimSpace(value)
	if value == "" || strings.EqualFold(value, "N/A") {
		return ""
	}
	return value
}

func normalizeText(value string) string {
	value = normalizeValue(value)
	if value == "" {
		return value
	}
	value = cleanWhitespace.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// parseStars accepts a number ("4", "4/5") or a run of star glyphs.
func parseStars(value string) *int {
	value = normalizeValue(value)
	if value == "" {
		return nil
	}

	if glyphs := strings.Count(value, "★") + strings.Count(value, "*"); glyphs > 0 && strings.Trim(value, "★* ") == "" {
		return &glyphs
	}

	match := numberPattern.FindString(value)
	if match == "" {
		return nil
	}
	stars, err := strconv.Atoi(strings.SplitN(match, ".", 2)[0])
	if err != nil {
		return nil
	}
	return &stars
}

// parseAmount reads the first number in value, so "1,5" and "250 g" work.
func parseAmount(value string) (decimal.Decimal, error) {
	value = normalizeValue(strings.ReplaceAll(value, ",", "."))
	if value == "" {
		return decimal.Zero, nil
	}

	match := numberPattern.FindString(value)
	if match == "" {
		return decimal.Zero, fmt.Errorf("no number in %q", value)
	}
	return decimal.NewFromString(match)
}
