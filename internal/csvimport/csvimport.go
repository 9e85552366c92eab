// Package csvimport turns an operator spreadsheet into post intents.
package csvimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/samber/lo"
)

var ErrMissingColumn = errors.New("csv is missing a required column")

var columnAliases = map[string]string{
	"image url":     "image",
	"imageurl":      "image",
	"image_url":     "image",
	"caption":       "caption",
	"schedule date": "date",
	"scheduledate":  "date",
	"schedule_date": "date",
}

// Parse reads intents from r. Dates that cannot be parsed fall back to now;
// rows without an image URL are dropped.
func Parse(r io.Reader, loc *time.Location, now time.Time) ([]models.PostIntent, error) {
	if loc == nil {
		loc = time.Local
	}

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if key, ok := columnAliases[h]; ok {
			cols[key] = i
		}
	}
	if _, ok := cols["image"]; !ok {
		return nil, fmt.Errorf("%w: image url", ErrMissingColumn)
	}

	var intents []models.PostIntent
	line := 1
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		intent := models.PostIntent{
			ImageURL:    field(row, cols, "image"),
			Caption:     field(row, cols, "caption"),
			RequestedAt: parseDate(field(row, cols, "date"), loc, now, line),
		}
		intents = append(intents, intent)
	}

	return lo.Filter(intents, func(p models.PostIntent, _ int) bool {
		return p.ImageURL != ""
	}), nil
}

func field(row []string, cols map[string]int, key string) string {
	i, ok := cols[key]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseDate(s string, loc *time.Location, now time.Time, line int) time.Time {
	if s == "" {
		return now
	}
	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		slog.Warn("unparseable schedule date, using now", "line", line, "value", s)
		return now
	}
	return t
}
