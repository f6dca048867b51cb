package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ArowuTest/telegram-marketing-backend/internal/observability"
	"github.com/ArowuTest/telegram-marketing-backend/internal/services"
)

// SubscriberImporter upserts one subscriber row
type SubscriberImporter interface {
	Import(ctx context.Context, rec services.ImportRecord) (bool, error)
}

// Result summarises an import run
type Result struct {
	TotalRows int      `json:"totalRows"`
	Created   int      `json:"created"`
	Updated   int      `json:"updated"`
	Errors    []string `json:"errors"`
}

// CSVImporter loads subscribers from a CSV export
type CSVImporter struct {
	subscribers SubscriberImporter
	logger      *observability.Logger
}

// NewCSVImporter creates a new CSVImporter
func NewCSVImporter(subscribers SubscriberImporter, logger *observability.Logger) *CSVImporter {
	return &CSVImporter{subscribers: subscribers, logger: logger}
}

// ImportSubscribers reads rows from r and upserts each one. Bad rows are
// recorded in the result and skipped.
func (i *CSVImporter) ImportSubscribers(ctx context.Context, r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	idIdx := findColumnIndex(header, []string{"ExternalID", "Telegram ID", "User ID", "ID"})
	usernameIdx := findColumnIndex(header, []string{"Username", "User Name"})
	subscribedIdx := findColumnIndex(header, []string{"Subscribed", "Is Subscribed", "Opted In"})
	purchasesIdx := findColumnIndex(header, []string{"Total Purchases", "Purchases"})
	spentIdx := findColumnIndex(header, []string{"Total Spent", "Spent", "Amount"})

	if idIdx == -1 {
		return nil, errors.New("user id column not found in CSV")
	}

	result := &Result{Errors: []string{}}
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		result.TotalRows++
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: %v", result.TotalRows, err))
			continue
		}

		rec := services.ImportRecord{
			ExternalID: column(row, idIdx),
			Username:   strings.TrimPrefix(column(row, usernameIdx), "@"),
			Subscribed: true,
		}
		if rec.ExternalID == "" {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: No user id found", result.TotalRows))
			continue
		}
		if v := column(row, subscribedIdx); v != "" {
			rec.Subscribed = parseBool(v)
		}
		if v := column(row, purchasesIdx); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Invalid purchase count: %s", result.TotalRows, v))
				continue
			}
			rec.TotalPurchases = n
		}
		if v := column(row, spentIdx); v != "" {
			amount, err := parseAmount(v)
			if err != nil || amount < 0 {
				result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Invalid amount: %s", result.TotalRows, v))
				continue
			}
			rec.TotalSpent = amount
		}

		created, err := i.subscribers.Import(ctx, rec)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Failed to import user %s: %v", result.TotalRows, rec.ExternalID, err))
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	i.logger.Info(observability.WithFields(ctx,
		observability.Field{Key: "rows", Value: result.TotalRows},
		observability.Field{Key: "created", Value: result.Created},
		observability.Field{Key: "updated", Value: result.Updated},
		observability.Field{Key: "errors", Value: len(result.Errors)},
	), "subscriber import finished")
	return result, nil
}

// findColumnIndex returns the index of the first header matching one of names, or -1
func findColumnIndex(header []string, names []string) int {
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		for _, name := range names {
			if strings.EqualFold(h, name) {
				return i
			}
		}
	}
	return -1
}

func column(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "yes", "true", "1", "y":
		return true
	}
	return false
}

func parseAmount(v string) (float64, error) {
	v = strings.ReplaceAll(v, ",", "")
	v = strings.TrimPrefix(v, "$")
	return strconv.ParseFloat(v, 64)
}
