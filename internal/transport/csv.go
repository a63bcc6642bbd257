package transport

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"price-catalog/internal/domain"
)

var exportHeader = []string{"Item", "Brand", "Price"}

// LineError points at a rejected line of a pasted price list
type LineError struct {
	Line   int
	Reason string
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

// ParsePriceLines reads "item,brand,price" lines. Fields may be separated by
// comma or tab, blank lines are skipped and any extra fields are ignored.
func ParsePriceLines(r io.Reader) ([]domain.ProductInput, error) {
	inputs := []domain.ProductInput{}
	scanner := bufio.NewScanner(r)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		fields := strings.Split(strings.ReplaceAll(text, "\t", ","), ",")
		if len(fields) < 3 {
			return nil, &LineError{Line: line, Reason: "expected item, brand and price"}
		}

		item := strings.TrimSpace(fields[0])
		brand := strings.TrimSpace(fields[1])
		if item == "" || brand == "" {
			return nil, &LineError{Line: line, Reason: "item and brand are required"}
		}

		price, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
		if err != nil || math.IsNaN(price) || math.IsInf(price, 0) {
			return nil, &LineError{Line: line, Reason: "price is not a number"}
		}

		inputs = append(inputs, domain.ProductInput{ItemName: item, BrandName: brand, Price: price})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read price lines: %w", err)
	}

	return inputs, nil
}

// WritePriceCSV writes the export with an Item,Brand,Price header
func WritePriceCSV(w io.Writer, products []*domain.Product) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(exportHeader); err != nil {
		return err
	}
	for _, p := range products {
		record := []string{p.ItemName, p.BrandName, strconv.FormatFloat(p.Price, 'f', -1, 64)}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}
