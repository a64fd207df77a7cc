package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/aluiziolira/crafthub-pricing/models"
	"github.com/aluiziolira/crafthub-pricing/parser"
)

// ReadProducts loads products from a .csv, .json or .jsonl file.
func ReadProducts(path string) ([]*models.Product, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return DecodeCSV(f)
	case ".json", ".jsonl", ".ndjson":
		return DecodeJSON(f)
	default:
		return nil, fmt.Errorf("unsupported input extension %q", filepath.Ext(path))
	}
}

// DecodeCSV reads rows with a header containing "name" and optionally
// "current_price". Other columns are ignored.
func DecodeCSV(r io.Reader) ([]*models.Product, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	nameCol, priceCol := -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name":
			nameCol = i
		case "current_price", "price":
			priceCol = i
		}
	}
	if nameCol < 0 {
		return nil, fmt.Errorf("csv header has no name column")
	}

	var products []*models.Product
	for line := 2; ; line++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		product := &models.Product{Name: field(record, nameCol)}
		if raw := field(record, priceCol); raw != "" {
			price, ok := parser.CoercePrice(raw)
			if !ok {
				return nil, fmt.Errorf("csv line %d: invalid current_price %q", line, raw)
			}
			product.CurrentPrice = models.Float(price)
		}
		products = append(products, product)
	}
	return products, nil
}

func field(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[col])
}

// DecodeJSON accepts either a JSON array of products or one product per line.
func DecodeJSON(r io.Reader) ([]*models.Product, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read json input: %w", err)
	}

	if first == '[' {
		var products []*models.Product
		if err := json.NewDecoder(br).Decode(&products); err != nil {
			return nil, fmt.Errorf("decode json products: %w", err)
		}
		return products, nil
	}

	var products []*models.Product
	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		var product models.Product
		if err := json.Unmarshal(data, &product); err != nil {
			return nil, fmt.Errorf("decode jsonl line %d: %w", line, err)
		}
		products = append(products, &product)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan jsonl: %w", err)
	}
	return products, nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		if err := br.UnreadByte(); err != nil {
			return 0, err
		}
		return b, nil
	}
}
