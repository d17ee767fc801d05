package report

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/itohio/gosr400/pkg/reading"
)

// Column is the mean of one column of a data file.
type Column struct {
	Name string
	Mean float64
	N    int // numeric cells averaged
}

// ColumnMeans averages every column of a delimited file. A first row that is
// not numeric is taken as the header; unnamed columns are called by their
// 1-based index. Cells that are empty or not numbers are skipped.
func ColumnMeans(r io.Reader, sep rune) ([]Column, error) {
	cr := csv.NewReader(r)
	cr.Comma = sep
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var names []string
	var means []reading.RunningMean
	first := true

	for {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read data: %w", err)
		}
		if sep == reading.Space {
			record = compact(record)
		}
		if len(record) == 0 {
			continue
		}

		if first {
			first = false
			if !anyNumeric(record) {
				names = make([]string, len(record))
				for i, f := range record {
					names[i] = strings.TrimSpace(f)
				}
				continue
			}
		}

		for len(means) < len(record) {
			means = append(means, reading.RunningMean{})
		}
		for i, f := range record {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				continue
			}
			means[i].Add(v)
		}
	}

	n := max(len(names), len(means))
	out := make([]Column, n)
	for i := range out {
		out[i].Name = strconv.Itoa(i + 1)
		if i < len(names) && names[i] != "" {
			out[i].Name = names[i]
		}
		if i < len(means) {
			out[i].Mean = means[i].Mean()
			out[i].N = means[i].N()
		}
	}
	return out, nil
}

// compact drops empty fields produced by repeated spaces.
func compact(record []string) []string {
	out := record[:0]
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			out = append(out, f)
		}
	}
	return out
}

func anyNumeric(record []string) bool {
	for _, f := range record {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err == nil {
			return true
		}
	}
	return false
}
