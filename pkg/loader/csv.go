package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"io"
	"strings"
)

// CSVToText renders every data row as one line of "column: value" pairs so
// each row reads as a self-contained statement. The first non-empty row is
// the header. Malformed rows are skipped.
func CSVToText(content []byte) ([]byte, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var (
		header []string
		out    strings.Builder
	)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil || emptyRecord(record) {
			continue
		}
		if header == nil {
			header = make([]string, len(record))
			for i, h := range record {
				header[i] = strings.TrimSpace(h)
			}
			continue
		}

		first := true
		for i, field := range record {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			if !first {
				out.WriteString("; ")
			}
			first = false
			if i < len(header) && header[i] != "" {
				out.WriteString(header[i])
				out.WriteString(": ")
			}
			out.WriteString(strings.Join(strings.Fields(field), " "))
		}
		out.WriteString(".\n")
	}

	if out.Len() == 0 {
		return nil, errors.New("CSV file is empty or contains no valid data")
	}
	return []byte(out.String()), nil
}

func emptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
