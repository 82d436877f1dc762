package importer

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// emitFunc receives each parsed record. Returning an error aborts the read.
type emitFunc func(Record) error

// readJSONArray streams a top-level JSON array of company objects, decoding
// one element at a time so arbitrarily large exports never load whole.
func readJSONArray(ctx context.Context, r io.Reader, emit emitFunc) error {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return eris.Wrap(err, "importer: read opening token")
	}
	delim, ok := tok.(json.Delim)
	if !ok || delim != '[' {
		return eris.Errorf("importer: expected JSON array, got %v", tok)
	}

	for decoder.More() {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "importer: context cancelled")
		}
		var rec Record
		if err := decoder.Decode(&rec); err != nil {
			return eris.Wrap(err, "importer: decode element")
		}
		if err := emit(rec); err != nil {
			return err
		}
	}

	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return eris.Wrap(err, "importer: read closing token")
	}
	return nil
}

// readJSONL streams newline-delimited JSON, one company object per line.
// Blank lines are skipped.
func readJSONL(ctx context.Context, r io.Reader, emit emitFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "importer: context cancelled")
		}
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return eris.Wrapf(err, "importer: decode line %d", line)
		}
		if err := emit(rec); err != nil {
			return err
		}
	}
	return eris.Wrap(scanner.Err(), "importer: scan lines")
}

// readCSV streams a CSV export. The first row is the header and maps columns
// onto record fields through the alias table; unrecognized columns are
// ignored.
func readCSV(ctx context.Context, r io.Reader, emit emitFunc) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // allow variable fields
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return eris.Wrap(err, "importer: read csv header")
	}
	idx := headerIndex(header)
	if len(idx) == 0 {
		return eris.New("importer: csv header has no recognized columns")
	}

	for {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "importer: context cancelled")
		}
		row, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrap(err, "importer: read csv row")
		}
		for i, field := range row {
			row[i] = strings.TrimSpace(field)
		}
		if err := emit(recordFromRow(idx, row)); err != nil {
			return err
		}
	}
}

// readXLSX reads the first sheet of a workbook. The first row is the header,
// mapped the same way as CSV.
func readXLSX(ctx context.Context, path string, emit emitFunc) error {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return eris.Wrap(err, "importer: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return eris.New("importer: xlsx has no sheets")
	}
	sheet := f.Sheets[0]

	var idx map[int]string
	for i, row := range sheet.Rows {
		if ctx.Err() != nil {
			return eris.Wrap(ctx.Err(), "importer: context cancelled")
		}
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = strings.TrimSpace(cell.String())
		}
		if i == 0 {
			idx = headerIndex(cells)
			if len(idx) == 0 {
				return eris.New("importer: xlsx header has no recognized columns")
			}
			continue
		}
		if err := emit(recordFromRow(idx, cells)); err != nil {
			return err
		}
	}
	return nil
}
