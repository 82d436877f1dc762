package importer

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/prospect-api/internal/apperr"
	"github.com/sells-group/prospect-api/internal/model"
	"github.com/sells-group/prospect-api/internal/store"
)

const defaultBatchSize = 1000

// bulkImporter is the fast path offered by the Postgres store. Stores
// without it fall back to batched InsertCompanies.
type bulkImporter interface {
	BulkImportCompanies(ctx context.Context, companies []model.Company) (int64, error)
}

// Importer loads company files into the store.
type Importer struct {
	store     store.Store
	batchSize int
}

// New creates an Importer. batchSize <= 0 selects the default of 1000.
func New(st store.Store, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Importer{store: st, batchSize: batchSize}
}

// Report summarizes one import run. Imported counts rows persisted, Skipped
// counts records rejected before insert (no name), Failed counts rows the
// store could not persist.
type Report struct {
	Total    int `json:"total"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// ImportFile imports the file at path, picking the parser from the
// extension: .json (array), .jsonl/.ndjson, .csv, .xlsx. Invalid records
// and failed rows are counted, never fatal, so one bad row does not abort a
// bulk load.
func (im *Importer) ImportFile(ctx context.Context, path string) (*Report, error) {
	report := &Report{}
	batch := make([]model.Company, 0, im.batchSize)

	emit := func(rec Record) error {
		report.Total++
		if !rec.Valid() {
			report.Skipped++
			return nil
		}
		batch = append(batch, rec.ToCompany())
		if len(batch) >= im.batchSize {
			im.flush(ctx, batch, report)
			batch = batch[:0]
		}
		return ctx.Err()
	}

	ext := strings.ToLower(filepath.Ext(path))
	var err error
	switch ext {
	case ".xlsx":
		err = readXLSX(ctx, path, emit)
	case ".json", ".jsonl", ".ndjson", ".csv":
		var f *os.File
		f, err = os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "importer: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		switch ext {
		case ".json":
			err = readJSONArray(ctx, f, emit)
		case ".csv":
			err = readCSV(ctx, f, emit)
		default:
			err = readJSONL(ctx, f, emit)
		}
	default:
		return nil, apperr.Validation("unsupported import format: " + ext)
	}
	if err != nil {
		return report, err
	}

	if len(batch) > 0 {
		im.flush(ctx, batch, report)
	}

	zap.L().Info("importer: finished",
		zap.String("file", filepath.Base(path)),
		zap.Int("total", report.Total),
		zap.Int("imported", report.Imported),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

// flush persists one batch, absorbing partial failures into the report.
func (im *Importer) flush(ctx context.Context, batch []model.Company, report *Report) {
	if bulk, ok := im.store.(bulkImporter); ok {
		n, err := bulk.BulkImportCompanies(ctx, batch)
		report.Imported += int(n)
		if err != nil {
			report.Failed += len(batch) - int(n)
			zap.L().Warn("importer: batch failed",
				zap.Int("size", len(batch)), zap.Error(err))
		}
		return
	}

	inserted, err := im.store.InsertCompanies(ctx, batch)
	report.Imported += len(inserted)
	switch {
	case err == nil:
	case apperr.IsPartialBatch(err):
		report.Failed += len(batch) - len(inserted)
		zap.L().Warn("importer: batch partially failed",
			zap.Int("size", len(batch)),
			zap.Int("inserted", len(inserted)),
			zap.Error(err))
	default:
		report.Failed += len(batch) - len(inserted)
		zap.L().Warn("importer: batch failed",
			zap.Int("size", len(batch)), zap.Error(err))
	}
}
