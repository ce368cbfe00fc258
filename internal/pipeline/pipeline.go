// Package pipeline coordinates one sales-event ingestion cycle against the
// remote file store: fetch the existing dataset, decide whether the event is
// new, append it, persist both artifact projections and report whether the
// pointer metadata changed.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dhelos/saleshook/internal/dataset"
	"github.com/dhelos/saleshook/internal/flatten"
)

// Artifact MIME types used when uploading to the file store.
const (
	ParquetMimeType = "application/x-parquet"
	ExcelMimeType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// FileStore is the narrow remote file store contract the pipeline needs. The
// Google Drive implementation lives in internal/store.
type FileStore interface {
	// FindFile returns the id of the named file, or "" when absent.
	FindFile(ctx context.Context, name string) (string, error)

	// Download returns the file contents.
	Download(ctx context.Context, fileID string) ([]byte, error)

	// Create uploads a new file into the folder and returns its id.
	Create(ctx context.Context, name, folderID, mimeType string, data []byte) (string, error)

	// Update replaces the contents of an existing file.
	Update(ctx context.Context, fileID, mimeType string, data []byte) error
}

// Pointers is the persisted pointer metadata: the cached file ids of the two
// artifact projections. An empty id means the artifact has not been created
// yet, or that its id is not cached.
type Pointers struct {
	ParquetID string `json:"parquet_file_id"`
	ExcelID   string `json:"excel_file_id"`
}

// Settings carries the per-cycle ingestion configuration.
type Settings struct {
	// BaseName names the artifacts: <BaseName>.parquet and <BaseName>.xlsx.
	BaseName string

	// FolderID is the file store folder that newly created artifacts go to.
	FolderID string

	// SheetName is the worksheet the spreadsheet projection writes to.
	SheetName string

	// Compare configures the duplicate decision.
	Compare dataset.ComparePolicy
}

// Status is the terminal state of an ingestion cycle.
type Status string

const (
	// StatusAppended means the event was new and both artifacts were written.
	StatusAppended Status = "success"

	// StatusSkipped means the event was already stored; nothing was written.
	StatusSkipped Status = "skipped"
)

// Result reports the outcome of a successful ingestion cycle.
type Result struct {
	Status Status

	// Rows is the total row count after the cycle.
	Rows int

	// Pointers is the pointer metadata as of the end of the cycle.
	Pointers Pointers

	// PointersChanged reports whether Pointers differs from what the cycle
	// started with, either because an artifact was created or because a
	// missing id was recovered by name lookup. The caller is responsible for
	// persisting the new value.
	PointersChanged bool
}

// ErrBadPayload reports a payload that cannot be turned into a record. It is
// a client error, not a pipeline failure.
var ErrBadPayload = errors.New("bad payload")

// PersistError reports a failed artifact write. When the second artifact
// write of a cycle fails the first one is not rolled back, so the two
// projections may be out of sync until a later cycle rewrites them.
type PersistError struct {
	Artifact string
	Err      error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("failed to persist %s artifact: %v", e.Artifact, e.Err)
}

func (e *PersistError) Unwrap() error {
	return e.Err
}

// Pipeline runs ingestion cycles against a file store.
type Pipeline struct {
	store FileStore
}

// New creates a pipeline backed by the given file store.
func New(store FileStore) *Pipeline {
	return &Pipeline{store: store}
}

// Ingest runs one ingestion cycle for the given JSON payload.
//
// Pointer metadata is taken as a value and returned (possibly changed) in the
// Result; it is never mutated in place. A fetch failure of the existing
// dataset is recovered locally by starting from an empty dataset, trading a
// possible duplicate row for forward progress.
func (p *Pipeline) Ingest(ctx context.Context, payload []byte, cfg Settings, ptrs Pointers) (Result, error) {
	rec, err := flatten.FromJSON(bytes.NewReader(payload))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if rec.Len() == 0 {
		return Result{}, fmt.Errorf("%w: payload contains no fields", ErrBadPayload)
	}

	ptrs, changed := p.resolvePointers(ctx, cfg, ptrs)

	ds := p.fetchDataset(ctx, ptrs.ParquetID)

	if !ds.IsNew(rec, cfg.Compare) {
		slog.Info("Duplicate event, skipping", "rows", ds.Rows(), "compare_column", cfg.Compare.Column)
		return Result{Status: StatusSkipped, Rows: ds.Rows(), Pointers: ptrs, PointersChanged: changed}, nil
	}

	ds.Append(rec)

	ptrs, created, err := p.persistParquet(ctx, ds, cfg, ptrs)
	if err != nil {
		return Result{}, err
	}
	changed = changed || created

	ptrs, created, err = p.persistExcel(ctx, ds, cfg, ptrs)
	if err != nil {
		return Result{}, err
	}
	changed = changed || created

	slog.Info("Event appended", "rows", ds.Rows(), "parquet_id", ptrs.ParquetID, "excel_id", ptrs.ExcelID)
	return Result{
		Status:          StatusAppended,
		Rows:            ds.Rows(),
		Pointers:        ptrs,
		PointersChanged: changed,
	}, nil
}

// resolvePointers fills missing pointer ids by looking the artifacts up by
// name. A recovered id counts as a pointer change so the stale cache heals.
// Lookup failures are not fatal: the artifact is treated as absent.
func (p *Pipeline) resolvePointers(ctx context.Context, cfg Settings, ptrs Pointers) (Pointers, bool) {
	changed := false

	if ptrs.ParquetID == "" {
		id, err := p.store.FindFile(ctx, cfg.BaseName+".parquet")
		switch {
		case err != nil:
			slog.Warn("Parquet artifact lookup failed", "err", err)
		case id != "":
			ptrs.ParquetID = id
			changed = true
		}
	}
	if ptrs.ExcelID == "" {
		id, err := p.store.FindFile(ctx, cfg.BaseName+".xlsx")
		switch {
		case err != nil:
			slog.Warn("Excel artifact lookup failed", "err", err)
		case id != "":
			ptrs.ExcelID = id
			changed = true
		}
	}

	return ptrs, changed
}

// fetchDataset downloads and decodes the existing columnar artifact. Any
// failure degrades to an empty dataset: a download hiccup must not block
// ingestion, even at the risk of appending a duplicate.
func (p *Pipeline) fetchDataset(ctx context.Context, parquetID string) *dataset.Dataset {
	ds := dataset.New()
	if parquetID == "" {
		return ds
	}

	data, err := p.store.Download(ctx, parquetID)
	if err != nil {
		slog.Warn("Failed to download existing dataset, starting empty", "parquet_id", parquetID, "err", err)
		return ds
	}
	if len(data) == 0 {
		slog.Warn("Existing dataset is empty, starting empty", "parquet_id", parquetID)
		return ds
	}

	if err := ds.DecodeParquet(ctx, data); err != nil {
		slog.Warn("Failed to decode existing dataset, starting empty", "parquet_id", parquetID, "err", err)
		return dataset.New()
	}
	return ds
}

func (p *Pipeline) persistParquet(ctx context.Context, ds *dataset.Dataset, cfg Settings, ptrs Pointers) (Pointers, bool, error) {
	data, err := ds.EncodeParquet()
	if err != nil {
		return ptrs, false, &PersistError{Artifact: "parquet", Err: err}
	}

	if ptrs.ParquetID != "" {
		if err := p.store.Update(ctx, ptrs.ParquetID, ParquetMimeType, data); err != nil {
			return ptrs, false, &PersistError{Artifact: "parquet", Err: err}
		}
		return ptrs, false, nil
	}

	id, err := p.store.Create(ctx, cfg.BaseName+".parquet", cfg.FolderID, ParquetMimeType, data)
	if err != nil {
		return ptrs, false, &PersistError{Artifact: "parquet", Err: err}
	}
	ptrs.ParquetID = id
	return ptrs, true, nil
}

func (p *Pipeline) persistExcel(ctx context.Context, ds *dataset.Dataset, cfg Settings, ptrs Pointers) (Pointers, bool, error) {
	// The append path needs the current workbook. If it cannot be fetched
	// the projection is rebuilt from the full dataset instead.
	var existing []byte
	if ptrs.ExcelID != "" {
		data, err := p.store.Download(ctx, ptrs.ExcelID)
		if err != nil {
			slog.Warn("Failed to download existing workbook, rewriting it", "excel_id", ptrs.ExcelID, "err", err)
		} else {
			existing = data
		}
	}

	data, err := ds.Excel(existing, cfg.SheetName)
	if err != nil {
		return ptrs, false, &PersistError{Artifact: "excel", Err: err}
	}

	if ptrs.ExcelID != "" {
		if err := p.store.Update(ctx, ptrs.ExcelID, ExcelMimeType, data); err != nil {
			return ptrs, false, &PersistError{Artifact: "excel", Err: err}
		}
		return ptrs, false, nil
	}

	id, err := p.store.Create(ctx, cfg.BaseName+".xlsx", cfg.FolderID, ExcelMimeType, data)
	if err != nil {
		return ptrs, false, &PersistError{Artifact: "excel", Err: err}
	}
	ptrs.ExcelID = id
	return ptrs, true, nil
}
