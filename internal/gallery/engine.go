package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/opencanvas/canvas-core/internal/canvas"
	"github.com/opencanvas/canvas-core/internal/infrastructure/config"
	"github.com/opencanvas/canvas-core/internal/infrastructure/logging"
)

// listPageSize is the per-request page size when enumerating a device
// gallery before a sync.
const listPageSize = 100

// Request describes one gallery sync. Immutable once accepted; the
// Source is consumed during the sync and not reused.
type Request struct {
	// Source yields the media items to reconcile against the device.
	Source Source

	// Gallery is the target gallery name. Empty uses the configured
	// default.
	Gallery string

	// MaxPhotos bounds successful uploads (uploads plus overwrites),
	// not items examined. Zero uses the configured default.
	MaxPhotos int

	// Overwrite permits replacing an existing item with the same
	// content fingerprint. When false, duplicates are skipped and the
	// stored bytes are never touched.
	Overwrite bool
}

// Outcome classifies what happened to one examined item.
type Outcome string

const (
	OutcomeUploaded    Outcome = "uploaded"
	OutcomeOverwritten Outcome = "overwritten"
	OutcomeSkipped     Outcome = "skipped_duplicate"
	OutcomeFailed      Outcome = "failed"
)

// ItemRecord is the accounting entry for one examined source item.
type ItemRecord struct {
	SourceID  string  `json:"source_id"`
	Name      string  `json:"name"`
	Target    string  `json:"target,omitempty"`
	Outcome   Outcome `json:"outcome"`
	Detail    string  `json:"detail,omitempty"`
	SizeBytes int     `json:"size_bytes,omitempty"`

	// Err carries the typed failure for OutcomeFailed items.
	Err error `json:"-"`
}

// Result is the accounting for one sync run. Counts always satisfy
// Uploaded+Overwritten+SkippedDuplicate+Failed == Examined, and
// Uploaded+Overwritten never exceeds the request's MaxPhotos.
type Result struct {
	RunID      string    `json:"run_id"`
	Gallery    string    `json:"gallery"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Examined         int  `json:"examined"`
	Uploaded         int  `json:"uploaded"`
	Overwritten      int  `json:"overwritten"`
	SkippedDuplicate int  `json:"skipped_duplicate"`
	Failed           int  `json:"failed"`
	Cancelled        bool `json:"cancelled"`

	// Error describes why the run ended before the source was drained,
	// empty for a clean or merely cancelled run. The counts above are
	// still valid for the items examined before the failure.
	Error string `json:"error,omitempty"`

	Items         []ItemRecord `json:"items"`
	UploadedPaths []string     `json:"uploaded_paths,omitempty"`
}

// Failures returns the records of failed items only.
func (r *Result) Failures() []ItemRecord {
	var failures []ItemRecord
	for _, item := range r.Items {
		if item.Outcome == OutcomeFailed {
			failures = append(failures, item)
		}
	}
	return failures
}

// Progress is emitted after each examined item.
type Progress struct {
	RunID     string  `json:"run_id"`
	Gallery   string  `json:"gallery"`
	Item      string  `json:"item"`
	Outcome   Outcome `json:"outcome"`
	Detail    string  `json:"detail,omitempty"`
	Examined  int     `json:"examined"`
	Successes int     `json:"successes"`
}

// Engine reconciles a media source against a device gallery.
//
// A sync holds the session's single-operation gate for its entire run:
// uploads are strictly sequential and no other device operation can
// interleave, which keeps partial-failure accounting deterministic.
// Per-item failures are recorded and never abort the remaining items;
// the engine never re-attempts a failed item within the same run.
type Engine struct {
	session  *canvas.Session
	preparer *Preparer
	ledger   *Ledger
	cfg      config.SyncConfig
	logger   *logging.Logger

	onProgress func(Progress)
	onComplete func(*Result)
}

// NewEngine creates a sync engine. ledger may be nil to disable run
// history.
func NewEngine(session *canvas.Session, ledger *Ledger, cfg config.SyncConfig, logger *logging.Logger) *Engine {
	return &Engine{
		session:  session,
		preparer: NewPreparer(cfg.JPEGQuality),
		ledger:   ledger,
		cfg:      cfg,
		logger:   logger.With("component", "sync"),
	}
}

// SetOnProgress registers a callback invoked after every examined
// item. Set once during wiring, before the engine is used.
func (e *Engine) SetOnProgress(fn func(Progress)) {
	e.onProgress = fn
}

// SetOnComplete registers a callback invoked with the final result of
// every run, cancelled or not. Set once during wiring.
func (e *Engine) SetOnComplete(fn func(*Result)) {
	e.onComplete = fn
}

// Sync reconciles the request's source against the device gallery.
//
// Cancellation is cooperative: the context is checked between items,
// never mid-transfer, and a cancelled sync returns the partial result
// with Cancelled set rather than discarding the accounting.
func (e *Engine) Sync(ctx context.Context, req Request) (*Result, error) {
	if req.Source == nil {
		return nil, fmt.Errorf("gallery: sync request requires a source")
	}
	if req.Gallery == "" {
		req.Gallery = e.cfg.DefaultGallery
	}
	if req.MaxPhotos <= 0 {
		req.MaxPhotos = e.cfg.DefaultMaxPhotos
	}

	result := &Result{
		RunID:     uuid.NewString(),
		Gallery:   req.Gallery,
		StartedAt: time.Now(),
	}

	e.logger.Info("sync started",
		"run_id", result.RunID,
		"gallery", req.Gallery,
		"max_photos", req.MaxPhotos,
		"overwrite", req.Overwrite,
	)

	// Hold the device exclusively for the whole run.
	batch := e.session.Begin()
	defer batch.End()

	existing, storage, err := e.enumerate(ctx, batch, req.Gallery)
	if err != nil {
		return nil, fmt.Errorf("gallery: enumerate %s: %w", req.Gallery, err)
	}

	var runErr error
	successes := 0

	for successes < req.MaxPhotos {
		if ctx.Err() != nil {
			result.Cancelled = true
			break
		}

		item, err := req.Source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				result.Cancelled = true
				break
			}
			runErr = fmt.Errorf("gallery: source: %w", err)
			break
		}

		result.Examined++
		if e.processItem(ctx, batch, req, result, item, existing, &storage) {
			successes++
		}
	}

	result.FinishedAt = time.Now()
	if runErr != nil {
		result.Error = runErr.Error()
	}

	e.logger.Info("sync finished",
		"run_id", result.RunID,
		"examined", result.Examined,
		"uploaded", result.Uploaded,
		"overwritten", result.Overwritten,
		"skipped", result.SkippedDuplicate,
		"failed", result.Failed,
		"cancelled", result.Cancelled,
	)

	if e.ledger != nil {
		// Record with a fresh context so a cancelled run is still
		// persisted.
		recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := e.ledger.RecordRun(recordCtx, result); err != nil {
			e.logger.Error("failed to record sync run", "run_id", result.RunID, "error", err)
		}
		cancel()
	}

	if e.onComplete != nil {
		e.onComplete(result)
	}

	return result, runErr
}

// storageQuota tracks the device's remaining free bytes across a run.
// When the pre-sync status refresh fails, or the device reports no
// figure, the quota is unknown and enforcement is skipped.
type storageQuota struct {
	known bool
	free  int64
}

// enumerate pages through the device gallery collecting fingerprints
// of previously synced items, and reads free storage for quota checks.
// The listing is cached for this sync only; device state can change
// out-of-band between syncs.
func (e *Engine) enumerate(ctx context.Context, batch *canvas.Batch, galleryName string) (map[string]string, storageQuota, error) {
	var quota storageQuota
	if status, err := batch.RefreshStatus(ctx); err == nil {
		if status.FreeStorageBytes > 0 {
			quota = storageQuota{known: true, free: status.FreeStorageBytes}
		}
	} else {
		// Storage unknown; quota enforcement is skipped this run.
		e.logger.Warn("status refresh failed before sync", "error", err)
	}

	existing := make(map[string]string)
	offset := 0
	for {
		page, err := batch.ListGalleryImages(ctx, canvas.PageParams{
			Gallery: galleryName,
			Offset:  offset,
			Limit:   listPageSize,
		})
		if err != nil {
			return nil, storageQuota{}, err
		}

		for _, img := range page.Items {
			if fp, ok := fingerprintFromName(img.Name); ok {
				existing[fp] = img.Name
			}
		}

		if len(page.Items) < listPageSize {
			break
		}
		offset += len(page.Items)
		if page.Total > 0 && offset >= page.Total {
			break
		}
	}

	return existing, quota, nil
}

// processItem handles one source item and returns whether it counts
// toward the success bound.
func (e *Engine) processItem(ctx context.Context, batch *canvas.Batch, req Request, result *Result, item *SourceItem, existing map[string]string, quota *storageQuota) bool {
	record := ItemRecord{
		SourceID: item.ID,
		Name:     item.Name,
	}

	fail := func(err error, detail string) {
		record.Outcome = OutcomeFailed
		record.Detail = detail
		record.Err = err
		result.Failed++
		result.Items = append(result.Items, record)
		e.logger.Warn("sync item failed", "run_id", result.RunID, "item", item.Name, "error", err)
		e.emitProgress(result, record)
	}

	if item.Err != nil {
		fail(item.Err, "source read failed")
		return false
	}

	prepared, err := e.preparer.Prepare(item.Data)
	if err != nil {
		fail(err, "unsupported image format")
		return false
	}

	fingerprint := Fingerprint(prepared)
	target := TargetName(fingerprint, item.Name)
	record.Target = target
	record.SizeBytes = len(prepared)

	// The existing map is keyed by the filename-embedded prefix, the
	// only identity the device listing exposes.
	prefix := fingerprint[:fingerprintLen]
	existingName, present := existing[prefix]
	if present && !req.Overwrite {
		record.Outcome = OutcomeSkipped
		result.SkippedDuplicate++
		result.Items = append(result.Items, record)
		e.emitProgress(result, record)
		return false
	}

	if quota.known && int64(len(prepared)) > quota.free {
		fail(fmt.Errorf("%w: need %d bytes, %d free", ErrQuotaExceeded, len(prepared), quota.free), "insufficient device storage")
		return false
	}

	// Overwrite replaces in place: uploading under the existing name
	// makes the device swap the stored bytes.
	uploadName := target
	if present {
		uploadName = existingName
		record.Target = existingName
	}

	path, err := batch.Upload(ctx, req.Gallery, uploadName, prepared)
	if err != nil {
		fail(fmt.Errorf("%w: %w", ErrUploadRejected, err), "device rejected upload")
		return false
	}

	if present {
		record.Outcome = OutcomeOverwritten
		result.Overwritten++
	} else {
		record.Outcome = OutcomeUploaded
		result.Uploaded++
	}
	existing[prefix] = uploadName
	if quota.known {
		quota.free -= int64(len(prepared))
	}

	result.Items = append(result.Items, record)
	result.UploadedPaths = append(result.UploadedPaths, path)
	e.emitProgress(result, record)
	return true
}

func (e *Engine) emitProgress(result *Result, record ItemRecord) {
	if e.onProgress == nil {
		return
	}
	e.onProgress(Progress{
		RunID:     result.RunID,
		Gallery:   result.Gallery,
		Item:      record.Name,
		Outcome:   record.Outcome,
		Detail:    record.Detail,
		Examined:  result.Examined,
		Successes: result.Uploaded + result.Overwritten,
	})
}
