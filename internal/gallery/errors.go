package gallery

import "errors"

// Per-item sync errors. These are captured in the run's item records
// and never abort the remaining items; use errors.Is() against a
// failed record's Err.
var (
	// ErrFormatUnsupported indicates the source bytes could not be
	// decoded as an image.
	ErrFormatUnsupported = errors.New("gallery: unsupported image format")

	// ErrUploadRejected indicates the device refused the upload.
	ErrUploadRejected = errors.New("gallery: upload rejected")

	// ErrQuotaExceeded indicates the item would not fit in the
	// device's remaining free storage.
	ErrQuotaExceeded = errors.New("gallery: device storage quota exceeded")

	// ErrSourceRead indicates the media source failed to produce the
	// item's bytes.
	ErrSourceRead = errors.New("gallery: source read failed")
)
