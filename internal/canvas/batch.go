package canvas

import (
	"context"
)

// Batch holds the session's single-operation gate across a sequence of
// operations. The sync engine uses it so an entire gallery sync owns
// the device exclusively: facade calls issued concurrently block until
// End releases the gate.
//
// A Batch is not safe for concurrent use; it belongs to the goroutine
// that called Begin. End must be called exactly once, typically via
// defer.
type Batch struct {
	session *Session
	done    bool
}

// Begin acquires the operation gate and returns a Batch for issuing
// operations while holding it. Blocks until any in-flight operation
// completes.
func (s *Session) Begin() *Batch {
	s.opMu.Lock()
	return &Batch{session: s}
}

// End releases the gate. Safe to call once only.
func (b *Batch) End() {
	if b.done {
		return
	}
	b.done = true
	b.session.opMu.Unlock()
}

// Execute runs one operation inside the batch, with the same probing,
// retry, and state semantics as Session.Execute.
func (b *Batch) Execute(ctx context.Context, op Operation) (*Response, error) {
	return b.session.execute(ctx, op)
}

// RefreshStatus fetches a status snapshot within the batch.
func (b *Batch) RefreshStatus(ctx context.Context) (DeviceStatus, error) {
	resp, err := b.Execute(ctx, Operation{Kind: KindRefreshStatus})
	if err != nil {
		return DeviceStatus{}, err
	}
	return parseStatus(resp.Object), nil
}

// ListGalleryImages returns one listing page within the batch.
func (b *Batch) ListGalleryImages(ctx context.Context, page PageParams) (GalleryPage, error) {
	if page.Limit <= 0 {
		page.Limit = 100
	}

	resp, err := b.Execute(ctx, Operation{Kind: KindListGalleryImages, Page: &page})
	if err != nil {
		return GalleryPage{}, err
	}
	return parseGalleryPage(resp.Object, page), nil
}

// Upload stores an image in a gallery within the batch and returns
// the device path.
func (b *Batch) Upload(ctx context.Context, gallery, filename string, data []byte) (string, error) {
	resp, err := b.Execute(ctx, Operation{
		Kind: KindUploadToGallery,
		Upload: &UploadParams{
			Filename: filename,
			Gallery:  gallery,
			Data:     data,
		},
	})
	if err != nil {
		return "", err
	}
	return uploadedPath(resp, gallery, filename), nil
}
