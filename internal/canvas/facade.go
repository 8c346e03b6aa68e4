package canvas

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Facade exposes the discrete device operations as single calls
// layered on the session. Each method maps to exactly one operation
// kind with a fixed idempotency class; retry behaviour beyond the
// session's bounded timeout retry is the caller's decision.
type Facade struct {
	session *Session
	cache   *StatusCache
}

// NewFacade wires the facade over a session and its status cache.
func NewFacade(session *Session, cache *StatusCache) *Facade {
	return &Facade{
		session: session,
		cache:   cache,
	}
}

// Session exposes the underlying session for state inspection.
func (f *Facade) Session() *Session {
	return f.session
}

// Status returns the cached device status if it is no older than
// maxAge, or ErrStale. Never blocks on the network.
func (f *Facade) Status(maxAge time.Duration) (DeviceStatus, error) {
	return f.cache.Get(maxAge)
}

// RefreshStatus fetches a fresh status snapshot from the device and
// replaces the cache. Idempotent; auto-retried on timeout.
func (f *Facade) RefreshStatus(ctx context.Context) (DeviceStatus, error) {
	resp, err := f.session.Execute(ctx, Operation{Kind: KindRefreshStatus})
	if err != nil {
		return DeviceStatus{}, err
	}
	return parseStatus(resp.Object), nil
}

// RefreshInfo fetches extended device information and replaces the
// cache. Idempotent; auto-retried on timeout.
func (f *Facade) RefreshInfo(ctx context.Context) (DeviceStatus, error) {
	resp, err := f.session.Execute(ctx, Operation{Kind: KindRefreshInfo})
	if err != nil {
		return DeviceStatus{}, err
	}
	return parseStatus(resp.Object), nil
}

// Wake sends the whistle keep-alive. Idempotent; bounded auto-retry.
func (f *Facade) Wake(ctx context.Context) error {
	_, err := f.session.Execute(ctx, Operation{Kind: KindWake})
	return err
}

// ShowNext advances the display to the next image. Not idempotent.
func (f *Facade) ShowNext(ctx context.Context) error {
	_, err := f.session.Execute(ctx, Operation{Kind: KindNextImage})
	return err
}

// Sleep puts the device to sleep. Not idempotent: a second call after
// wake would sleep it again.
func (f *Facade) Sleep(ctx context.Context) error {
	_, err := f.session.Execute(ctx, Operation{Kind: KindSleep})
	return err
}

// Reboot restarts the device. Never auto-retried.
func (f *Facade) Reboot(ctx context.Context) error {
	_, err := f.session.Execute(ctx, Operation{Kind: KindReboot})
	return err
}

// ClearScreen blanks the e-ink panel. Not idempotent from the panel's
// point of view (it redraws), so caller-retry only.
func (f *Facade) ClearScreen(ctx context.Context) error {
	_, err := f.session.Execute(ctx, Operation{Kind: KindClearScreen})
	return err
}

// Settings are the device-side options UpdateSettings can change.
// Nil fields are left untouched on the device.
type Settings struct {
	Name            *string
	SleepDuration   *int
	MaxIdle         *int
	WakeSensitivity *int
}

// UpdateSettings pushes the non-nil settings to the device.
// Idempotent by value; auto-retried on timeout.
func (f *Facade) UpdateSettings(ctx context.Context, settings Settings) error {
	body := make(map[string]any)
	if settings.Name != nil {
		body["name"] = *settings.Name
	}
	if settings.SleepDuration != nil {
		body["sleep_duration"] = *settings.SleepDuration
	}
	if settings.MaxIdle != nil {
		body["max_idle"] = *settings.MaxIdle
	}
	if settings.WakeSensitivity != nil {
		body["idx_wake_sens"] = *settings.WakeSensitivity
	}
	if len(body) == 0 {
		return fmt.Errorf("canvas: update_settings requires at least one setting")
	}

	_, err := f.session.Execute(ctx, Operation{Kind: KindUpdateSettings, Settings: body})
	return err
}

// Show displays a specific image or starts a slideshow. Not idempotent.
func (f *Facade) Show(ctx context.Context, params ShowParams) error {
	if params.Filename == "" {
		return fmt.Errorf("canvas: show requires a filename")
	}
	if params.Gallery == "" {
		params.Gallery = "default"
	}
	if params.Duration <= 0 {
		params.Duration = 99999
	}

	_, err := f.session.Execute(ctx, Operation{Kind: KindShow, Show: &params})
	return err
}

// PushImage uploads an image and displays it immediately. Returns the
// device path of the stored image. Not idempotent; never auto-retried.
func (f *Facade) PushImage(ctx context.Context, filename string, data []byte) (string, error) {
	return f.upload(ctx, KindPushImage, UploadParams{
		Filename: filename,
		Gallery:  "default",
		ShowNow:  true,
		Data:     data,
	})
}

// UploadToGallery uploads an image into a named gallery without
// changing the display. Returns the device path. Not idempotent.
func (f *Facade) UploadToGallery(ctx context.Context, gallery, filename string, data []byte) (string, error) {
	return f.upload(ctx, KindUploadToGallery, UploadParams{
		Filename: filename,
		Gallery:  gallery,
		Data:     data,
	})
}

func (f *Facade) upload(ctx context.Context, kind Kind, params UploadParams) (string, error) {
	if params.Filename == "" {
		return "", fmt.Errorf("canvas: upload requires a filename")
	}
	if params.Gallery == "" {
		params.Gallery = "default"
	}

	resp, err := f.session.Execute(ctx, Operation{Kind: kind, Upload: &params})
	if err != nil {
		return "", err
	}

	return uploadedPath(resp, params.Gallery, params.Filename), nil
}

// uploadedPath derives the stored image path from the device's upload
// reply. The device returns the directory only ({"status":100,
// "path":"/gallerys/default/"}), so the filename is appended; a
// garbled reply falls back to the conventional path.
func uploadedPath(resp *Response, gallery, filename string) string {
	base := fmt.Sprintf("/gallerys/%s/", gallery)
	if resp.Object != nil {
		if p := pickString(resp.Object, "path"); p != "" {
			base = p
			if !strings.HasSuffix(base, "/") {
				base += "/"
			}
		}
	}
	return base + filename
}

// ListGalleries enumerates the galleries on the device. Idempotent.
func (f *Facade) ListGalleries(ctx context.Context) ([]GalleryInfo, error) {
	resp, err := f.session.Execute(ctx, Operation{Kind: KindListGalleries})
	if err != nil {
		return nil, err
	}

	galleries := make([]GalleryInfo, 0, len(resp.Array))
	for _, obj := range resp.Array {
		if name := pickString(obj, "name"); name != "" {
			galleries = append(galleries, GalleryInfo{Name: name})
		}
	}
	return galleries, nil
}

// ListGalleryImages returns one page of a gallery listing. Idempotent.
func (f *Facade) ListGalleryImages(ctx context.Context, page PageParams) (GalleryPage, error) {
	if page.Gallery == "" {
		page.Gallery = "default"
	}
	if page.Limit <= 0 {
		page.Limit = 100
	}

	resp, err := f.session.Execute(ctx, Operation{Kind: KindListGalleryImages, Page: &page})
	if err != nil {
		return GalleryPage{}, err
	}

	return parseGalleryPage(resp.Object, page), nil
}
