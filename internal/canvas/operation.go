package canvas

// Kind identifies a discrete device operation.
type Kind int

const (
	// KindRefreshStatus reads the device status snapshot (GET /status).
	KindRefreshStatus Kind = iota

	// KindRefreshInfo reads extended device information (GET /deviceInfo).
	KindRefreshInfo

	// KindNextImage advances the display to the next image (POST /showNext).
	KindNextImage

	// KindSleep puts the device to sleep (POST /sleep).
	KindSleep

	// KindReboot restarts the device (POST /reboot).
	KindReboot

	// KindClearScreen blanks the e-ink panel (POST /cleanScreen).
	KindClearScreen

	// KindWake is the whistle keep-alive used as the wake probe (GET /whistle).
	KindWake

	// KindUpdateSettings pushes device settings (POST /settings).
	KindUpdateSettings

	// KindShow displays a specific image or starts a slideshow (POST /show).
	KindShow

	// KindPushImage uploads an image and displays it immediately.
	KindPushImage

	// KindUploadToGallery uploads an image into a named gallery without
	// changing the display.
	KindUploadToGallery

	// KindListGalleries enumerates galleries (GET /gallery/list).
	KindListGalleries

	// KindListGalleryImages pages through a gallery's contents (GET /gallery).
	KindListGalleryImages
)

// String returns the operation name for logs and errors.
func (k Kind) String() string {
	switch k {
	case KindRefreshStatus:
		return "refresh_status"
	case KindRefreshInfo:
		return "refresh_info"
	case KindNextImage:
		return "next_image"
	case KindSleep:
		return "sleep"
	case KindReboot:
		return "reboot"
	case KindClearScreen:
		return "clear_screen"
	case KindWake:
		return "wake"
	case KindUpdateSettings:
		return "update_settings"
	case KindShow:
		return "show"
	case KindPushImage:
		return "push_image"
	case KindUploadToGallery:
		return "upload_to_gallery"
	case KindListGalleries:
		return "list_galleries"
	case KindListGalleryImages:
		return "list_gallery_images"
	default:
		return "unknown"
	}
}

// Idempotent reports whether the operation may be auto-retried on
// timeout. Non-idempotent kinds (uploads, reboot, display changes) get
// exactly one transport call per invocation; blind retry could
// duplicate an upload or double-trigger a reboot.
func (k Kind) Idempotent() bool {
	switch k {
	case KindRefreshStatus, KindRefreshInfo, KindWake, KindUpdateSettings,
		KindListGalleries, KindListGalleryImages:
		return true
	default:
		return false
	}
}

// expectsJSON reports whether the device is expected to answer this
// operation with a JSON body. Command endpoints reply with an empty or
// free-form body and are not held to that standard.
func (k Kind) expectsJSON() bool {
	switch k {
	case KindRefreshStatus, KindRefreshInfo, KindListGalleries,
		KindListGalleryImages:
		return true
	default:
		return false
	}
}

// jsonOptional reports whether a JSON body is decoded when present but
// its absence is tolerated. The firmware acknowledges a stored upload
// with HTTP 200 yet sometimes sends an empty or garbled body; the
// stored path then falls back to the /gallerys convention.
func (k Kind) jsonOptional() bool {
	return k == KindPushImage || k == KindUploadToGallery
}

// ShowParams selects what the device should display.
//
// PlayType 0 shows a single image addressed by gallery and filename,
// 1 starts a gallery slideshow with the given duration, 2 plays a
// playlist. Dither selects the dithering algorithm (0 Floyd-Steinberg,
// 1 Jarvis-Judice-Ninke); nil keeps the device default.
type ShowParams struct {
	Filename string
	Gallery  string
	PlayType int
	Duration int
	Dither   *int
}

// UploadParams carries an image upload.
type UploadParams struct {
	Filename string
	Gallery  string
	ShowNow  bool
	Data     []byte
}

// PageParams addresses one page of a gallery listing.
type PageParams struct {
	Gallery string
	Offset  int
	Limit   int
}

// Operation is a discrete device command. Kind determines which of the
// parameter fields is consulted; unused fields are ignored.
type Operation struct {
	Kind Kind

	// Settings holds key/value pairs for KindUpdateSettings
	// (name, sleep_duration, max_idle, idx_wake_sens).
	Settings map[string]any

	// Show holds display parameters for KindShow.
	Show *ShowParams

	// Upload holds the image payload for KindPushImage and
	// KindUploadToGallery.
	Upload *UploadParams

	// Page addresses a gallery listing page for KindListGalleryImages.
	Page *PageParams
}
