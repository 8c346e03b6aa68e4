package gallery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"

	"github.com/opencanvas/canvas-core/internal/canvas"
	"github.com/opencanvas/canvas-core/internal/infrastructure/config"
	"github.com/opencanvas/canvas-core/internal/infrastructure/logging"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text"}, "test")
}

func testSyncConfig() config.SyncConfig {
	return config.SyncConfig{
		DefaultGallery:       "default",
		DefaultMaxPhotos:     50,
		JPEGQuality:          90,
		HistoryRetentionDays: 90,
	}
}

// fakeDevice implements canvas.Transport as a stateful panel: it
// serves a gallery listing and records uploads.
type fakeDevice struct {
	mu          sync.Mutex
	freeStorage int64
	listing     []string
	uploads     map[string][]byte
}

func newFakeDevice(names ...string) *fakeDevice {
	return &fakeDevice{
		freeStorage: 1 << 30,
		listing:     names,
		uploads:     make(map[string][]byte),
	}
}

func (d *fakeDevice) Send(_ context.Context, op canvas.Operation) (*canvas.Response, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch op.Kind {
	case canvas.KindWake:
		return &canvas.Response{StatusCode: 200}, nil

	case canvas.KindRefreshStatus:
		return &canvas.Response{StatusCode: 200, Object: map[string]any{
			"battery":      float64(80),
			"free_storage": float64(d.freeStorage),
		}}, nil

	case canvas.KindListGalleryImages:
		data := make([]any, 0, len(d.listing))
		for _, name := range d.listing {
			data = append(data, map[string]any{"name": name, "size": float64(100)})
		}
		return &canvas.Response{StatusCode: 200, Object: map[string]any{
			"total": float64(len(d.listing)),
			"data":  data,
		}}, nil

	case canvas.KindUploadToGallery:
		name := op.Upload.Filename
		if _, exists := d.uploads[name]; !exists {
			d.listing = append(d.listing, name)
		}
		d.uploads[name] = op.Upload.Data
		return &canvas.Response{StatusCode: 200, Object: map[string]any{
			"status": float64(100),
			"path":   "/gallerys/" + op.Upload.Gallery + "/",
		}}, nil
	}

	return &canvas.Response{StatusCode: 200}, nil
}

func (d *fakeDevice) uploadCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.uploads)
}

func newTestEngine(dev *fakeDevice) *Engine {
	cfg := config.DeviceConfig{
		Host:           "192.168.1.42",
		RequestTimeout: 1,
		UploadTimeout:  2,
		MaxImageBytes:  1 << 20,
		Wake: config.WakeConfig{
			Probes:   3,
			Interval: 0,
		},
		MaxRetries: 3,
	}
	session := canvas.NewSession(dev, cfg, canvas.NewStatusCache(), testLogger())
	return NewEngine(session, nil, testSyncConfig(), testLogger())
}

// testImage encodes a small PNG whose pixel content varies by shade,
// so each shade yields a distinct fingerprint after preparation.
func testImage(t *testing.T, shade uint8) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: 255 - shade, B: shade / 2, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test image: %v", err)
	}
	return buf.Bytes()
}

// preparedFingerprint runs data through the same pipeline the engine
// uses so tests can predict on-device names.
func preparedFingerprint(t *testing.T, data []byte) string {
	t.Helper()

	prepared, err := NewPreparer(90).Prepare(data)
	if err != nil {
		t.Fatalf("prepare test image: %v", err)
	}
	return Fingerprint(prepared)
}

func TestSync_DuplicatesSkippedAndLimitHonoured(t *testing.T) {
	// 25 candidates, limit 10, and 5 of the first 15 already present
	// on the device: the run should stop after the 10th upload having
	// examined exactly 15 items.
	items := make([]SourceItem, 25)
	for i := range items {
		items[i] = SourceItem{
			ID:   fmt.Sprintf("item-%02d", i),
			Name: fmt.Sprintf("photo-%02d.png", i),
			Data: testImage(t, uint8(i*9)),
		}
	}

	dupes := []int{2, 4, 7, 10, 13}
	var onDevice []string
	for _, i := range dupes {
		fp := preparedFingerprint(t, items[i].Data)
		onDevice = append(onDevice, TargetName(fp, items[i].Name))
	}

	dev := newFakeDevice(onDevice...)
	engine := newTestEngine(dev)

	result, err := engine.Sync(context.Background(), Request{
		Source:    &SliceSource{Items: items},
		MaxPhotos: 10,
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if result.Examined != 15 {
		t.Errorf("Examined = %d, want 15", result.Examined)
	}
	if result.Uploaded != 10 {
		t.Errorf("Uploaded = %d, want 10", result.Uploaded)
	}
	if result.SkippedDuplicate != 5 {
		t.Errorf("SkippedDuplicate = %d, want 5", result.SkippedDuplicate)
	}
	if result.Failed != 0 {
		t.Errorf("Failed = %d, want 0", result.Failed)
	}
	if result.Overwritten != 0 {
		t.Errorf("Overwritten = %d, want 0", result.Overwritten)
	}
	if got := dev.uploadCount(); got != 10 {
		t.Errorf("device received %d uploads, want 10", got)
	}
	assertCountsSum(t, result)
}

func TestSync_UnsupportedItemDoesNotAbortRun(t *testing.T) {
	items := make([]SourceItem, 10)
	for i := range items {
		items[i] = SourceItem{
			Name: fmt.Sprintf("photo-%d.png", i),
			Data: testImage(t, uint8(i*20)),
		}
	}
	items[6].Data = []byte("definitely not an image")

	dev := newFakeDevice()
	engine := newTestEngine(dev)

	result, err := engine.Sync(context.Background(), Request{
		Source: &SliceSource{Items: items},
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if result.Examined != 10 {
		t.Errorf("Examined = %d, want 10", result.Examined)
	}
	if result.Uploaded != 9 {
		t.Errorf("Uploaded = %d, want 9", result.Uploaded)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}

	failures := result.Failures()
	if len(failures) != 1 {
		t.Fatalf("len(Failures()) = %d, want 1", len(failures))
	}
	if failures[0].Name != "photo-6.png" {
		t.Errorf("failed item = %q, want photo-6.png", failures[0].Name)
	}
	if !errors.Is(failures[0].Err, ErrFormatUnsupported) {
		t.Errorf("failure error = %v, want ErrFormatUnsupported", failures[0].Err)
	}
	assertCountsSum(t, result)
}

func TestSync_CancellationReturnsPartialResult(t *testing.T) {
	items := make([]SourceItem, 10)
	for i := range items {
		items[i] = SourceItem{
			Name: fmt.Sprintf("photo-%d.png", i),
			Data: testImage(t, uint8(i*20)),
		}
	}

	dev := newFakeDevice()
	engine := newTestEngine(dev)

	ctx, cancel := context.WithCancel(context.Background())
	engine.SetOnProgress(func(p Progress) {
		if p.Examined == 3 {
			cancel()
		}
	})

	result, err := engine.Sync(ctx, Request{
		Source: &SliceSource{Items: items},
	})
	if err != nil {
		t.Fatalf("Sync() error = %v, want nil on cancellation", err)
	}

	if !result.Cancelled {
		t.Error("Cancelled = false, want true")
	}
	if result.Examined != 3 {
		t.Errorf("Examined = %d, want 3", result.Examined)
	}
	if result.Uploaded != 3 {
		t.Errorf("Uploaded = %d, want 3", result.Uploaded)
	}
	assertCountsSum(t, result)
}

func TestSync_OverwritePolicy(t *testing.T) {
	item := SourceItem{Name: "sunset.png", Data: testImage(t, 120)}
	fp := preparedFingerprint(t, item.Data)
	existingName := TargetName(fp, "old-export.jpg")

	t.Run("skip preserves stored bytes", func(t *testing.T) {
		dev := newFakeDevice(existingName)
		engine := newTestEngine(dev)

		result, err := engine.Sync(context.Background(), Request{
			Source: &SliceSource{Items: []SourceItem{item}},
		})
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		if result.SkippedDuplicate != 1 {
			t.Errorf("SkippedDuplicate = %d, want 1", result.SkippedDuplicate)
		}
		if got := dev.uploadCount(); got != 0 {
			t.Errorf("device received %d uploads, want 0", got)
		}
	})

	t.Run("overwrite replaces under existing name", func(t *testing.T) {
		dev := newFakeDevice(existingName)
		engine := newTestEngine(dev)

		result, err := engine.Sync(context.Background(), Request{
			Source:    &SliceSource{Items: []SourceItem{item}},
			Overwrite: true,
		})
		if err != nil {
			t.Fatalf("Sync() error = %v", err)
		}

		if result.Overwritten != 1 {
			t.Errorf("Overwritten = %d, want 1", result.Overwritten)
		}
		if result.Uploaded != 0 {
			t.Errorf("Uploaded = %d, want 0", result.Uploaded)
		}
		dev.mu.Lock()
		_, replaced := dev.uploads[existingName]
		dev.mu.Unlock()
		if !replaced {
			t.Errorf("expected upload under existing name %q", existingName)
		}
	})
}

func TestSync_QuotaExceeded(t *testing.T) {
	items := []SourceItem{
		{Name: "a.png", Data: testImage(t, 10)},
		{Name: "b.png", Data: testImage(t, 80)},
		{Name: "c.png", Data: testImage(t, 150)},
	}

	dev := newFakeDevice()
	dev.freeStorage = 10 // smaller than any prepared JPEG
	engine := newTestEngine(dev)

	result, err := engine.Sync(context.Background(), Request{
		Source: &SliceSource{Items: items},
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if result.Failed != 3 {
		t.Errorf("Failed = %d, want 3", result.Failed)
	}
	for _, failure := range result.Failures() {
		if !errors.Is(failure.Err, ErrQuotaExceeded) {
			t.Errorf("item %s error = %v, want ErrQuotaExceeded", failure.Name, failure.Err)
		}
	}
	if got := dev.uploadCount(); got != 0 {
		t.Errorf("device received %d uploads, want 0", got)
	}
	assertCountsSum(t, result)
}

func TestSync_QuotaExhaustedMidRun(t *testing.T) {
	// Free storage covers the first upload exactly; items after it must
	// still be rejected rather than slipping past a zeroed quota.
	first := SourceItem{Name: "a.png", Data: testImage(t, 10)}
	second := SourceItem{Name: "b.png", Data: testImage(t, 200)}

	prepared, err := NewPreparer(90).Prepare(first.Data)
	if err != nil {
		t.Fatalf("prepare first item: %v", err)
	}

	dev := newFakeDevice()
	dev.freeStorage = int64(len(prepared))
	engine := newTestEngine(dev)

	result, err := engine.Sync(context.Background(), Request{
		Source: &SliceSource{Items: []SourceItem{first, second}},
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if result.Uploaded != 1 {
		t.Errorf("Uploaded = %d, want 1", result.Uploaded)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}
	failures := result.Failures()
	if len(failures) != 1 || !errors.Is(failures[0].Err, ErrQuotaExceeded) {
		t.Fatalf("Failures() = %+v, want one ErrQuotaExceeded", failures)
	}
	if failures[0].Name != "b.png" {
		t.Errorf("failed item = %q, want b.png", failures[0].Name)
	}
	if got := dev.uploadCount(); got != 1 {
		t.Errorf("device received %d uploads, want 1", got)
	}
	assertCountsSum(t, result)
}

func TestSync_WithinRunDuplicates(t *testing.T) {
	// Two source items with identical content: the second must be
	// skipped against the first's upload, not re-uploaded.
	data := testImage(t, 42)
	items := []SourceItem{
		{Name: "first.png", Data: data},
		{Name: "copy-of-first.png", Data: data},
	}

	dev := newFakeDevice()
	engine := newTestEngine(dev)

	result, err := engine.Sync(context.Background(), Request{
		Source: &SliceSource{Items: items},
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	if result.Uploaded != 1 {
		t.Errorf("Uploaded = %d, want 1", result.Uploaded)
	}
	if result.SkippedDuplicate != 1 {
		t.Errorf("SkippedDuplicate = %d, want 1", result.SkippedDuplicate)
	}
	if got := dev.uploadCount(); got != 1 {
		t.Errorf("device received %d uploads, want 1", got)
	}
}

// brokenSource yields its items then fails instead of reporting EOF.
type brokenSource struct {
	items []SourceItem
	pos   int
}

func (s *brokenSource) Next(ctx context.Context) (*SourceItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.items) {
		return nil, errors.New("stream interrupted")
	}
	item := &s.items[s.pos]
	s.pos++
	return item, nil
}

func TestSync_SourceErrorReturnsPartialResult(t *testing.T) {
	items := []SourceItem{
		{Name: "a.png", Data: testImage(t, 30)},
		{Name: "b.png", Data: testImage(t, 90)},
	}

	dev := newFakeDevice()
	engine := newTestEngine(dev)

	result, err := engine.Sync(context.Background(), Request{
		Source: &brokenSource{items: items},
	})
	if err == nil {
		t.Fatal("Sync() error = nil, want source error")
	}
	if result == nil {
		t.Fatal("Sync() result = nil, want partial accounting")
	}

	if result.Examined != 2 || result.Uploaded != 2 {
		t.Errorf("partial counts = %d examined / %d uploaded, want 2/2", result.Examined, result.Uploaded)
	}
	if result.Error == "" {
		t.Error("result.Error empty, want failure detail")
	}
	assertCountsSum(t, result)
}

func TestSync_RequiresSource(t *testing.T) {
	engine := newTestEngine(newFakeDevice())
	if _, err := engine.Sync(context.Background(), Request{}); err == nil {
		t.Fatal("Sync() with nil source expected error")
	}
}

func assertCountsSum(t *testing.T, result *Result) {
	t.Helper()

	sum := result.Uploaded + result.Overwritten + result.SkippedDuplicate + result.Failed
	if sum != result.Examined {
		t.Errorf("outcome counts sum to %d, Examined = %d", sum, result.Examined)
	}
	if successes := result.Uploaded + result.Overwritten; successes > 0 && len(result.UploadedPaths) != successes {
		t.Errorf("len(UploadedPaths) = %d, want %d", len(result.UploadedPaths), successes)
	}
}
