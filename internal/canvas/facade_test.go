package canvas

import (
	"context"
	"errors"
	"testing"
)

func newTestFacade(transport Transport) *Facade {
	session, cache := newTestSession(transport)
	return NewFacade(session, cache)
}

func TestFacade_UpdateSettingsBody(t *testing.T) {
	var captured map[string]any
	transport := &fakeTransport{
		script: func(op Operation, _ int) (*Response, error) {
			if op.Kind == KindUpdateSettings {
				captured = op.Settings
			}
			return ok()
		},
	}
	facade := newTestFacade(transport)

	name := "bedroom-frame"
	sleep := 1800
	err := facade.UpdateSettings(context.Background(), Settings{Name: &name, SleepDuration: &sleep})
	if err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	if captured["name"] != "bedroom-frame" || captured["sleep_duration"] != 1800 {
		t.Errorf("settings body = %v", captured)
	}
	if _, ok := captured["max_idle"]; ok {
		t.Error("nil setting leaked into body")
	}
}

func TestFacade_UpdateSettingsEmpty(t *testing.T) {
	transport := &fakeTransport{
		script: func(op Operation, _ int) (*Response, error) { return ok() },
	}
	facade := newTestFacade(transport)

	if err := facade.UpdateSettings(context.Background(), Settings{}); err == nil {
		t.Error("UpdateSettings() with no settings should error")
	}
	if transport.callCount() != 0 {
		t.Errorf("transport calls = %d, want 0", transport.callCount())
	}
}

func TestFacade_PushImagePath(t *testing.T) {
	transport := &fakeTransport{
		script: func(op Operation, _ int) (*Response, error) {
			if op.Kind == KindPushImage {
				if !op.Upload.ShowNow {
					t.Error("PushImage should set ShowNow")
				}
				return &Response{
					StatusCode: 200,
					Object:     map[string]any{"status": float64(100), "path": "/gallerys/default/"},
				}, nil
			}
			return ok()
		},
	}
	facade := newTestFacade(transport)

	path, err := facade.PushImage(context.Background(), "sunset.jpg", []byte("jpeg"))
	if err != nil {
		t.Fatalf("PushImage() error = %v", err)
	}
	if path != "/gallerys/default/sunset.jpg" {
		t.Errorf("path = %q, want /gallerys/default/sunset.jpg", path)
	}
}

func TestFacade_ListGalleries(t *testing.T) {
	transport := &fakeTransport{
		script: func(op Operation, _ int) (*Response, error) {
			if op.Kind == KindListGalleries {
				return &Response{
					StatusCode: 200,
					Array: []map[string]any{
						{"name": "default"},
						{"name": "holiday"},
					},
				}, nil
			}
			return ok()
		},
	}
	facade := newTestFacade(transport)

	galleries, err := facade.ListGalleries(context.Background())
	if err != nil {
		t.Fatalf("ListGalleries() error = %v", err)
	}
	if len(galleries) != 2 || galleries[0].Name != "default" || galleries[1].Name != "holiday" {
		t.Errorf("galleries = %+v", galleries)
	}
}

func TestFacade_RebootNeverRetried(t *testing.T) {
	transport := &fakeTransport{
		script: func(op Operation, _ int) (*Response, error) {
			if op.Kind == KindWake {
				return ok()
			}
			return nil, ErrTimeout
		},
	}
	facade := newTestFacade(transport)

	err := facade.Reboot(context.Background())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Reboot() error = %v, want ErrTimeout", err)
	}

	// One wake probe plus exactly one reboot attempt.
	kinds := transport.callKinds()
	reboots := 0
	for _, k := range kinds {
		if k == KindReboot {
			reboots++
		}
	}
	if reboots != 1 {
		t.Errorf("reboot attempts = %d, want exactly 1", reboots)
	}
}

func TestFacade_StatusUsesCacheOnly(t *testing.T) {
	transport := &fakeTransport{
		script: func(op Operation, _ int) (*Response, error) { return ok() },
	}
	facade := newTestFacade(transport)

	if _, err := facade.Status(0); !errors.Is(err, ErrStale) {
		t.Fatalf("Status() error = %v, want ErrStale", err)
	}
	if transport.callCount() != 0 {
		t.Errorf("Status() touched the network: %d calls", transport.callCount())
	}
}

func TestFacade_ShowDefaults(t *testing.T) {
	var captured *ShowParams
	transport := &fakeTransport{
		script: func(op Operation, _ int) (*Response, error) {
			if op.Kind == KindShow {
				captured = op.Show
			}
			return ok()
		},
	}
	facade := newTestFacade(transport)

	err := facade.Show(context.Background(), ShowParams{Filename: "a.jpg", PlayType: 1})
	if err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if captured.Gallery != "default" {
		t.Errorf("Gallery = %q, want default", captured.Gallery)
	}
	if captured.Duration != 99999 {
		t.Errorf("Duration = %d, want 99999", captured.Duration)
	}
}
