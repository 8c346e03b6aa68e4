package canvas

import (
	"time"
)

// DeviceStatus is an immutable snapshot of the device's self-reported
// state. It is replaced wholesale on each successful refresh and never
// partially mutated; readers always receive a copy.
type DeviceStatus struct {
	Name             string    `json:"name"`
	Firmware         string    `json:"firmware"`
	BatteryPercent   int       `json:"battery_percent"`
	FreeStorageBytes int64     `json:"free_storage_bytes"`
	TotalStorage     int64     `json:"total_storage_bytes"`
	CurrentImage     string    `json:"current_image"`
	SleepDuration    int       `json:"sleep_duration"`
	MaxIdle          int       `json:"max_idle"`
	WakeSensitivity  int       `json:"idx_wake_sens"`
	RSSI             int       `json:"rssi"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// GalleryInfo describes one named gallery on the device.
type GalleryInfo struct {
	Name string `json:"name"`
}

// GalleryImage is one entry in a device gallery listing. The device
// exposes only name, size, and modification time; content identity is
// recovered from the fingerprint prefix embedded in uploaded names.
type GalleryImage struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	Time int64  `json:"time"`
}

// GalleryPage is one page of a gallery listing.
type GalleryPage struct {
	Items  []GalleryImage `json:"items"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// parseStatus builds a DeviceStatus from a decoded device payload.
// The firmware is inconsistent about key names across endpoints, so
// each field tolerates the known spellings.
func parseStatus(obj map[string]any) DeviceStatus {
	return DeviceStatus{
		Name:             pickString(obj, "name", "device_name"),
		Firmware:         pickString(obj, "version", "firmware", "fw_version"),
		BatteryPercent:   int(pickNumber(obj, "battery", "battery_percent", "battery_level")),
		FreeStorageBytes: int64(pickNumber(obj, "free_storage", "storage_free", "free")),
		TotalStorage:     int64(pickNumber(obj, "total_storage", "storage_total", "total")),
		CurrentImage:     pickString(obj, "current_image", "image", "current"),
		SleepDuration:    int(pickNumber(obj, "sleep_duration")),
		MaxIdle:          int(pickNumber(obj, "max_idle")),
		WakeSensitivity:  int(pickNumber(obj, "idx_wake_sens")),
		RSSI:             int(pickNumber(obj, "rssi", "wifi_rssi", "signal")),
		UpdatedAt:        time.Now(),
	}
}

// parseGalleryPage builds a GalleryPage from a decoded /gallery reply.
func parseGalleryPage(obj map[string]any, page PageParams) GalleryPage {
	result := GalleryPage{
		Total:  int(pickNumber(obj, "total")),
		Offset: page.Offset,
		Limit:  page.Limit,
	}

	data, ok := obj["data"].([]any)
	if !ok {
		return result
	}

	result.Items = make([]GalleryImage, 0, len(data))
	for _, entry := range data {
		item, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		result.Items = append(result.Items, GalleryImage{
			Name: pickString(item, "name"),
			Size: int64(pickNumber(item, "size")),
			Time: int64(pickNumber(item, "time")),
		})
	}

	return result
}

func pickString(obj map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func pickNumber(obj map[string]any, keys ...string) float64 {
	for _, key := range keys {
		switch v := obj[key].(type) {
		case float64:
			return v
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return 0
}
