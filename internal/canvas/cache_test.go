package canvas

import (
	"errors"
	"testing"
	"time"
)

func TestStatusCache_EmptyIsStale(t *testing.T) {
	cache := NewStatusCache()

	if _, err := cache.Get(time.Hour); !errors.Is(err, ErrStale) {
		t.Errorf("Get() on empty cache error = %v, want ErrStale", err)
	}
	if age := cache.Age(); age >= 0 {
		t.Errorf("Age() = %v, want negative for empty cache", age)
	}
}

func TestStatusCache_FreshSnapshot(t *testing.T) {
	cache := NewStatusCache()
	cache.set(DeviceStatus{BatteryPercent: 55, Name: "hallway-frame"})

	status, err := cache.Get(time.Minute)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if status.BatteryPercent != 55 || status.Name != "hallway-frame" {
		t.Errorf("status = %+v", status)
	}
}

func TestStatusCache_ExceededMaxAge(t *testing.T) {
	cache := NewStatusCache()
	cache.set(DeviceStatus{BatteryPercent: 55})
	cache.fetched = time.Now().Add(-time.Hour)

	if _, err := cache.Get(time.Minute); !errors.Is(err, ErrStale) {
		t.Errorf("Get() error = %v, want ErrStale", err)
	}
}

func TestStatusCache_ZeroMaxAgeAcceptsAny(t *testing.T) {
	cache := NewStatusCache()
	cache.set(DeviceStatus{BatteryPercent: 55})
	cache.fetched = time.Now().Add(-24 * time.Hour)

	if _, err := cache.Get(0); err != nil {
		t.Errorf("Get(0) error = %v, want any-age snapshot", err)
	}
}

func TestStatusCache_ReaderGetsCopy(t *testing.T) {
	cache := NewStatusCache()
	cache.set(DeviceStatus{BatteryPercent: 55})

	status, _ := cache.Get(0)
	status.BatteryPercent = 1

	again, _ := cache.Get(0)
	if again.BatteryPercent != 55 {
		t.Errorf("cached snapshot mutated through reader copy")
	}
}
