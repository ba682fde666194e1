package archive

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var captureBase = time.Date(2017, 8, 1, 0, 11, 55, 0, time.UTC)

func testRegistry(t *testing.T, names ...string) *Registry {
	t.Helper()
	reg := NewRegistry(nil)
	for _, name := range names {
		cam := Camera{Name: name, Description: "time-lapse of the terminus", Interval: 90 * time.Minute}
		if err := reg.Register(context.Background(), cam); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
	}
	return reg
}

func capture(camera string, n int) ImageRecord {
	ts := captureBase.Add(time.Duration(n) * time.Hour)
	return ImageRecord{
		Camera:     camera,
		CapturedAt: ts,
		Locator:    fmt.Sprintf("https://img.example.com/%s/%s_%s.jpg", camera, camera, ts.Format("20060102_150405")),
	}
}

func mustRecord(t *testing.T, ix *Index, rec ImageRecord) {
	t.Helper()
	if err := ix.RecordImage(context.Background(), rec); err != nil {
		t.Fatalf("RecordImage(%s, %s) error = %v", rec.Camera, rec.CapturedAt, err)
	}
}

func TestIndexRecordImageIdempotent(t *testing.T) {
	ix := NewIndex(testRegistry(t, "ATLAS_CAM2"), nil)

	first := capture("ATLAS_CAM2", 0)
	retry := first
	retry.Locator = "https://mirror.example.com/ATLAS_CAM2/retransmitted.jpg"

	mustRecord(t, ix, first)
	mustRecord(t, ix, retry)

	if n, err := ix.Count("ATLAS_CAM2"); err != nil || n != 1 {
		t.Fatalf("Count() = %d, %v, want 1 record after retransmission", n, err)
	}
	latest, err := ix.Latest("ATLAS_CAM2")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if latest.Locator != retry.Locator {
		t.Errorf("Latest().Locator = %q, want the retransmitted locator %q", latest.Locator, retry.Locator)
	}
}

func TestIndexListPagination(t *testing.T) {
	ix := NewIndex(testRegistry(t, "ATLAS_CAM2"), nil)
	// T1 < T2 < T3 < T4 < T5, inserted in shuffled order.
	for _, n := range []int{3, 1, 5, 2, 4} {
		mustRecord(t, ix, capture("ATLAS_CAM2", n))
	}

	tests := []struct {
		name     string
		page     int
		perPage  int
		wantHour []int // capture offsets, descending
	}{
		{
			name:     "page 2 of 2 yields T3 T2",
			page:     2,
			perPage:  2,
			wantHour: []int{3, 2},
		},
		{
			name:     "page 1 starts at newest",
			page:     1,
			perPage:  3,
			wantHour: []int{5, 4, 3},
		},
		{
			name:     "last partial page",
			page:     3,
			perPage:  2,
			wantHour: []int{1},
		},
		{
			name:    "page beyond data is empty not an error",
			page:    4,
			perPage: 2,
		},
		{
			name:     "page below 1 normalizes to 1",
			page:     0,
			perPage:  2,
			wantHour: []int{5, 4},
		},
		{
			name:     "perPage below 1 normalizes to the default",
			page:     1,
			perPage:  0,
			wantHour: []int{5, 4, 3, 2, 1},
		},
		{
			name:     "perPage above the cap still returns everything here",
			page:     1,
			perPage:  5000,
			wantHour: []int{5, 4, 3, 2, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := ix.List("ATLAS_CAM2", tt.page, tt.perPage)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(recs) != len(tt.wantHour) {
				t.Fatalf("List() returned %d records, want %d", len(recs), len(tt.wantHour))
			}
			for i, rec := range recs {
				want := captureBase.Add(time.Duration(tt.wantHour[i]) * time.Hour)
				if !rec.CapturedAt.Equal(want) {
					t.Errorf("List()[%d].CapturedAt = %v, want %v", i, rec.CapturedAt, want)
				}
			}
		})
	}
}

func TestIndexLatestIgnoresInsertionOrder(t *testing.T) {
	ix := NewIndex(testRegistry(t, "ATLAS_CAM2"), nil)
	for _, n := range []int{1, 3, 2} {
		mustRecord(t, ix, capture("ATLAS_CAM2", n))
	}

	latest, err := ix.Latest("ATLAS_CAM2")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if want := captureBase.Add(3 * time.Hour); !latest.CapturedAt.Equal(want) {
		t.Errorf("Latest().CapturedAt = %v, want %v (recency governs, not insertion order)", latest.CapturedAt, want)
	}
}

func TestIndexUnknownCamera(t *testing.T) {
	ix := NewIndex(testRegistry(t, "ATLAS_CAM2"), nil)

	tests := []struct {
		name string
		call func() error
	}{
		{"RecordImage", func() error { return ix.RecordImage(context.Background(), capture("ATLAS_CAM9", 0)) }},
		{"List", func() error { _, err := ix.List("ATLAS_CAM9", 1, 10); return err }},
		{"Latest", func() error { _, err := ix.Latest("ATLAS_CAM9"); return err }},
		{"Count", func() error { _, err := ix.Count("ATLAS_CAM9"); return err }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, ErrUnknownCamera) {
				t.Errorf("error = %v, want ErrUnknownCamera", err)
			}
		})
	}
}

func TestIndexRegisteredButEmpty(t *testing.T) {
	ix := NewIndex(testRegistry(t, "ATLAS_CAM2"), nil)

	if _, err := ix.Latest("ATLAS_CAM2"); !errors.Is(err, ErrNoImages) {
		t.Errorf("Latest() error = %v, want ErrNoImages", err)
	}
	recs, err := ix.List("ATLAS_CAM2", 1, 10)
	if err != nil {
		t.Errorf("List() error = %v, want empty result without error", err)
	}
	if len(recs) != 0 {
		t.Errorf("List() = %v, want empty", recs)
	}
	if n, err := ix.Count("ATLAS_CAM2"); err != nil || n != 0 {
		t.Errorf("Count() = %d, %v, want 0", n, err)
	}
}

type flakyArchiveLog struct {
	mu         sync.Mutex
	failImages bool
	cameras    []Camera
	images     []ImageRecord
}

func (l *flakyArchiveLog) PutCamera(_ context.Context, cam Camera) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cameras = append(l.cameras, cam)
	return nil
}

func (l *flakyArchiveLog) PutImage(_ context.Context, rec ImageRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failImages {
		return errors.New("log unavailable")
	}
	l.images = append(l.images, rec)
	return nil
}

func TestIndexRecordImagePersistFailureFailsClosed(t *testing.T) {
	log := &flakyArchiveLog{}
	reg := NewRegistry(log)
	if err := reg.Register(context.Background(), Camera{Name: "ATLAS_CAM2"}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	ix := NewIndex(reg, log)
	mustRecord(t, ix, capture("ATLAS_CAM2", 1))

	log.failImages = true
	if err := ix.RecordImage(context.Background(), capture("ATLAS_CAM2", 2)); err == nil {
		t.Fatal("RecordImage() error = nil, want persistence failure")
	}

	// The unpersisted record must not be visible.
	if n, _ := ix.Count("ATLAS_CAM2"); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
	latest, err := ix.Latest("ATLAS_CAM2")
	if err != nil {
		t.Fatalf("Latest() error = %v", err)
	}
	if want := captureBase.Add(time.Hour); !latest.CapturedAt.Equal(want) {
		t.Errorf("Latest().CapturedAt = %v, want %v", latest.CapturedAt, want)
	}
}

func TestIndexRestore(t *testing.T) {
	reg := testRegistry(t, "ATLAS_CAM1", "ATLAS_CAM2")
	ix := NewIndex(reg, nil)

	stale := capture("ATLAS_CAM1", 2)
	stale.Locator = "https://img.example.com/stale.jpg"
	refreshed := capture("ATLAS_CAM1", 2)

	records := []ImageRecord{
		capture("ATLAS_CAM1", 3),
		stale,
		refreshed, // duplicate capture time, later locator wins
		capture("ATLAS_CAM1", 1),
		capture("ATLAS_CAM2", 7),
		capture("ATLAS_CAM9", 4), // no longer registered
	}

	loaded, skipped := ix.Restore(records)
	if loaded != 4 {
		t.Errorf("Restore() loaded = %d, want 4", loaded)
	}
	if skipped != 2 {
		t.Errorf("Restore() skipped = %d, want 2", skipped)
	}

	latest, err := ix.Latest("ATLAS_CAM1")
	if err != nil {
		t.Fatalf("Latest(ATLAS_CAM1) error = %v", err)
	}
	if want := captureBase.Add(3 * time.Hour); !latest.CapturedAt.Equal(want) {
		t.Errorf("Latest(ATLAS_CAM1).CapturedAt = %v, want %v", latest.CapturedAt, want)
	}

	recs, err := ix.List("ATLAS_CAM1", 1, 10)
	if err != nil {
		t.Fatalf("List(ATLAS_CAM1) error = %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("List(ATLAS_CAM1) returned %d records, want 3", len(recs))
	}
	if recs[1].Locator != refreshed.Locator {
		t.Errorf("restored duplicate locator = %q, want %q", recs[1].Locator, refreshed.Locator)
	}

	if n, _ := ix.Count("ATLAS_CAM2"); n != 1 {
		t.Errorf("Count(ATLAS_CAM2) = %d, want 1", n)
	}
}

func TestIndexConcurrentCamerasIndependent(t *testing.T) {
	names := []string{"ATLAS_CAM1", "ATLAS_CAM2", "ATLAS_CAM3", "ATLAS_CAM4"}
	ix := NewIndex(testRegistry(t, names...), nil)
	const perCamera = 50

	var wg sync.WaitGroup
	for _, name := range names {
		wg.Add(1)
		go func(camera string) {
			defer wg.Done()
			for i := 0; i < perCamera; i++ {
				if err := ix.RecordImage(context.Background(), capture(camera, i)); err != nil {
					t.Errorf("RecordImage(%s) error = %v", camera, err)
				}
			}
		}(name)
		wg.Add(1)
		go func(camera string) {
			defer wg.Done()
			for i := 0; i < perCamera; i++ {
				ix.Latest(camera)
				ix.List(camera, 1, 10)
			}
		}(name)
	}
	wg.Wait()

	for _, name := range names {
		if n, err := ix.Count(name); err != nil || n != perCamera {
			t.Errorf("Count(%s) = %d, %v, want %d", name, n, err, perCamera)
		}
		latest, err := ix.Latest(name)
		if err != nil {
			t.Errorf("Latest(%s) error = %v", name, err)
			continue
		}
		if want := captureBase.Add((perCamera - 1) * time.Hour); !latest.CapturedAt.Equal(want) {
			t.Errorf("Latest(%s).CapturedAt = %v, want %v", name, latest.CapturedAt, want)
		}
	}
}

func BenchmarkIndexLatest(b *testing.B) {
	reg := NewRegistry(nil)
	if err := reg.Register(context.Background(), Camera{Name: "ATLAS_CAM2"}); err != nil {
		b.Fatal(err)
	}
	ix := NewIndex(reg, nil)
	for i := 0; i < 10000; i++ {
		if err := ix.RecordImage(context.Background(), capture("ATLAS_CAM2", i)); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := ix.Latest("ATLAS_CAM2"); err != nil {
				b.Fatal(err)
			}
		}
	})
}
