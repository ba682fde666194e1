package archive

import (
	"context"
	"testing"
	"time"
)

func TestRegistryRegisterUpsert(t *testing.T) {
	reg := NewRegistry(nil)

	if err := reg.Register(context.Background(), Camera{Name: "ATLAS_CAM2", Description: "terminus", Interval: time.Hour}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(context.Background(), Camera{Name: "ATLAS_CAM2", Description: "terminus, wide angle", Interval: 90 * time.Minute}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	cam, ok := reg.Get("ATLAS_CAM2")
	if !ok {
		t.Fatal("Get() ok = false, want registered camera")
	}
	if cam.Description != "terminus, wide angle" {
		t.Errorf("Description = %q, want the re-registered value", cam.Description)
	}
	if cam.Interval != 90*time.Minute {
		t.Errorf("Interval = %v, want 90m", cam.Interval)
	}
	if got := len(reg.List()); got != 1 {
		t.Errorf("List() has %d cameras, want 1 (re-registration must not duplicate)", got)
	}
}

func TestRegistryRegisterRequiresName(t *testing.T) {
	reg := NewRegistry(nil)
	if err := reg.Register(context.Background(), Camera{Description: "anonymous"}); err == nil {
		t.Error("Register() error = nil, want name-required failure")
	}
}

func TestRegistryListSorted(t *testing.T) {
	reg := NewRegistry(nil)
	for _, name := range []string{"ATLAS_CAM3", "ATLAS_CAM1", "ATLAS_CAM2"} {
		if err := reg.Register(context.Background(), Camera{Name: name}); err != nil {
			t.Fatalf("Register(%q) error = %v", name, err)
		}
	}

	cams := reg.List()
	want := []string{"ATLAS_CAM1", "ATLAS_CAM2", "ATLAS_CAM3"}
	if len(cams) != len(want) {
		t.Fatalf("List() has %d cameras, want %d", len(cams), len(want))
	}
	for i, cam := range cams {
		if cam.Name != want[i] {
			t.Errorf("List()[%d].Name = %q, want %q", i, cam.Name, want[i])
		}
	}
}

func TestRegistryGetUnknown(t *testing.T) {
	reg := NewRegistry(nil)
	if _, ok := reg.Get("ATLAS_CAM9"); ok {
		t.Error("Get() ok = true for unregistered camera, want false")
	}
	if reg.Has("ATLAS_CAM9") {
		t.Error("Has() = true for unregistered camera, want false")
	}
}

func TestRegistryWriteThrough(t *testing.T) {
	log := &flakyArchiveLog{}
	reg := NewRegistry(log)

	if err := reg.Register(context.Background(), Camera{Name: "ATLAS_CAM2", Interval: time.Hour}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if len(log.cameras) != 1 || log.cameras[0].Name != "ATLAS_CAM2" {
		t.Errorf("log cameras = %v, want the registered camera written through", log.cameras)
	}
}

func TestRegistryRestore(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Restore([]Camera{
		{Name: "ATLAS_CAM2", Description: "terminus", Interval: time.Hour},
		{Name: ""}, // unnamed entries in a corrupt log are dropped
	})

	if got := len(reg.List()); got != 1 {
		t.Fatalf("List() has %d cameras after restore, want 1", got)
	}
	if cam, ok := reg.Get("ATLAS_CAM2"); !ok || cam.Description != "terminus" {
		t.Errorf("Get() = %+v, %v, want restored camera", cam, ok)
	}
}
