package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue string
		envValue     string
		want         string
	}{
		{
			name:         "environment variable set",
			key:          "TEST_VAR",
			defaultValue: "default",
			envValue:     "from-env",
			want:         "from-env",
		},
		{
			name:         "environment variable not set",
			key:          "NONEXISTENT_VAR",
			defaultValue: "default",
			envValue:     "",
			want:         "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnv(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnv() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue int
		envValue     string
		want         int
	}{
		{
			name:         "valid integer",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "42",
			want:         42,
		},
		{
			name:         "invalid integer",
			key:          "TEST_INT",
			defaultValue: 10,
			envValue:     "not-a-number",
			want:         10,
		},
		{
			name:         "not set",
			key:          "NONEXISTENT_INT",
			defaultValue: 99,
			envValue:     "",
			want:         99,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvInt(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvInt() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue time.Duration
		envValue     string
		want         time.Duration
	}{
		{
			name:         "valid duration",
			key:          "TEST_DURATION",
			defaultValue: time.Minute,
			envValue:     "90s",
			want:         90 * time.Second,
		},
		{
			name:         "invalid duration",
			key:          "TEST_DURATION",
			defaultValue: time.Minute,
			envValue:     "ninety seconds",
			want:         time.Minute,
		},
		{
			name:         "not set",
			key:          "NONEXISTENT_DURATION",
			defaultValue: 30 * time.Second,
			envValue:     "",
			want:         30 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvDuration(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name         string
		key          string
		defaultValue bool
		envValue     string
		want         bool
	}{
		{
			name:         "true",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "true",
			want:         true,
		},
		{
			name:         "numeric true",
			key:          "TEST_BOOL",
			defaultValue: false,
			envValue:     "1",
			want:         true,
		},
		{
			name:         "anything else is false",
			key:          "TEST_BOOL",
			defaultValue: true,
			envValue:     "yes",
			want:         false,
		},
		{
			name:         "not set",
			key:          "NONEXISTENT_BOOL",
			defaultValue: true,
			envValue:     "",
			want:         true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.envValue != "" {
				os.Setenv(tt.key, tt.envValue)
				defer os.Unsetenv(tt.key)
			}

			got := getEnvBool(tt.key, tt.defaultValue)
			if got != tt.want {
				t.Errorf("getEnvBool() = %v, want %v", got, tt.want)
			}
		})
	}
}

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cameras.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadCameras(t *testing.T) {
	path := writeCatalog(t, `
cameras:
  - name: ATLAS_CAM1
    description: main dome
    interval_seconds: 5400
  - name: ATLAS_CAM2
    description: terminus
    interval_seconds: 5400
  - name: ATLAS_CAM3
`)

	cameras, err := LoadCameras(path)
	if err != nil {
		t.Fatalf("LoadCameras() error = %v", err)
	}
	if len(cameras) != 3 {
		t.Fatalf("LoadCameras() returned %d cameras, want 3", len(cameras))
	}
	if cameras[0].Name != "ATLAS_CAM1" || cameras[0].Description != "main dome" || cameras[0].IntervalSeconds != 5400 {
		t.Errorf("cameras[0] = %+v, want ATLAS_CAM1 / main dome / 5400", cameras[0])
	}
	if cameras[2].IntervalSeconds != 0 {
		t.Errorf("cameras[2].IntervalSeconds = %d, want 0 default", cameras[2].IntervalSeconds)
	}
}

func TestLoadCamerasValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "empty name",
			content: "cameras:\n  - name: \"\"\n",
		},
		{
			name:    "invalid name",
			content: "cameras:\n  - name: \"cam with spaces\"\n",
		},
		{
			name:    "duplicate name",
			content: "cameras:\n  - name: ATLAS_CAM1\n  - name: ATLAS_CAM1\n",
		},
		{
			name:    "negative interval",
			content: "cameras:\n  - name: ATLAS_CAM1\n    interval_seconds: -60\n",
		},
		{
			name:    "not yaml",
			content: "{{{{",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeCatalog(t, tt.content)
			if _, err := LoadCameras(path); err == nil {
				t.Error("LoadCameras() error = nil, want validation error")
			}
		})
	}
}

func TestLoadCamerasMissingFile(t *testing.T) {
	if _, err := LoadCameras(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadCameras() error = nil, want read error")
	}
}
