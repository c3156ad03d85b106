package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE_PROVIDER", "")
	t.Setenv("PORT", "")
	t.Setenv("APP_PORT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Provider != StorageProviderLocal {
		t.Errorf("provider = %q, want local", cfg.Storage.Provider)
	}
	if cfg.Storage.SignedURLTTL != time.Hour {
		t.Errorf("signed url ttl = %v, want 1h", cfg.Storage.SignedURLTTL)
	}
	if cfg.Storage.CleanupAfterDays != 30 {
		t.Errorf("cleanup days = %d, want 30", cfg.Storage.CleanupAfterDays)
	}
	if cfg.App.MaxUploadFiles != 3 || cfg.App.MaxUploadFileBytes != 5*1024*1024 {
		t.Errorf("upload limits = %d/%d", cfg.App.MaxUploadFiles, cfg.App.MaxUploadFileBytes)
	}
	if cfg.App.Addr() != "0.0.0.0:8080" {
		t.Errorf("addr = %q", cfg.App.Addr())
	}
}

func TestLoadPortOverride(t *testing.T) {
	t.Setenv("PORT", "3001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.App.Port != "3001" {
		t.Errorf("port = %q, want 3001", cfg.App.Port)
	}
}

func TestLoadRejectsIncompleteS3(t *testing.T) {
	t.Setenv("STORAGE_PROVIDER", "S3")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("S3_ENDPOINT", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for s3 without bucket")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"local", Config{Storage: StorageConfig{Provider: "local"}}, false},
		{"s3 complete", Config{Storage: StorageConfig{Provider: "s3", S3Bucket: "b", S3Endpoint: "minio:9000"}}, false},
		{"unknown", Config{Storage: StorageConfig{Provider: "gcs"}}, true},
		{"production without secret", Config{App: AppConfig{Env: "production"}, Storage: StorageConfig{Provider: "local"}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	if (AppConfig{}).RequestTimeout() != 0 {
		t.Error("zero seconds should disable the timeout")
	}
	if (AppConfig{RequestTimeoutSeconds: 5}).RequestTimeout() != 5*time.Second {
		t.Error("expected 5s")
	}
}

func TestLoadStaffEmails(t *testing.T) {
	t.Setenv("AUTH_STAFF_EMAILS", " Tech@Example.com, ,ops@example.com ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	got := cfg.Auth.StaffEmails
	if len(got) != 2 || got[0] != "tech@example.com" || got[1] != "ops@example.com" {
		t.Errorf("staff emails = %q", got)
	}
}
