package storage

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"biometric-attendance-sync/internal/config"
	apperrors "biometric-attendance-sync/pkg/errors"
)

// fakeS3 serves path-style object requests from a map.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	metadata map[string]http.Header
	requests int
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.metadata[r.URL.Path] = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	case http.MethodGet, http.MethodHead:
		body, ok := f.objects[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			w.Write(body)
		}
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}
}

func newTestStorage(t *testing.T) (*S3Storage, *fakeS3) {
	t.Helper()

	fake := &fakeS3{objects: map[string][]byte{}, metadata: map[string]http.Header{}}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	cfg := &config.Config{}
	cfg.Storage.S3 = config.S3Config{
		Endpoint:  server.URL,
		AccessKey: "test",
		SecretKey: "test",
		Bucket:    "exports",
		Region:    "us-east-1",
		Prefix:    "biometric",
	}

	s, err := NewS3Storage(cfg)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	return s, fake
}

func TestS3Storage_RoundTrip(t *testing.T) {
	s, fake := newTestStorage(t)
	ctx := context.Background()
	key := "biometric/imports/tenant-a/3/2024/03/04/a.xlsx"

	if err := s.Upload(ctx, key, bytes.NewReader([]byte("payload"))); err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	if _, ok := fake.objects["/exports/"+key]; !ok {
		t.Fatalf("expected path-style key, have %v", fake.objects)
	}
	meta := fake.metadata["/exports/"+key]
	if meta.Get("X-Amz-Meta-Tenant-Id") != "tenant-a" || meta.Get("X-Amz-Meta-Device-Id") != "3" {
		t.Errorf("expected owner metadata, got %v", meta)
	}

	exists, err := s.Exists(ctx, key)
	if err != nil || !exists {
		t.Fatalf("expected object to exist, got %v, %v", exists, err)
	}

	body, err := s.Download(ctx, key)
	if err != nil {
		t.Fatalf("download failed: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "payload" {
		t.Errorf("unexpected body %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	exists, err = s.Exists(ctx, key)
	if err != nil || exists {
		t.Errorf("expected object gone without error, got %v, %v", exists, err)
	}
}

func TestImportKey(t *testing.T) {
	at := time.Date(2024, 3, 4, 23, 30, 0, 0, time.FixedZone("ICT", 7*3600))

	key := ImportKey("biometric", "tenant-a", 12, at)

	if !strings.HasPrefix(key, "biometric/imports/tenant-a/12/2024/03/04/") {
		t.Errorf("unexpected key layout %q", key)
	}
	if !strings.HasSuffix(key, ".xlsx") {
		t.Errorf("expected xlsx suffix, got %q", key)
	}
	if key == ImportKey("biometric", "tenant-a", 12, at) {
		t.Error("expected unique keys per upload")
	}
}

func TestS3Storage_RejectsKeysOutsideImports(t *testing.T) {
	s, fake := newTestStorage(t)
	ctx := context.Background()

	keys := []string{
		"imports/tenant-a/3/2024/03/04/a.xlsx",
		"biometric/imports/tenant-a/3/a.xlsx",
		"biometric/imports/tenant-a/3/2024/03/04/../../../../../tenant-b/3/2024/03/04/a.xlsx",
		"biometric/imports/tenant-a/x/2024/03/04/a.xlsx",
		"biometric/imports/tenant-a/3/2024/03/04/a.csv",
	}
	for _, key := range keys {
		if err := s.Upload(ctx, key, bytes.NewReader([]byte("payload"))); !apperrors.IsValidation(err) {
			t.Errorf("upload %q: expected validation error, got %v", key, err)
		}
		if _, err := s.Download(ctx, key); !apperrors.IsValidation(err) {
			t.Errorf("download %q: expected validation error, got %v", key, err)
		}
	}
	if fake.requests != 0 {
		t.Errorf("expected no requests to reach the bucket, got %d", fake.requests)
	}
}

func TestParseImportKey(t *testing.T) {
	at := time.Date(2024, 3, 4, 7, 0, 0, 0, time.UTC)
	key := ImportKey("biometric", "tenant-a", 12, at)

	owner, err := ParseImportKey("biometric", key)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner.TenantID != "tenant-a" || owner.DeviceID != 12 {
		t.Errorf("unexpected owner %+v", owner)
	}

	if _, err := ParseImportKey("other", key); err == nil {
		t.Error("expected a key under another prefix to be rejected")
	}
	if _, err := ParseImportKey("", ImportKey("", "tenant-a", 12, at)); err != nil {
		t.Errorf("expected keys without a prefix to parse, got %v", err)
	}
}

func TestCheckImportKey(t *testing.T) {
	key := ImportKey("biometric", "tenant-a", 12, time.Now())

	if err := CheckImportKey("biometric", key, "tenant-a", 12); err != nil {
		t.Errorf("expected owner to match, got %v", err)
	}
	if err := CheckImportKey("biometric", key, "tenant-b", 12); !apperrors.IsValidation(err) {
		t.Errorf("expected another tenant to be refused, got %v", err)
	}
	if err := CheckImportKey("biometric", key, "tenant-a", 13); !apperrors.IsValidation(err) {
		t.Errorf("expected another device to be refused, got %v", err)
	}
}
