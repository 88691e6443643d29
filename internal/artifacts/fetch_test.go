package artifacts

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFetcher_LatestVersion(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bundles/latest", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"version": "v3"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	f := NewFetcher(srv.URL, 2*time.Second)
	version, err := f.LatestVersion(context.Background())
	if err != nil {
		t.Fatalf("LatestVersion: %v", err)
	}
	if version != "v3" {
		t.Errorf("got %q, want v3", version)
	}
}

func TestFetcher_LatestVersionErrors(t *testing.T) {
	t.Run("registry error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer srv.Close()

		if _, err := NewFetcher(srv.URL, time.Second).LatestVersion(context.Background()); err == nil {
			t.Error("expected error on registry failure")
		}
	})

	t.Run("empty version", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		if _, err := NewFetcher(srv.URL, time.Second).LatestVersion(context.Background()); err == nil {
			t.Error("expected error for empty version in response")
		}
	})
}

func TestFetcher_Fetch(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bundles/v3/"+ManifestFile, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"version": "v3"}`))
	})
	mux.HandleFunc("/bundles/v3/"+ModelsFile, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modelsFixture))
	})
	// Calibration and profiles deliberately absent: the mux 404s them.
	srv := httptest.NewServer(mux)
	defer srv.Close()

	dir := filepath.Join(t.TempDir(), "bundle")
	f := NewFetcher(srv.URL, 2*time.Second)
	if err := f.Fetch(context.Background(), "v3", dir); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, ModelsFile)); err != nil {
		t.Errorf("models file not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, ManifestFile)); err != nil {
		t.Errorf("manifest file not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, CalibrationFile)); !os.IsNotExist(err) {
		t.Error("absent optional file should be skipped, not written")
	}

	// The fetched bundle is directly loadable.
	b, err := Load(dir)
	if err != nil {
		t.Fatalf("Load fetched bundle: %v", err)
	}
	if b.Manifest.Version != "v3" || len(b.Handles) != 2 {
		t.Errorf("unexpected bundle contents: version=%q handles=%d", b.Manifest.Version, len(b.Handles))
	}
}

func TestFetcher_FetchRequiresModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, time.Second)
	if err := f.Fetch(context.Background(), "v1", t.TempDir()); err == nil {
		t.Error("expected error when the registry has no models file")
	}
}
