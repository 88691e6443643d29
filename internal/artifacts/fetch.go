package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// Fetcher downloads versioned artifact bundles from the artifact
// registry over HTTP. Bundles are laid out as
// {base}/bundles/{version}/{file}; {base}/bundles/latest reports the
// newest version.
type Fetcher struct {
	base string
	rest *resty.Client
}

// NewFetcher builds a fetcher for the given registry base URL.
func NewFetcher(base string, timeout time.Duration) *Fetcher {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(10 * time.Second) // default fallback
	}
	return &Fetcher{base: base, rest: r}
}

type latestResp struct {
	Version string `json:"version"`
}

// LatestVersion asks the registry which bundle version is current.
func (f *Fetcher) LatestVersion(ctx context.Context) (string, error) {
	resp := &latestResp{}
	r, err := f.rest.R().
		SetContext(ctx).
		SetResult(resp).
		Get(f.base + "/bundles/latest")
	if err != nil {
		return "", fmt.Errorf("fetch latest version: %w", err)
	}
	if r.IsError() {
		return "", fmt.Errorf("fetch latest version: registry returned %s", r.Status())
	}
	if resp.Version == "" {
		return "", fmt.Errorf("registry reported empty latest version")
	}
	return resp.Version, nil
}

// Fetch downloads every bundle file for a version into destDir.
// The models file is required; the optional files are skipped when the
// registry does not have them.
func (f *Fetcher) Fetch(ctx context.Context, version, destDir string) error {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	required := map[string]bool{ModelsFile: true}
	for _, name := range []string{ManifestFile, ModelsFile, CalibrationFile, ProfilesFile} {
		url := fmt.Sprintf("%s/bundles/%s/%s", f.base, version, name)
		r, err := f.rest.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", name, err)
		}
		if r.IsError() {
			if required[name] {
				return fmt.Errorf("fetch %s: registry returned %s", name, r.Status())
			}
			log.Debug().Str("file", name).Str("version", version).Msg("optional bundle file not in registry")
			continue
		}
		if err := os.WriteFile(filepath.Join(destDir, name), r.Body(), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}

	log.Info().Str("version", version).Str("dir", destDir).Msg("artifact bundle fetched")
	return nil
}
