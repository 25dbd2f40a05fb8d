package jobs

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"engagely/internal/config"
)

const (
	// GeoLite databases are published weekly
	GeoDBMaxAge = 7 * 24 * time.Hour
	// MaxMind download URL template
	MaxMindDownloadURL = "https://download.maxmind.com/app/geoip_download?edition_id=GeoLite2-City&license_key=%s&suffix=tar.gz"
)

// Reloader reopens the local geolocation database after a download.
type Reloader interface {
	ReloadLocal() error
}

// GeoDBUpdaterJob keeps the local GeoLite2 database fresh.
type GeoDBUpdaterJob struct {
	path        string
	licenseKey  string
	downloadURL string
	client      *http.Client
	reloader    Reloader
	logger      *slog.Logger
}

// NewGeoDBUpdaterJob creates the updater. reloader may be nil.
func NewGeoDBUpdaterJob(cfg *config.Config, reloader Reloader, logger *slog.Logger) *GeoDBUpdaterJob {
	path := cfg.GeoDBPath
	if path == "" {
		path = filepath.Join("storage", "GeoLite2-City.mmdb")
	}
	return &GeoDBUpdaterJob{
		path:        path,
		licenseKey:  cfg.MaxMindLicenseKey,
		downloadURL: MaxMindDownloadURL,
		client:      &http.Client{Timeout: 5 * time.Minute},
		reloader:    reloader,
		logger:      logger,
	}
}

// WithDownloadURL overrides the URL template; it must contain one %s for the
// license key.
func (j *GeoDBUpdaterJob) WithDownloadURL(url string) *GeoDBUpdaterJob {
	j.downloadURL = url
	return j
}

func (j *GeoDBUpdaterJob) Name() string { return "geodb_updater" }

// Configured reports whether a license key is set.
func (j *GeoDBUpdaterJob) Configured() bool {
	return j.licenseKey != ""
}

// LastUpdate returns the modification time of the database file, or the zero
// time when it does not exist.
func (j *GeoDBUpdaterJob) LastUpdate() time.Time {
	info, err := os.Stat(j.path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// Run downloads a new database when the current one is older than GeoDBMaxAge.
func (j *GeoDBUpdaterJob) Run(ctx context.Context) error {
	if !j.Configured() {
		j.logger.Debug("MaxMind license key not configured, skipping GeoLite update")
		return nil
	}

	lastUpdate := j.LastUpdate()
	if time.Since(lastUpdate) < GeoDBMaxAge {
		j.logger.Debug("GeoLite database is up to date",
			slog.Time("last_update", lastUpdate),
			slog.Duration("age", time.Since(lastUpdate)))
		return nil
	}

	j.logger.Info("Starting GeoLite database update", slog.Time("last_update", lastUpdate))
	if err := j.download(ctx); err != nil {
		return fmt.Errorf("geolite update: %w", err)
	}

	if j.reloader != nil {
		if err := j.reloader.ReloadLocal(); err != nil {
			j.logger.Error("Failed to reload GeoLite database", slog.Any("error", err))
		}
	}

	j.logger.Info("GeoLite database updated successfully", slog.String("path", j.path))
	return nil
}

func (j *GeoDBUpdaterJob) download(ctx context.Context) error {
	dir := filepath.Dir(j.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(j.downloadURL, j.licenseKey), nil)
	if err != nil {
		return err
	}
	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download GeoLite database: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %d", resp.StatusCode)
	}

	// Extract next to the target so the rename is atomic
	tmp, err := os.CreateTemp(dir, ".geolite-*.mmdb")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := extractMMDB(resp.Body, tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to extract database: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), j.path)
}

// extractMMDB copies the first .mmdb entry of a tar.gz stream into dst.
func extractMMDB(r io.Reader, dst io.Writer) error {
	gzr, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzr.Close()

	tr := tar.NewReader(gzr)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar: %w", err)
		}

		if strings.HasSuffix(header.Name, ".mmdb") {
			if _, err := io.Copy(dst, tr); err != nil {
				return fmt.Errorf("failed to extract file: %w", err)
			}
			return nil
		}
	}

	return errors.New("no .mmdb file found in archive")
}
