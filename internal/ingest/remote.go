package ingest

import (
	"archive/zip"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Extensions accepted by LoadBoundary and LoadCandidates, in preference order
// when picking a file out of an archive.
var (
	BoundaryExts  = []string{".shp", ".geojson", ".json", ".csv", ".txt"}
	CandidateExts = []string{".xlsx", ".csv", ".txt"}
)

// Fetcher makes boundary and candidate sources available as local files.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	retries int
}

// NewFetcher creates a Fetcher. A zero timeout means 60 seconds.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		retries: 3,
	}
}

// Resolve returns a local path for src. Local files are returned unchanged.
// http(s) and ftp URLs are downloaded into a temporary directory. A .zip
// archive is extracted and the first file whose extension is in exts is
// returned. cleanup removes anything Resolve created and is never nil.
func (f *Fetcher) Resolve(ctx context.Context, src string, exts []string) (string, func(), error) {
	noop := func() {}

	local := src
	cleanup := noop
	if u, err := url.Parse(src); err == nil && (u.Scheme == "http" || u.Scheme == "https" || u.Scheme == "ftp") {
		dir, err := os.MkdirTemp("", "parcel-screen-*")
		if err != nil {
			return "", noop, eris.Wrap(err, "ingest: create temp dir")
		}
		cleanup = func() { _ = os.RemoveAll(dir) }

		name := path.Base(u.Path)
		if name == "." || name == "/" || name == "" {
			name = "download"
		}
		local = filepath.Join(dir, name)

		if u.Scheme == "ftp" {
			err = f.downloadFTP(ctx, src, local)
		} else {
			err = f.downloadHTTP(ctx, src, local)
		}
		if err != nil {
			cleanup()
			return "", noop, err
		}
	}

	if !strings.EqualFold(filepath.Ext(local), ".zip") {
		return local, cleanup, nil
	}

	dir, err := os.MkdirTemp("", "parcel-screen-zip-*")
	if err != nil {
		cleanup()
		return "", noop, eris.Wrap(err, "ingest: create temp dir")
	}
	prev := cleanup
	cleanup = func() {
		_ = os.RemoveAll(dir)
		prev()
	}

	files, err := extractZIP(local, dir)
	if err != nil {
		cleanup()
		return "", noop, err
	}
	picked := pickByExtension(files, exts)
	if picked == "" {
		cleanup()
		return "", noop, eris.Errorf("ingest: archive %s has no %s file", src, strings.Join(exts, "/"))
	}
	return picked, cleanup, nil
}

func (f *Fetcher) downloadHTTP(ctx context.Context, rawURL, dest string) error {
	var lastErr error
	for attempt := range f.retries {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return eris.Wrap(ctx.Err(), "ingest: download cancelled")
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
		}

		retry, err := f.tryHTTP(ctx, rawURL, dest)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			break
		}
		zap.L().Warn("download failed, retrying",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}
	return lastErr
}

// tryHTTP downloads once and reports whether a failure is worth retrying.
func (f *Fetcher) tryHTTP(ctx context.Context, rawURL, dest string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return false, eris.Wrap(err, "ingest: build request")
	}
	req.Header.Set("User-Agent", "parcel-screen/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return ctx.Err() == nil, eris.Wrapf(err, "ingest: get %s", rawURL)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return retry, eris.Errorf("ingest: get %s returned status %d", rawURL, resp.StatusCode)
	}
	return false, writeFile(dest, resp.Body)
}

// parseFTPURL extracts host (with port) and path from an FTP URL.
func parseFTPURL(rawURL string) (host string, filePath string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", eris.Wrap(err, "ingest: parse ftp url")
	}
	if u.Scheme != "ftp" {
		return "", "", eris.Errorf("ingest: expected ftp scheme, got %q", u.Scheme)
	}

	host = u.Host
	if _, _, splitErr := net.SplitHostPort(host); splitErr != nil {
		host = net.JoinHostPort(host, "21")
	}
	if u.Path == "" || u.Path == "/" {
		return "", "", eris.New("ingest: empty path in ftp url")
	}
	return host, u.Path, nil
}

func (f *Fetcher) downloadFTP(ctx context.Context, rawURL, dest string) error {
	host, filePath, err := parseFTPURL(rawURL)
	if err != nil {
		return err
	}

	zap.L().Debug("ftp: connecting", zap.String("host", host), zap.String("path", filePath))

	conn, err := ftp.Dial(host, ftp.DialWithTimeout(f.timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return eris.Wrap(err, "ingest: ftp dial")
	}
	defer conn.Quit() //nolint:errcheck

	if err := conn.Login("anonymous", "anonymous@"); err != nil {
		return eris.Wrap(err, "ingest: ftp login")
	}

	resp, err := conn.Retr(filePath)
	if err != nil {
		return eris.Wrapf(err, "ingest: ftp retrieve %s", filePath)
	}
	defer resp.Close() //nolint:errcheck

	return writeFile(dest, resp)
}

func writeFile(dest string, r io.Reader) error {
	out, err := os.Create(dest)
	if err != nil {
		return eris.Wrap(err, "ingest: create file")
	}
	if _, err := io.Copy(out, r); err != nil {
		_ = out.Close()
		return eris.Wrap(err, "ingest: write file")
	}
	return eris.Wrap(out.Close(), "ingest: close file")
}

// extractZIP extracts every file in the archive to destDir and returns the
// extracted paths in archive order.
func extractZIP(zipPath, destDir string) ([]string, error) {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open zip")
	}
	defer r.Close() //nolint:errcheck

	var extracted []string
	for _, f := range r.File {
		p, err := extractZIPEntry(f, destDir)
		if err != nil {
			return extracted, err
		}
		if p != "" {
			extracted = append(extracted, p)
		}
	}
	return extracted, nil
}

// extractZIPEntry extracts one entry. Directories return "".
func extractZIPEntry(f *zip.File, destDir string) (string, error) {
	// Sanitize against zip slip
	destPath := filepath.Join(destDir, f.Name)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", eris.Errorf("ingest: illegal zip path %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		return "", eris.Wrap(os.MkdirAll(destPath, 0o755), "ingest: create directory")
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return "", eris.Wrap(err, "ingest: create parent directory")
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrap(err, "ingest: open zip entry")
	}
	defer rc.Close() //nolint:errcheck

	if err := writeFile(destPath, rc); err != nil {
		return "", err
	}
	return destPath, nil
}

// pickByExtension returns the first file matching the earliest extension in
// exts. macOS resource forks are ignored.
func pickByExtension(files []string, exts []string) string {
	for _, ext := range exts {
		for _, f := range files {
			if strings.Contains(filepath.ToSlash(f), "__MACOSX/") {
				continue
			}
			if strings.EqualFold(filepath.Ext(f), ext) {
				return f
			}
		}
	}
	return ""
}

