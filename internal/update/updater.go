// Package update fetches runvault release binaries from GitHub and swaps
// the running executable in place, with checksum verification and rollback.
package update

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

const userAgent = "runvault-updater"

// errNotFound marks a 404 from the release API.
var errNotFound = errors.New("not found")

// Config selects the release source.
type Config struct {
	GitHubOwner string        // repository owner
	GitHubRepo  string        // repository name
	BinaryName  string        // defaults to "runvault"
	Timeout     time.Duration // API timeout, defaults to 30s
	BaseURL     string        // API base, overridden in tests
}

// Asset is one downloadable file attached to a release.
type Asset struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	DownloadURL string `json:"browser_download_url"`
}

// ReleaseInfo describes a published release and its assets.
type ReleaseInfo struct {
	TagName     string    `json:"tag_name"`
	Name        string    `json:"name"`
	PublishedAt time.Time `json:"published_at"`
	Assets      []Asset   `json:"assets"`
}

// Updater checks for and downloads new release binaries.
type Updater struct {
	config Config
	client *http.Client
}

// NewUpdater returns an updater for the configured repository.
func NewUpdater(cfg Config) *Updater {
	if cfg.BinaryName == "" {
		cfg.BinaryName = "runvault"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.github.com"
	}

	return &Updater{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

// CheckLatest fetches the newest release.
func (u *Updater) CheckLatest() (*ReleaseInfo, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/releases/latest",
		u.config.BaseURL, u.config.GitHubOwner, u.config.GitHubRepo)
	return u.fetchRelease(url)
}

// CheckVersion fetches the release published under the given tag.
func (u *Updater) CheckVersion(version string) (*ReleaseInfo, error) {
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	url := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s",
		u.config.BaseURL, u.config.GitHubOwner, u.config.GitHubRepo, version)
	return u.fetchRelease(url)
}

func (u *Updater) fetchRelease(url string) (*ReleaseInfo, error) {
	body, err := u.get(url, "application/vnd.github.v3+json")
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("release not found")
	}
	if err != nil {
		return nil, fmt.Errorf("fetch release: %w", err)
	}

	var release ReleaseInfo
	if err := json.Unmarshal(body, &release); err != nil {
		return nil, fmt.Errorf("decode release: %w", err)
	}
	return &release, nil
}

// get issues a GET with the updater's user agent and returns the body.
func (u *Updater) get(url, accept string) ([]byte, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// GetAssetName returns the release asset name for an OS and architecture.
func GetAssetName(goos, goarch string) string {
	name := fmt.Sprintf("runvault-%s-%s", goos, goarch)
	if goos == "windows" {
		name += ".exe"
	}
	return name
}

// FindAsset returns the binary asset for the given OS and architecture.
func (r *ReleaseInfo) FindAsset(goos, goarch string) (*Asset, error) {
	assetName := GetAssetName(goos, goarch)
	for i := range r.Assets {
		if r.Assets[i].Name == assetName {
			return &r.Assets[i], nil
		}
	}
	return nil, fmt.Errorf("asset %q not found in release %s", assetName, r.TagName)
}

// FindChecksums returns the checksums.txt asset of the release.
func (r *ReleaseInfo) FindChecksums() (*Asset, error) {
	for i := range r.Assets {
		if r.Assets[i].Name == "checksums.txt" {
			return &r.Assets[i], nil
		}
	}
	return nil, fmt.Errorf("checksums.txt not found in release %s", r.TagName)
}

// ProgressFunc receives download progress updates.
type ProgressFunc func(downloaded, total int64)

// Download fetches the asset into a temporary file and returns its path.
// The caller removes the file when done with it.
func (u *Updater) Download(asset *Asset, progressFn ProgressFunc) (string, error) {
	req, err := http.NewRequest(http.MethodGet, asset.DownloadURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	// Binaries are large; the API timeout is too tight for them.
	client := &http.Client{Timeout: 10 * time.Minute}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: status %d", resp.StatusCode)
	}

	tmpFile, err := os.CreateTemp("", "runvault-update-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	var total int64
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	} else if asset.Size > 0 {
		total = asset.Size
	}

	var reader io.Reader = resp.Body
	if progressFn != nil {
		reader = &progressReader{reader: resp.Body, total: total, progressFn: progressFn}
	}

	if _, err := io.Copy(tmpFile, reader); err != nil {
		tmpFile.Close()
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpFile.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return tmpFile.Name(), nil
}

// progressReader reports bytes read through it.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	progressFn ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	r.downloaded += int64(n)
	if r.progressFn != nil {
		r.progressFn(r.downloaded, r.total)
	}
	return n, err
}

// ParseChecksums parses checksums.txt content, one "<sha256>  <filename>"
// entry per line.
func ParseChecksums(content string) (map[string]string, error) {
	checksums := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(content))

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, "  ", 2)
		if len(parts) != 2 {
			parts = strings.Fields(line)
			if len(parts) != 2 {
				continue
			}
		}
		checksums[strings.TrimSpace(parts[1])] = strings.TrimSpace(parts[0])
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan checksums: %w", err)
	}
	return checksums, nil
}

// CalculateChecksum returns the hex SHA256 of a file.
func CalculateChecksum(filePath string) (string, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("calculate hash: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyChecksum checks a file against an expected hex SHA256.
func VerifyChecksum(filePath, expectedHash string) error {
	actualHash, err := CalculateChecksum(filePath)
	if err != nil {
		return err
	}
	if !strings.EqualFold(actualHash, expectedHash) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expectedHash, actualHash)
	}
	return nil
}

// DownloadChecksums fetches and parses the release's checksums file.
func (u *Updater) DownloadChecksums(release *ReleaseInfo) (map[string]string, error) {
	asset, err := release.FindChecksums()
	if err != nil {
		return nil, err
	}
	body, err := u.get(asset.DownloadURL, "")
	if err != nil {
		return nil, fmt.Errorf("download checksums: %w", err)
	}
	return ParseChecksums(string(body))
}

// VerifyDownload checks a downloaded asset against the release checksums.
func (u *Updater) VerifyDownload(filePath, assetName string, release *ReleaseInfo) error {
	checksums, err := u.DownloadChecksums(release)
	if err != nil {
		return err
	}
	expected, ok := checksums[assetName]
	if !ok {
		return fmt.Errorf("checksum for %q not found", assetName)
	}
	return VerifyChecksum(filePath, expected)
}
