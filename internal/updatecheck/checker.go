package updatecheck

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/inconshreveable/go-update"
	"go.uber.org/zap"
	"golang.org/x/mod/semver"
)

const (
	// DefaultCheckInterval is the default interval between update checks (4 hours).
	DefaultCheckInterval = 4 * time.Hour

	// EnvDisableAutoUpdate disables all update checks when set to "true".
	EnvDisableAutoUpdate = "NINEBOX_DISABLE_AUTO_UPDATE"

	// EnvAllowPrereleaseUpdates enables prerelease version comparison when set to "true".
	EnvAllowPrereleaseUpdates = "NINEBOX_ALLOW_PRERELEASE_UPDATES"
)

// Checker polls a release feed and remembers the newest release it saw.
type Checker struct {
	logger        *zap.Logger
	version       string
	checkInterval time.Duration
	feed          *FeedClient
	httpClient    *http.Client

	mu          sync.RWMutex
	versionInfo VersionInfo
	announced   string // latest version already passed to onAvailable
	onAvailable func(VersionInfo)

	checkFunc func(ctx context.Context) (*Release, error)
}

// New creates a checker for the running shell version
func New(logger *zap.Logger, version, feedURL string) *Checker {
	c := &Checker{
		logger:        logger,
		version:       version,
		checkInterval: DefaultCheckInterval,
		feed:          NewFeedClient(logger, feedURL),
		httpClient:    &http.Client{Timeout: 5 * time.Minute},
		versionInfo:   VersionInfo{CurrentVersion: version},
	}
	c.checkFunc = func(ctx context.Context) (*Release, error) {
		return c.feed.GetRelease(ctx, envTrue(EnvAllowPrereleaseUpdates))
	}
	return c
}

// OnUpdateAvailable registers fn to run once for every newer release found
func (c *Checker) OnUpdateAvailable(fn func(VersionInfo)) {
	c.mu.Lock()
	c.onAvailable = fn
	c.mu.Unlock()
}

// Start checks once and then every check interval until ctx ends. Builds
// without a semver version (local builds) and users who opted out are never
// checked.
func (c *Checker) Start(ctx context.Context) {
	switch {
	case envTrue(EnvDisableAutoUpdate):
		c.logger.Info("Update checks disabled", zap.String("env", EnvDisableAutoUpdate))
		return
	case !semver.IsValid(ensureVPrefix(c.version)):
		c.logger.Info("Update checks skipped for development build", zap.String("version", c.version))
		return
	}

	c.logger.Info("Starting update checker",
		zap.String("version", c.version),
		zap.Duration("interval", c.checkInterval))

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Update checker stopped")
			return
		case <-timer.C:
			c.check(ctx)
			timer.Reset(c.checkInterval)
		}
	}
}

// CheckNow performs a synchronous check and returns the result
func (c *Checker) CheckNow(ctx context.Context) *VersionInfo {
	c.check(ctx)
	return c.GetVersionInfo()
}

// GetVersionInfo returns a copy of the last check result
func (c *Checker) GetVersionInfo() *VersionInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info := c.versionInfo
	return &info
}

func (c *Checker) check(ctx context.Context) {
	release, err := c.checkFunc(ctx)
	now := time.Now()

	c.mu.Lock()
	if err != nil {
		// the last known release stays; only the failure is recorded
		c.versionInfo.CheckedAt = &now
		c.versionInfo.CheckError = err.Error()
		c.mu.Unlock()
		c.logger.Debug("Update check failed", zap.Error(err))
		return
	}

	downloadURL, _ := FindAssetURL(release, runtime.GOOS, runtime.GOARCH)
	info := VersionInfo{
		CurrentVersion:  c.version,
		LatestVersion:   release.TagName,
		UpdateAvailable: compareVersions(c.version, release.TagName),
		ReleaseURL:      release.HTMLURL,
		DownloadURL:     downloadURL,
		IsPrerelease:    release.Prerelease,
		CheckedAt:       &now,
	}
	c.versionInfo = info

	var notify func(VersionInfo)
	if info.UpdateAvailable && c.announced != info.LatestVersion {
		c.announced = info.LatestVersion
		notify = c.onAvailable
	}
	c.mu.Unlock()

	if !info.UpdateAvailable {
		c.logger.Debug("Running latest version", zap.String("version", c.version))
		return
	}
	c.logger.Info("Update available",
		zap.String("current", c.version),
		zap.String("latest", info.LatestVersion),
		zap.String("url", info.ReleaseURL))
	if notify != nil {
		notify(info)
	}
}

func envTrue(name string) bool {
	return strings.EqualFold(os.Getenv(name), "true")
}

// Apply downloads the binary at downloadURL and replaces targetPath with it.
// An empty targetPath replaces the running executable. A failed replacement
// is rolled back.
func (c *Checker) Apply(ctx context.Context, downloadURL, targetPath string) error {
	if downloadURL == "" {
		return fmt.Errorf("no download URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download update: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	if err := update.Apply(resp.Body, update.Options{TargetPath: targetPath}); err != nil {
		if rollbackErr := update.RollbackError(err); rollbackErr != nil {
			return fmt.Errorf("update failed and rollback failed: %w (rollback: %v)", err, rollbackErr)
		}
		return fmt.Errorf("update failed: %w", err)
	}

	c.logger.Info("Update applied", zap.String("target", targetPath))
	return nil
}

// FindAssetURL picks the release asset built for goos/goarch
func FindAssetURL(release *Release, goos, goarch string) (string, error) {
	archName := goarch
	if archName == "amd64" {
		archName = "x86_64"
	}

	if goos == "darwin" {
		for _, asset := range release.Assets {
			name := strings.ToLower(asset.Name)
			if strings.Contains(name, "macos") && strings.Contains(name, "universal") {
				return asset.BrowserDownloadURL, nil
			}
		}
	}

	for _, asset := range release.Assets {
		name := strings.ToLower(asset.Name)
		if strings.Contains(name, goos) && (strings.Contains(name, archName) || strings.Contains(name, goarch)) {
			return asset.BrowserDownloadURL, nil
		}
	}

	return "", fmt.Errorf("no asset found for %s/%s", goos, goarch)
}

// compareVersions reports whether latest is newer than current
func compareVersions(current, latest string) bool {
	return semver.Compare(ensureVPrefix(current), ensureVPrefix(latest)) < 0
}

func ensureVPrefix(version string) string {
	if len(version) > 0 && version[0] != 'v' {
		return "v" + version
	}
	return version
}

// SetCheckInterval sets the interval between update checks.
func (c *Checker) SetCheckInterval(interval time.Duration) {
	if interval > 0 {
		c.checkInterval = interval
	}
}

// SetCheckFunc replaces the feed lookup. Used by tests.
func (c *Checker) SetCheckFunc(fn func(ctx context.Context) (*Release, error)) {
	c.checkFunc = fn
}
