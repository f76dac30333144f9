package updatecheck

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestChecker_CheckNow(t *testing.T) {
	logger := zaptest.NewLogger(t)
	checker := New(logger, "v1.0.0", "http://unused.invalid")

	mockRelease := &Release{
		TagName: "v1.1.0",
		HTMLURL: "https://github.com/test/repo/releases/tag/v1.1.0",
		Assets: []Asset{
			{Name: "ninebox-linux-x86_64", BrowserDownloadURL: "https://example.com/linux"},
		},
	}
	checker.SetCheckFunc(func(context.Context) (*Release, error) {
		return mockRelease, nil
	})

	info := checker.CheckNow(context.Background())
	if info == nil {
		t.Fatal("CheckNow returned nil")
		return
	}

	if info.CurrentVersion != "v1.0.0" {
		t.Errorf("CurrentVersion = %q, want %q", info.CurrentVersion, "v1.0.0")
	}
	if info.LatestVersion != "v1.1.0" {
		t.Errorf("LatestVersion = %q, want %q", info.LatestVersion, "v1.1.0")
	}
	if !info.UpdateAvailable {
		t.Error("UpdateAvailable = false, want true")
	}
	if info.CheckedAt == nil {
		t.Error("CheckedAt not set")
	}
}

func TestChecker_CheckNow_NoUpdate(t *testing.T) {
	checker := New(zaptest.NewLogger(t), "v1.1.0", "http://unused.invalid")
	checker.SetCheckFunc(func(context.Context) (*Release, error) {
		return &Release{TagName: "v1.1.0"}, nil
	})

	info := checker.CheckNow(context.Background())
	if info.UpdateAvailable {
		t.Error("UpdateAvailable = true, want false (same version)")
	}
}

func TestChecker_CheckError_KeepsLastRelease(t *testing.T) {
	checker := New(zaptest.NewLogger(t), "v1.0.0", "http://unused.invalid")

	checker.SetCheckFunc(func(context.Context) (*Release, error) {
		return &Release{TagName: "v1.2.0"}, nil
	})
	checker.CheckNow(context.Background())

	checker.SetCheckFunc(func(context.Context) (*Release, error) {
		return nil, errors.New("network down")
	})
	info := checker.CheckNow(context.Background())

	assert.Equal(t, "v1.2.0", info.LatestVersion)
	assert.True(t, info.UpdateAvailable)
	assert.Equal(t, "network down", info.CheckError)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		current string
		latest  string
		want    bool
	}{
		{"v1.0.0", "v1.1.0", true},
		{"v1.1.0", "v1.0.0", false},
		{"v1.0.0", "v1.0.0", false},
		{"1.0.0", "1.1.0", true}, // Without v prefix
		{"v0.11.1", "v0.11.3", true},
		{"v2.0.0-rc.1", "v2.0.0", true},
	}

	for _, tc := range tests {
		t.Run(tc.current+"_vs_"+tc.latest, func(t *testing.T) {
			got := compareVersions(tc.current, tc.latest)
			if got != tc.want {
				t.Errorf("compareVersions(%q, %q) = %v, want %v", tc.current, tc.latest, got, tc.want)
			}
		})
	}
}

func TestChecker_StartSkipsDevelopmentBuilds(t *testing.T) {
	checker := New(zap.NewNop(), "development", "http://unused.invalid")
	called := false
	checker.SetCheckFunc(func(context.Context) (*Release, error) {
		called = true
		return nil, nil
	})

	done := make(chan struct{})
	go func() {
		checker.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return for a development build")
	}
	assert.False(t, called)
}

func TestChecker_StartDisabledByEnv(t *testing.T) {
	t.Setenv(EnvDisableAutoUpdate, "true")
	checker := New(zap.NewNop(), "v1.0.0", "http://unused.invalid")

	done := make(chan struct{})
	go func() {
		checker.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return when disabled")
	}
}

func TestFeedClient_SingleRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"tag_name":"v3.4.5","html_url":"https://example.com/r","prerelease":false}`)
	}))
	defer srv.Close()

	release, err := NewFeedClient(zap.NewNop(), srv.URL).GetRelease(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "v3.4.5", release.TagName)
	assert.Equal(t, "https://example.com/r", release.HTMLURL)
}

func TestFeedClient_ReleaseList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `[
			{"tag_name":"v2.0.0","draft":true},
			{"tag_name":"v1.9.0-beta.1","prerelease":true},
			{"tag_name":"v1.8.0"}
		]`)
	}))
	defer srv.Close()

	client := NewFeedClient(zap.NewNop(), srv.URL)

	stable, err := client.GetRelease(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "v1.8.0", stable.TagName)

	pre, err := client.GetRelease(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "v1.9.0-beta.1", pre.TagName)
}

func TestFeedClient_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			http.NotFound(w, r)
		case "/empty":
			fmt.Fprint(w, `[]`)
		default:
			fmt.Fprint(w, `{not json`)
		}
	}))
	defer srv.Close()

	for _, path := range []string{"/missing", "/empty", "/garbage"} {
		_, err := NewFeedClient(zap.NewNop(), srv.URL+path).GetRelease(context.Background(), false)
		assert.Error(t, err, path)
	}
}

func TestFindAssetURL(t *testing.T) {
	release := &Release{Assets: []Asset{
		{Name: "ninebox-macos-universal.zip", BrowserDownloadURL: "mac"},
		{Name: "ninebox-linux-x86_64", BrowserDownloadURL: "linux-amd64"},
		{Name: "ninebox-linux-arm64", BrowserDownloadURL: "linux-arm64"},
		{Name: "ninebox-windows-x86_64.exe", BrowserDownloadURL: "win"},
	}}

	tests := []struct {
		goos, goarch, want string
	}{
		{"darwin", "arm64", "mac"},
		{"linux", "amd64", "linux-amd64"},
		{"linux", "arm64", "linux-arm64"},
		{"windows", "amd64", "win"},
	}
	for _, tc := range tests {
		got, err := FindAssetURL(release, tc.goos, tc.goarch)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s/%s", tc.goos, tc.goarch)
	}

	_, err := FindAssetURL(release, "freebsd", "amd64")
	assert.Error(t, err)
}

func TestChecker_Apply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/bad" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		fmt.Fprint(w, "new binary")
	}))
	defer srv.Close()

	target := filepath.Join(t.TempDir(), "ninebox-shell")
	require.NoError(t, os.WriteFile(target, []byte("old binary"), 0755))

	checker := New(zap.NewNop(), "v1.0.0", "http://unused.invalid")
	require.NoError(t, checker.Apply(context.Background(), srv.URL+"/bin", target))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "new binary", string(data))

	assert.Error(t, checker.Apply(context.Background(), srv.URL+"/bad", target))
	assert.Error(t, checker.Apply(context.Background(), "", target))
}

func TestChecker_OnUpdateAvailableOncePerVersion(t *testing.T) {
	checker := New(zaptest.NewLogger(t), "v1.0.0", "http://unused.invalid")
	tag := "v1.1.0"
	checker.SetCheckFunc(func(context.Context) (*Release, error) {
		return &Release{TagName: tag}, nil
	})

	var announced []string
	checker.OnUpdateAvailable(func(info VersionInfo) {
		announced = append(announced, info.LatestVersion)
	})

	checker.CheckNow(context.Background())
	checker.CheckNow(context.Background())
	tag = "v1.2.0"
	checker.CheckNow(context.Background())

	assert.Equal(t, []string{"v1.1.0", "v1.2.0"}, announced)
}

func TestChecker_StartChecksImmediately(t *testing.T) {
	checker := New(zaptest.NewLogger(t), "v1.0.0", "http://unused.invalid")
	checker.SetCheckInterval(time.Hour)

	checked := make(chan struct{}, 1)
	checker.SetCheckFunc(func(context.Context) (*Release, error) {
		select {
		case checked <- struct{}{}:
		default:
		}
		return &Release{TagName: "v1.0.0"}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Start(ctx)
		close(done)
	}()

	select {
	case <-checked:
	case <-time.After(2 * time.Second):
		t.Fatal("no check ran at start")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}
}
