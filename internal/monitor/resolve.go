package monitor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ResolveExecutable locates the backend binary. An explicit override must exist;
// otherwise the locations a packaged shell ships the backend in are tried
// before falling back to PATH.
func ResolveExecutable(override, name string) (string, error) {
	if override = strings.TrimSpace(override); override != "" {
		if resolved, ok := resolveExecutableCandidate(override); ok {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: %s is not an executable file", ErrExecutableNotFound, override)
	}

	if runtime.GOOS == "windows" && !strings.HasSuffix(strings.ToLower(name), ".exe") {
		name += ".exe"
	}

	candidates := candidatePaths(name)
	for _, candidate := range candidates {
		if resolved, ok := resolveExecutableCandidate(candidate); ok {
			return resolved, nil
		}
	}

	if resolved, err := exec.LookPath(name); err == nil {
		return resolved, nil
	}

	return "", fmt.Errorf("%w: %s not found in %v or PATH", ErrExecutableNotFound, name, candidates)
}

func candidatePaths(name string) []string {
	var candidates []string
	seen := make(map[string]struct{})
	add := func(path string) {
		clean := filepath.Clean(path)
		if _, ok := seen[clean]; ok {
			return
		}
		seen[clean] = struct{}{}
		candidates = append(candidates, clean)
	}

	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		execDir := filepath.Dir(execPath)
		add(filepath.Join(execDir, name))
		add(filepath.Join(execDir, "backend", name))
		add(filepath.Join(execDir, "resources", "backend", name))
		// macOS bundle: Contents/MacOS/<shell> -> Contents/Resources/backend/<name>
		add(filepath.Join(filepath.Dir(execDir), "Resources", "backend", name))
	}

	add(filepath.Join(".", name))
	return candidates
}

func resolveExecutableCandidate(path string) (string, bool) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return "", false
	}

	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return "", false
	}

	return abs, true
}
