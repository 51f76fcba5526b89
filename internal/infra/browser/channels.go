package browser

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
)

// channelPaths lists well-known install locations per channel and OS.
var channelPaths = map[string]map[string][]string{
	"chrome": {
		"darwin":  {"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"},
		"linux":   {"/opt/google/chrome/chrome", "/usr/bin/google-chrome-stable", "/usr/bin/google-chrome"},
		"windows": {`Google\Chrome\Application\chrome.exe`},
	},
	"chrome-beta": {
		"darwin":  {"/Applications/Google Chrome Beta.app/Contents/MacOS/Google Chrome Beta"},
		"linux":   {"/opt/google/chrome-beta/chrome", "/usr/bin/google-chrome-beta"},
		"windows": {`Google\Chrome Beta\Application\chrome.exe`},
	},
	"chrome-canary": {
		"darwin":  {"/Applications/Google Chrome Canary.app/Contents/MacOS/Google Chrome Canary"},
		"linux":   {"/opt/google/chrome-unstable/chrome", "/usr/bin/google-chrome-unstable"},
		"windows": {`Google\Chrome SxS\Application\chrome.exe`},
	},
	"msedge": {
		"darwin":  {"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge"},
		"linux":   {"/opt/microsoft/msedge/msedge", "/usr/bin/microsoft-edge-stable"},
		"windows": {`Microsoft\Edge\Application\msedge.exe`},
	},
	"msedge-beta": {
		"darwin":  {"/Applications/Microsoft Edge Beta.app/Contents/MacOS/Microsoft Edge Beta"},
		"linux":   {"/opt/microsoft/msedge-beta/msedge", "/usr/bin/microsoft-edge-beta"},
		"windows": {`Microsoft\Edge Beta\Application\msedge.exe`},
	},
	"msedge-dev": {
		"darwin":  {"/Applications/Microsoft Edge Dev.app/Contents/MacOS/Microsoft Edge Dev"},
		"linux":   {"/opt/microsoft/msedge-dev/msedge", "/usr/bin/microsoft-edge-dev"},
		"windows": {`Microsoft\Edge Dev\Application\msedge.exe`},
	},
}

// channelNames returns the supported channels in a stable order.
func channelNames() []string {
	names := make([]string, 0, len(channelPaths))
	for name := range channelPaths {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// candidatePaths returns executable locations to try for channel on goos.
// Windows entries are relative to the program files directories.
func candidatePaths(channel, goos string) []string {
	paths := channelPaths[channel][goos]
	if goos != "windows" {
		return paths
	}
	var roots []string
	for _, key := range []string{"LOCALAPPDATA", "PROGRAMFILES", "PROGRAMFILES(X86)"} {
		if root := os.Getenv(key); root != "" {
			roots = append(roots, root)
		}
	}
	out := make([]string, 0, len(paths)*len(roots))
	for _, root := range roots {
		for _, rel := range paths {
			out = append(out, filepath.Join(root, rel))
		}
	}
	return out
}

// findExecutable returns the first existing executable for channel, or ""
// when none is installed.
func findExecutable(channel string) string {
	for _, path := range candidatePaths(channel, runtime.GOOS) {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path
		}
	}
	return ""
}
