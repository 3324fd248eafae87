package platform

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
)

// Platform represents the detected operating system flavour.
type Platform string

const (
	PlatformLinux   Platform = "linux"
	PlatformWSL     Platform = "wsl"
	PlatformMacOS   Platform = "macos"
	PlatformUnknown Platform = "unknown"
)

// DisplayServer is the graphical session type windows are resolved against.
type DisplayServer string

const (
	DisplayX11      DisplayServer = "x11"
	DisplayXWayland DisplayServer = "xwayland"
	DisplayWayland  DisplayServer = "wayland"
	DisplayNone     DisplayServer = "none"
)

var (
	detectOnce       sync.Once
	detectedPlatform Platform
)

// getenv and readFile are swapped in tests.
var (
	getenv   = os.Getenv
	readFile = os.ReadFile
)

// Detect returns the current platform, caching the result.
func Detect() Platform {
	detectOnce.Do(func() {
		detectedPlatform = detectPlatform()
	})
	return detectedPlatform
}

func detectPlatform() Platform {
	switch runtime.GOOS {
	case "darwin":
		return PlatformMacOS
	case "linux":
		if getenv("WSL_DISTRO_NAME") != "" {
			return PlatformWSL
		}
		if version, err := readFile("/proc/version"); err == nil &&
			strings.Contains(strings.ToLower(string(version)), "microsoft") {
			return PlatformWSL
		}
		return PlatformLinux
	default:
		return PlatformUnknown
	}
}

// String returns a human-readable platform name.
func (p Platform) String() string {
	switch p {
	case PlatformLinux:
		return "Linux"
	case PlatformWSL:
		return "WSL"
	case PlatformMacOS:
		return "macOS"
	default:
		return "Unknown"
	}
}

// HasX11Tools reports whether xdotool and xprop can drive windows here.
// WSL counts: WSLg exports an XWayland display.
func (p Platform) HasX11Tools() bool {
	return p == PlatformLinux || p == PlatformWSL
}

// DetectDisplayServer inspects the session environment. A Wayland session that
// still exports DISPLAY is reported as XWayland: xdotool sees XWayland clients
// only, which is where the RustDesk windows live.
func DetectDisplayServer() DisplayServer {
	sessionType := strings.ToLower(getenv("XDG_SESSION_TYPE"))
	hasX := getenv("DISPLAY") != ""
	hasWayland := getenv("WAYLAND_DISPLAY") != "" || sessionType == "wayland"

	switch {
	case hasWayland && hasX:
		return DisplayXWayland
	case hasWayland:
		return DisplayWayland
	case hasX || sessionType == "x11":
		return DisplayX11
	default:
		return DisplayNone
	}
}

// SupportsWindowLookup reports whether xdotool/xprop can see any windows.
func (d DisplayServer) SupportsWindowLookup() bool {
	return d == DisplayX11 || d == DisplayXWayland
}

// CheckFsnotifySupport returns a warning when path lives on a filesystem where
// inotify events are unreliable (9p, NFS, CIFS, sshfs), or "" otherwise.
func CheckFsnotifySupport(path string) string {
	if runtime.GOOS != "linux" {
		return ""
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	mounts, err := readFile("/proc/mounts")
	if err != nil {
		return ""
	}

	return fsnotifyWarning(mountFsType(string(mounts), absPath))
}

// mountFsType returns the filesystem type of the longest mount point containing path.
func mountFsType(mounts, path string) string {
	var matchedMount, matchedType string
	for _, line := range strings.Split(mounts, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		mountPoint := fields[1]
		if !underMount(path, mountPoint) || len(mountPoint) <= len(matchedMount) {
			continue
		}
		matchedMount = mountPoint
		matchedType = fields[2]
	}
	return matchedType
}

func underMount(path, mountPoint string) bool {
	return path == mountPoint || strings.HasPrefix(path, strings.TrimSuffix(mountPoint, "/")+"/")
}

func fsnotifyWarning(fsType string) string {
	switch {
	case fsType == "9p":
		return "config on 9p mount: live reload disabled, restart to apply changes"
	case fsType == "nfs" || fsType == "nfs4":
		return "config on NFS mount: live reload may be unreliable"
	case fsType == "cifs" || fsType == "smbfs":
		return "config on CIFS/SMB mount: live reload may be unreliable"
	case strings.HasPrefix(fsType, "fuse.sshfs"):
		return "config on SSHFS mount: live reload disabled, restart to apply changes"
	}
	return ""
}
