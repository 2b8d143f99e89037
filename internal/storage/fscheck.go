package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// errMountTypeUnknown means the platform cannot report a mount type. The
// path is then treated as local rather than blocking startup.
var errMountTypeUnknown = errors.New("mount type not reported on this platform")

const unknownMountType = "unknown"

var networkFilesystems = map[string]struct{}{
	"afpfs":  {},
	"cifs":   {},
	"nfs":    {},
	"smbfs":  {},
	"smb2":   {},
	"webdav": {},
}

// CheckLocalFilesystem fails when the history database would live on a
// network share, where SQLite locking is unreliable.
func CheckLocalFilesystem(path string) error {
	return checkLocalFilesystem(path, mountType)
}

// NetworkFilesystem reports the filesystem type of path (or its nearest
// existing parent) and whether it is a network mount. Label drop folders are
// often shares; fsnotify does not see remote writes there, so the poll
// interval is what picks them up.
func NetworkFilesystem(path string) (string, bool, error) {
	return networkFilesystem(path, mountType)
}

func checkLocalFilesystem(path string, detector func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("sqlite path is empty")
	}

	fsType, network, err := networkFilesystem(path, detector)
	if err != nil {
		return err
	}
	if network {
		return fmt.Errorf(
			"database path %q is on network filesystem %q; SQLite requires a local filesystem for reliable locking. Set state.path to a local file",
			path,
			fsType,
		)
	}
	return nil
}

func networkFilesystem(path string, detector func(string) (string, error)) (string, bool, error) {
	inspectPath, err := nearestExistingPath(path)
	if err != nil {
		return "", false, fmt.Errorf("resolve path %q: %w", path, err)
	}

	fsType, err := detector(inspectPath)
	if errors.Is(err, errMountTypeUnknown) {
		return unknownMountType, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("detect filesystem for %q: %w", inspectPath, err)
	}
	return fsType, isNetworkFilesystem(fsType), nil
}

func nearestExistingPath(path string) (string, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	candidate := absPath
	for {
		_, err := os.Stat(candidate)
		if err == nil {
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat %q: %w", candidate, err)
		}

		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", absPath)
		}
		candidate = parent
	}
}

func isNetworkFilesystem(fsType string) bool {
	normalized := strings.TrimSpace(strings.ToLower(fsType))
	_, found := networkFilesystems[normalized]
	return found
}
