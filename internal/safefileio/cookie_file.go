package safefileio

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const (
	// cookieFilePerm restricts session record files to their owner.
	cookieFilePerm = 0o600

	// cookieDirPerm restricts the store directory to its owner.
	cookieDirPerm = 0o700

	// groupOtherAccessBits covers every permission bit granted to group or
	// others.
	groupOtherAccessBits = 0o077
)

// OpenCookieFile opens the session record file at the given path for reading
// and writing, creating it (and its parent directory) if needed.
//
// The open is hardened against symlink attacks: the final component is opened
// with O_NOFOLLOW, the parent components are verified not to be symlinks, and
// the opened file is validated to be a regular file owned by the effective
// user with no group or world access. Validation happens on the already
// opened descriptor so a concurrent path swap cannot bypass it.
func OpenCookieFile(path string) (*os.File, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilePath, err)
	}

	if err := os.MkdirAll(filepath.Dir(absPath), cookieDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create session records directory: %w", err)
	}

	// #nosec G304 - the path is validated after opening to prevent TOCTOU attacks
	file, err := os.OpenFile(absPath, os.O_RDWR|os.O_CREATE|syscall.O_NOFOLLOW, cookieFilePerm)
	if err != nil {
		if isNoFollowError(err) {
			return nil, fmt.Errorf("%w: %s", ErrIsSymlink, absPath)
		}
		return nil, fmt.Errorf("failed to open session records file: %w", err)
	}

	if err := verifyPathComponents(absPath); err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := validateCookieFile(file, absPath); err != nil {
		_ = file.Close()
		return nil, err
	}
	return file, nil
}

// verifyPathComponents checks that no directory component of the path is a
// symlink. This is called after opening the file, so a component swapped in
// afterwards cannot affect the already opened descriptor.
func verifyPathComponents(absPath string) error {
	current := filepath.Dir(absPath)
	for {
		fi, err := os.Lstat(current)
		if err != nil {
			return fmt.Errorf("failed to stat path component %s: %w", current, err)
		}
		if fi.Mode()&os.ModeSymlink != 0 {
			return fmt.Errorf("%w: %s", ErrIsSymlink, current)
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}
	return nil
}

// validateCookieFile checks the opened file descriptor: it must refer to a
// regular file, owned by the effective user, with no access for group or
// others.
func validateCookieFile(file *os.File, absPath string) error {
	fi, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", absPath, err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("%w: %s", ErrNotRegularFile, absPath)
	}
	if fi.Mode().Perm()&groupOtherAccessBits != 0 {
		return fmt.Errorf("%w: %s has mode %o", ErrInsecurePermissions, absPath, fi.Mode().Perm())
	}
	if stat, ok := fi.Sys().(*syscall.Stat_t); ok {
		if int(stat.Uid) != os.Geteuid() {
			return fmt.Errorf("%w: %s is owned by uid %d", ErrUnexpectedOwner, absPath, stat.Uid)
		}
	}
	return nil
}
