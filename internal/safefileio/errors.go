// Package safefileio opens the per-user session record files with protection
// against symlink attacks and TOCTOU race conditions. The store itself
// assumes it is handed an already-secured stream; this package is where that
// guarantee is established.
package safefileio

import "errors"

var (
	// ErrInvalidFilePath indicates that the specified file path is invalid.
	ErrInvalidFilePath = errors.New("invalid file path")

	// ErrIsSymlink indicates that the specified path is a symbolic link,
	// which is not allowed.
	ErrIsSymlink = errors.New("path is a symbolic link")

	// ErrNotRegularFile indicates that the path refers to something other
	// than a regular file.
	ErrNotRegularFile = errors.New("not a regular file")

	// ErrInsecurePermissions indicates that the file is accessible by group
	// or others.
	ErrInsecurePermissions = errors.New("insecure file permissions")

	// ErrUnexpectedOwner indicates that the file is not owned by the
	// effective user.
	ErrUnexpectedOwner = errors.New("unexpected file owner")
)
