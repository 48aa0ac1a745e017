// Package ioutils provides file system and image helpers for the downloads
// directory.
//
// This package contains functions for:
//   - Listing and deleting downloaded media files
//   - Rejecting file names that escape the downloads directory
//   - Filename sanitization for cross-platform compatibility
//   - Turning video thumbnails into cover art
//
// # Downloads Directory
//
//	files, err := ioutils.ListMedia("/downloads")
//	ok, err := ioutils.DeleteMedia("/downloads", "clip.mp4")
//
//	// Names from clients go through SafeJoin first
//	path, err := ioutils.SafeJoin("/downloads", name)
//
// # Cover Art
//
//	svc := ioutils.NewImageService()
//	cover, _ := svc.CoverArt(ctx, thumbnail, ioutils.DefaultCoverSize)
package ioutils
