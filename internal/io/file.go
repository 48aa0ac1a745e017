package ioutils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

// ErrOutsideDir is returned when a file name resolves outside the managed
// directory.
var ErrOutsideDir = errors.New("ioutils: path escapes directory")

// MediaExtensions lists the file types ListMedia reports.
var MediaExtensions = map[string]bool{
	".mp4": true, ".webm": true, ".mkv": true, ".avi": true,
	".mp3": true, ".m4a": true, ".wav": true, ".flac": true,
}

// FileInfo describes a downloaded media file.
type FileInfo struct {
	Name          string    `json:"filename"`
	Size          int64     `json:"size"`
	SizeFormatted string    `json:"size_formatted"`
	ModTime       time.Time `json:"created_at"`
	Path          string    `json:"path"`
}

var (
	invalidChars   = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
	trailingDots   = regexp.MustCompile(`\.+$`)
	repeatedSpaces = regexp.MustCompile(`\s+`)
)

// SanitizeFileName removes or replaces characters that are invalid in file/folder names.
//
// The following transformations are applied:
//   - Invalid characters (<>:"/\|?* and control chars 0x00-0x1f) → underscore
//   - Trailing dots → removed (Windows limitation)
//   - Multiple whitespace → single space
//   - Trailing whitespace → removed
//
// Example:
//
//	SanitizeFileName("Clip: Part 1/2")     // Returns "Clip_ Part 1_2"
//	SanitizeFileName("Live...")            // Returns "Live"
//	SanitizeFileName("Name   with  spaces") // Returns "Name with spaces"
func SanitizeFileName(name string) string {
	name = invalidChars.ReplaceAllString(name, "_")
	name = trailingDots.ReplaceAllString(name, "")
	name = repeatedSpaces.ReplaceAllString(name, " ")
	return strings.TrimRight(name, " ")
}

// EnsureDir creates a directory and all parent directories if they don't exist.
//
// Directories are created with mode 0755 (rwxr-xr-x).
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// SafeJoin joins name onto dir and rejects results that leave dir, such as
// "../etc/passwd" or an absolute path.
//
// Example:
//
//	p, err := SafeJoin("/downloads", "clip.mp4")      // "/downloads/clip.mp4"
//	_, err = SafeJoin("/downloads", "../secret.txt")  // ErrOutsideDir
func SafeJoin(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", fmt.Errorf("%w: %q", ErrOutsideDir, name)
	}
	base, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	full := filepath.Join(base, name)
	rel, err := filepath.Rel(base, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrOutsideDir, name)
	}
	return full, nil
}

// ListMedia returns the media files directly inside dir, newest first.
// A missing directory yields an empty list.
func ListMedia(dir string) ([]FileInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []FileInfo{}, nil
		}
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !MediaExtensions[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		abs, _ := filepath.Abs(filepath.Join(dir, e.Name()))
		files = append(files, FileInfo{
			Name:          e.Name(),
			Size:          info.Size(),
			SizeFormatted: FormatSize(info.Size()),
			ModTime:       info.ModTime(),
			Path:          abs,
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].ModTime.After(files[j].ModTime)
	})
	return files, nil
}

// DeleteMedia removes the regular file name from dir. It reports false when
// no such file exists.
func DeleteMedia(dir, name string) (bool, error) {
	path, err := SafeJoin(dir, name)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil || !info.Mode().IsRegular() {
		return false, nil
	}
	if err := os.Remove(path); err != nil {
		return false, err
	}
	return true, nil
}

// FormatSize renders a byte count for humans.
//
// Example:
//
//	FormatSize(512)        // "512 B"
//	FormatSize(1536)       // "1.5 KB"
//	FormatSize(5 << 30)    // "5.00 GB"
func FormatSize(n int64) string {
	const (
		kb = 1024
		mb = kb * 1024
		gb = mb * 1024
	)
	switch {
	case n < kb:
		return fmt.Sprintf("%d B", n)
	case n < mb:
		return fmt.Sprintf("%.1f KB", float64(n)/kb)
	case n < gb:
		return fmt.Sprintf("%.1f MB", float64(n)/mb)
	default:
		return fmt.Sprintf("%.2f GB", float64(n)/gb)
	}
}
