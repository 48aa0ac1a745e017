package ioutils

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Clip: Part 1/2", "Clip_ Part 1_2"},
		{"Live...", "Live"},
		{"Name   with  spaces ", "Name with spaces"},
		{`a<b>c|d?e*f"g`, "a_b_c_d_e_f_g"},
	}
	for _, tt := range tests {
		if got := SanitizeFileName(tt.input); got != tt.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestSafeJoin(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		wantErr bool
	}{
		{"clip.mp4", false},
		{"sub/../clip.mp4", false},
		{"../secret.txt", true},
		{"..", true},
		{".", true},
		{"", true},
		{"/etc/passwd", true},
		{"a/../../x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := SafeJoin(dir, tt.name)
			if (err != nil) != tt.wantErr {
				t.Errorf("SafeJoin(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutsideDir) {
				t.Errorf("error %v should wrap ErrOutsideDir", err)
			}
		})
	}
}

func TestListMedia(t *testing.T) {
	dir := t.TempDir()
	write := func(name string, size int, mod time.Time) {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, make([]byte, size), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(p, mod, mod); err != nil {
			t.Fatal(err)
		}
	}
	now := time.Now()
	write("old.mp4", 10, now.Add(-time.Hour))
	write("new.MP3", 2048, now)
	write("notes.txt", 5, now)
	os.Mkdir(filepath.Join(dir, "folder.mp4"), 0755)

	files, err := ListMedia(dir)
	if err != nil {
		t.Fatalf("ListMedia: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("ListMedia() = %d files, want 2", len(files))
	}
	if files[0].Name != "new.MP3" || files[1].Name != "old.mp4" {
		t.Errorf("order = %s, %s; want newest first", files[0].Name, files[1].Name)
	}
	if files[0].SizeFormatted != "2.0 KB" {
		t.Errorf("SizeFormatted = %q, want %q", files[0].SizeFormatted, "2.0 KB")
	}
}

func TestListMedia_MissingDir(t *testing.T) {
	files, err := ListMedia(filepath.Join(t.TempDir(), "nope"))
	if err != nil || len(files) != 0 {
		t.Errorf("ListMedia(missing) = (%v, %v), want empty, nil", files, err)
	}
}

func TestDeleteMedia(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("x"), 0644)

	ok, err := DeleteMedia(dir, "clip.mp4")
	if err != nil || !ok {
		t.Fatalf("DeleteMedia = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = DeleteMedia(dir, "clip.mp4")
	if err != nil || ok {
		t.Errorf("second DeleteMedia = (%v, %v), want (false, nil)", ok, err)
	}
	if _, err := DeleteMedia(dir, "../clip.mp4"); !errors.Is(err, ErrOutsideDir) {
		t.Errorf("DeleteMedia escape = %v, want ErrOutsideDir", err)
	}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{512, "512 B"},
		{1536, "1.5 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
		{5 << 30, "5.00 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.n); got != tt.want {
			t.Errorf("FormatSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func testPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestImageService_CoverArt(t *testing.T) {
	svc := NewImageService()
	out, err := svc.CoverArt(context.Background(), testPNG(t, 1280, 720), 500)
	if err != nil {
		t.Fatalf("CoverArt: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 500 || b.Dy() != 281 {
		t.Errorf("size = %dx%d, want 500x281", b.Dx(), b.Dy())
	}
}

func TestImageService_SmallImageNotScaled(t *testing.T) {
	svc := NewImageService()
	out, err := svc.ResizeImage(context.Background(), testPNG(t, 120, 90), 500, 500)
	if err != nil {
		t.Fatalf("ResizeImage: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("output is not JPEG: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 120 || b.Dy() != 90 {
		t.Errorf("size = %dx%d, want 120x90", b.Dx(), b.Dy())
	}
}

func TestImageService_InvalidData(t *testing.T) {
	if _, err := NewImageService().CoverArt(context.Background(), []byte("nope"), 0); err == nil {
		t.Error("expected decode error")
	}
}
