package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Jeffrey0117/Ytify/internal/classify"
	"github.com/Jeffrey0117/Ytify/internal/download"
	"github.com/Jeffrey0117/Ytify/internal/model"
)

func TestSelectFormat(t *testing.T) {
	tests := []struct {
		tier model.Tier
		want string
	}{
		{"", "bv*+ba/b"},
		{model.TierBest, "bv*+ba/b"},
		{model.Tier1080p, "bv*[height<=1080]+ba/b[height<=1080]"},
		{model.Tier360p, "bv*[height<=360]+ba/b[height<=360]"},
		{"bestvideo[ext=mp4]", "bestvideo[ext=mp4]"},
	}
	for _, tt := range tests {
		if got := selectFormat(tt.tier); got != tt.want {
			t.Errorf("selectFormat(%q) = %q, want %q", tt.tier, got, tt.want)
		}
	}
}

func indexOf(args []string, s string) int {
	for i, a := range args {
		if a == s {
			return i
		}
	}
	return -1
}

func TestBuildArgs_Video(t *testing.T) {
	req := download.Request{
		Target:  "https://youtu.be/abc",
		Quality: model.Tier720p,
		Mode:    model.ModeVideo,
		Proxy:   "http://1.2.3.4:8080",
	}
	args := buildArgs(req, "/out", "")

	if args[len(args)-1] != req.Target {
		t.Errorf("last arg = %q, want target", args[len(args)-1])
	}
	if i := indexOf(args, "-f"); i < 0 || args[i+1] != selectFormat(model.Tier720p) {
		t.Errorf("format flag missing or wrong: %v", args)
	}
	if i := indexOf(args, "--proxy"); i < 0 || args[i+1] != req.Proxy {
		t.Errorf("--proxy missing: %v", args)
	}
	if i := indexOf(args, "-P"); i < 0 || args[i+1] != "/out" {
		t.Errorf("-P missing: %v", args)
	}
	if indexOf(args, "--cookies") >= 0 {
		t.Error("--cookies should be absent without a cookies path")
	}
	if indexOf(args, "-x") >= 0 {
		t.Error("video mode should not extract audio")
	}
}

func TestBuildArgs_Audio(t *testing.T) {
	args := buildArgs(download.Request{Target: "u", Mode: model.ModeAudio}, "/out", "/c.txt")

	if i := indexOf(args, "--audio-format"); i < 0 || args[i+1] != "mp3" {
		t.Errorf("--audio-format mp3 missing: %v", args)
	}
	if i := indexOf(args, "--cookies"); i < 0 || args[i+1] != "/c.txt" {
		t.Errorf("--cookies missing: %v", args)
	}
	if indexOf(args, "--proxy") >= 0 {
		t.Error("--proxy should be absent for a direct connection")
	}
}

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line  string
		ok    bool
		pct   float64
		speed string
		eta   string
	}{
		{"[download]  42.3% of 10.00MiB at  1.21MiB/s ETA 00:05", true, 42.3, "1.21MiB/s", "00:05"},
		{"[download] 100% of 10.00MiB in 00:08", true, 100, "", ""},
		{"[download] Destination: clip.mp4", false, 0, "", ""},
		{"[youtube] abc: Downloading webpage", false, 0, "", ""},
	}
	for _, tt := range tests {
		p, ok := parseProgress(tt.line)
		if ok != tt.ok {
			t.Errorf("parseProgress(%q) ok = %v, want %v", tt.line, ok, tt.ok)
			continue
		}
		if p.Percent != tt.pct || p.Speed != tt.speed || p.ETA != tt.eta {
			t.Errorf("parseProgress(%q) = %+v, want {%v %q %q}", tt.line, p, tt.pct, tt.speed, tt.eta)
		}
	}
}

func TestParseResult(t *testing.T) {
	r, ok := parseResult("YTIFY\t/out/Clip_[abc].mp4\tabc\tClip\tChan\t20240131\tNA\t212.5")
	if !ok {
		t.Fatal("parseResult() ok = false")
	}
	if r.Path != "/out/Clip_[abc].mp4" || r.ID != "abc" || r.Title != "Clip" || r.Uploader != "Chan" {
		t.Errorf("parseResult() = %+v", r)
	}
	if r.Thumbnail != "" {
		t.Errorf("Thumbnail = %q, want NA mapped to empty", r.Thumbnail)
	}
	if r.Duration != "212.5" {
		t.Errorf("Duration = %q, want 212.5", r.Duration)
	}

	if _, ok := parseResult("[download] 10%"); ok {
		t.Error("non-marker line should not parse")
	}
	if _, ok := parseResult("YTIFY\t"); ok {
		t.Error("empty path should not parse")
	}
}

// fakeBinary writes an executable shell script standing in for yt-dlp.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "yt-dlp")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFetcher_Success(t *testing.T) {
	out := t.TempDir()
	argsFile := filepath.Join(t.TempDir(), "args")
	bin := fakeBinary(t, fmt.Sprintf(`echo "$@" > %q
echo "[download]  10.0%% of 1.00MiB at 100KiB/s ETA 00:09"
printf '[download]  55.5%%%% of 1.00MiB at 200KiB/s ETA 00:02\r'
echo "[download] 100%% of 1.00MiB in 00:03"
touch %q
printf 'YTIFY\t%s\tabc\tClip\tChan\t20240131\tNA\n'
`, argsFile, filepath.Join(out, "Clip_[abc].mp4"), filepath.Join(out, "Clip_[abc].mp4")))

	f := NewFetcher(Options{Binary: bin, OutputDir: out})

	var mu sync.Mutex
	var seen []float64
	res, err := f.Fetch(context.Background(), download.Request{
		Target:  "https://youtu.be/abc",
		Quality: model.Tier480p,
		Mode:    model.ModeVideo,
		Proxy:   "http://p:1",
		OnProgress: func(p download.Progress) {
			mu.Lock()
			seen = append(seen, p.Percent)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Title != "Clip" || res.Metadata["uploader"] != "Chan" {
		t.Errorf("result = %+v", res)
	}
	if res.Output != filepath.Join(out, "Clip_[abc].mp4") {
		t.Errorf("Output = %q", res.Output)
	}

	mu.Lock()
	if len(seen) != 3 || seen[0] != 10 || seen[1] != 55.5 || seen[2] != 100 {
		t.Errorf("progress = %v, want [10 55.5 100]", seen)
	}
	mu.Unlock()

	raw, _ := os.ReadFile(argsFile)
	if !strings.Contains(string(raw), "--proxy http://p:1") {
		t.Errorf("args = %q, want --proxy", raw)
	}
	if !strings.Contains(string(raw), "height<=480") {
		t.Errorf("args = %q, want 480p selector", raw)
	}
}

func TestFetcher_FailureCarriesStderr(t *testing.T) {
	bin := fakeBinary(t, `echo "ERROR: [youtube] abc: HTTP Error 429: Too Many Requests" >&2
exit 1
`)
	f := NewFetcher(Options{Binary: bin, OutputDir: t.TempDir()})

	_, err := f.Fetch(context.Background(), download.Request{Target: "u"})
	if err == nil {
		t.Fatal("expected error")
	}
	if got, _ := classify.Classify(err.Error()); got != classify.RateLimited {
		t.Errorf("Classify(%q) = %s, want %s", err, got, classify.RateLimited)
	}
}

func TestFetcher_NoOutputLine(t *testing.T) {
	bin := fakeBinary(t, "exit 0\n")
	f := NewFetcher(Options{Binary: bin, OutputDir: t.TempDir()})

	if _, err := f.Fetch(context.Background(), download.Request{Target: "u"}); !errors.Is(err, ErrNoOutput) {
		t.Errorf("Fetch() error = %v, want ErrNoOutput", err)
	}
}

func TestScanLines_DrainsAfterOverlongLine(t *testing.T) {
	pr, pw := io.Pipe()
	written := make(chan error, 1)
	go func() {
		_, err := pw.Write([]byte("first\n" + strings.Repeat("x", maxLine+1) + "\nlast\n"))
		pw.Close()
		written <- err
	}()

	var lines []string
	err := scanLines(pr, func(line string) { lines = append(lines, line) })
	if !errors.Is(err, bufio.ErrTooLong) {
		t.Errorf("scanLines() = %v, want bufio.ErrTooLong", err)
	}
	if len(lines) != 1 || lines[0] != "first" {
		t.Errorf("lines = %q, want [first]", lines)
	}
	select {
	case err := <-written:
		if err != nil {
			t.Errorf("writer: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("writer blocked after the overlong line")
	}
}

func TestFetcher_OverlongStderrLineDoesNotHang(t *testing.T) {
	out := t.TempDir()
	path := filepath.Join(out, "a.mp4")
	bin := fakeBinary(t, fmt.Sprintf(`head -c 3000000 /dev/zero | tr '\0' x >&2
printf 'YTIFY\t%s\ta\tA\tNA\tNA\tNA\n'
`, path))
	f := NewFetcher(Options{Binary: bin, OutputDir: out})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	res, err := f.Fetch(ctx, download.Request{Target: "u"})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Output != path {
		t.Errorf("Output = %q, want %q", res.Output, path)
	}
}

type fakeUploader struct {
	uri string
	err error
}

func (u fakeUploader) Upload(ctx context.Context, path string) (string, error) {
	return u.uri, u.err
}

func TestFetcher_Upload(t *testing.T) {
	out := t.TempDir()
	script := fmt.Sprintf("printf 'YTIFY\\t%s\\tabc\\tClip\\tChan\\t20240131\\tNA\\n'\n", filepath.Join(out, "a.mp4"))

	tests := []struct {
		name     string
		uploader fakeUploader
		want     string
	}{
		{"uploaded", fakeUploader{uri: "s3://ytify/a.mp4"}, "s3://ytify/a.mp4"},
		{"upload fails", fakeUploader{err: errors.New("boom")}, filepath.Join(out, "a.mp4")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewFetcher(Options{Binary: fakeBinary(t, script), OutputDir: out, Uploader: tt.uploader})
			res, err := f.Fetch(context.Background(), download.Request{Target: "u"})
			if err != nil {
				t.Fatalf("Fetch: %v", err)
			}
			if res.Output != tt.want {
				t.Errorf("Output = %q, want %q", res.Output, tt.want)
			}
		})
	}
}
