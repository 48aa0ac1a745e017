package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/Jeffrey0117/Ytify/internal/classify"
	"github.com/Jeffrey0117/Ytify/internal/config"
	"github.com/Jeffrey0117/Ytify/internal/model"
	"github.com/Jeffrey0117/Ytify/internal/notify"
	"github.com/Jeffrey0117/Ytify/internal/service"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if want := "ytify " + service.Version + "\n"; out != want {
		t.Errorf("version = %q, want %q", out, want)
	}
}

func TestClassifyCommand(t *testing.T) {
	out, err := execute(t, "classify", "ERROR:", "HTTP", "Error", "429:", "Too", "Many", "Requests")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Category:  rate_limited") || !strings.Contains(out, "Retries:") {
		t.Errorf("classify output = %q", out)
	}

	out, err = execute(t, "classify", "--json", "Private video. Sign in")
	if err != nil {
		t.Fatal(err)
	}
	var p classify.Policy
	if err := json.Unmarshal([]byte(out), &p); err != nil {
		t.Fatalf("json output: %v", err)
	}
	if p.Category != classify.PrivateContent || p.Retryable {
		t.Errorf("policy = %+v", p)
	}

	out, err = execute(t, "classify", "--list")
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range classify.Categories() {
		if !strings.Contains(out, string(c)) {
			t.Errorf("list is missing %s", c)
		}
	}

	if _, err := execute(t, "classify"); err == nil {
		t.Error("classify without text should fail")
	}
}

func TestGlobalOptionsLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	s := config.DefaultSettings()
	s.MaxConcurrent = 7
	s.LogLevel = "warn"
	if err := s.Save(path); err != nil {
		t.Fatal(err)
	}

	env := map[string]string{"YTIFY_DOWNLOADS_PATH": "/env/downloads", "LOG_FORMAT": "json"}
	opts := &globalOptions{configPath: path, logLevel: "debug"}
	if err := opts.load(io.Discard, func(k string) string { return env[k] }); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"file", opts.settings.MaxConcurrent, 7},
		{"env", opts.settings.DownloadsPath, "/env/downloads"},
		{"env format", opts.settings.LogFormat, "json"},
		{"flag over file", opts.settings.LogLevel, "debug"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if opts.logger == nil {
		t.Error("logger not built")
	}
}

func TestGlobalOptionsLoad_BadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	os.WriteFile(path, []byte("{"), 0644)
	opts := &globalOptions{configPath: path}
	if err := opts.load(io.Discard, func(string) string { return "" }); err == nil {
		t.Error("expected error for invalid config")
	}
}

func TestNewApp_LocalOnly(t *testing.T) {
	dir := t.TempDir()
	s := config.DefaultSettings()
	s.HistoryPath = filepath.Join(dir, "data", "history.db")
	s.DownloadsPath = filepath.Join(dir, "downloads")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := newApp(context.Background(), s, logger)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.svc == nil || a.history == nil {
		t.Fatal("service and history must be wired")
	}
	if a.mirror != nil || a.redis != nil {
		t.Error("status mirror should be disabled without a redis address")
	}
	if a.svc.Pool() != nil {
		t.Error("egress pool should be disabled without proxies")
	}
	if _, err := os.Stat(s.HistoryPath); err != nil {
		t.Errorf("history db not created: %v", err)
	}
}

func TestNewPool(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name     string
		api      string
		proxies  []string
		provider string
	}{
		{"none", "", nil, ""},
		{"static", "", []string{"1.2.3.4:8080"}, "static"},
		{"api", "http://pool.local/get", []string{"1.2.3.4:8080"}, "http://pool.local/get"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := config.DefaultSettings()
			s.ProxyPoolAPI = tt.api
			s.Proxies = tt.proxies
			pool := newPool(s, logger)
			if tt.provider == "" {
				if pool != nil {
					t.Error("expected no pool")
				}
				return
			}
			if pool == nil {
				t.Fatal("expected a pool")
			}
			if got := pool.Stats().Provider; got != tt.provider {
				t.Errorf("provider = %q, want %q", got, tt.provider)
			}
		})
	}
}

func TestPrinterFormat(t *testing.T) {
	var buf bytes.Buffer
	p := newPrinter(&buf, false)
	p.name("j1", "https://youtu.be/x")

	events := []notify.Event{
		{JobID: "j1", Status: model.StatusQueued, Message: "Queued at position 1"},
		{JobID: "j1", Status: model.StatusRunning, Progress: 5, Title: "Clip"},
		{JobID: "j1", Status: model.StatusRunning, Progress: 7},
		{JobID: "j1", Status: model.StatusRunning, Progress: 12.5, Speed: "1.0MiB/s", ETA: "00:03"},
		{JobID: "j1", Status: model.StatusFailed, Failure: &classify.Failure{Category: classify.GeoBlocked, MessageEN: "Blocked in your region"}},
	}
	for _, ev := range events {
		p.print(ev)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 4 {
		t.Fatalf("printed %d lines, want 4:\n%s", len(lines), buf.String())
	}
	tests := []struct {
		line int
		want string
	}{
		{0, "https://youtu.be/x: Queued at position 1"},
		{1, "Clip:   5.0%"},
		{2, "12.5% at 1.0MiB/s ETA 00:03"},
		{3, "Blocked in your region [geo_blocked]"},
	}
	for _, tt := range tests {
		if !strings.Contains(lines[tt.line], tt.want) {
			t.Errorf("line %d = %q, want it to contain %q", tt.line, lines[tt.line], tt.want)
		}
	}
	if p.failed != 1 || p.completed != 0 {
		t.Errorf("failed=%d completed=%d", p.failed, p.completed)
	}
}

func TestRunGet_FakeBinaryWritesPlaylist(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	downloads := filepath.Join(dir, "downloads")
	script := filepath.Join(dir, "yt-dlp")
	body := fmt.Sprintf("#!/bin/sh\necho '[download]  50.0%% of 1MiB at 1MiB/s ETA 00:01'\nprintf 'YTIFY\\t%s/Clip_[abc].mp4\\tabc\\tClip\\tChan\\t20240131\\tNA\\t61\\n'\n", downloads)
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	s := config.DefaultSettings()
	s.DownloadsPath = downloads
	s.HistoryPath = filepath.Join(dir, "history.db")
	s.YtDlpPath = script
	opts := &globalOptions{settings: s, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	var out bytes.Buffer
	err := runGet(context.Background(), opts, []string{"https://youtu.be/abc"}, getFlags{playlist: "m3u"}, &out)
	if err != nil {
		t.Fatalf("runGet: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "Clip -> "+downloads+"/Clip_[abc].mp4") {
		t.Errorf("output missing completion line:\n%s", out.String())
	}

	matches, _ := filepath.Glob(filepath.Join(downloads, "ytify-*.m3u"))
	if len(matches) != 1 {
		t.Fatalf("playlists = %v, want one", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(data), "#EXTINF:61,Chan - Clip\nClip_[abc].mp4\n") {
		t.Errorf("playlist = %q", data)
	}
}

func TestRunGet_BadPlaylistFormat(t *testing.T) {
	opts := &globalOptions{settings: config.DefaultSettings(), logger: slog.Default()}
	if err := runGet(context.Background(), opts, []string{"https://x"}, getFlags{playlist: "xspf"}, io.Discard); err == nil {
		t.Error("expected error for unknown playlist format")
	}
}

func TestRunGet_PlaylistNameSanitized(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	dir := t.TempDir()
	script := filepath.Join(dir, "yt-dlp")
	body := fmt.Sprintf("#!/bin/sh\nprintf 'YTIFY\\t%s/a.mp3\\ta\\tA\\tNA\\tNA\\tNA\\tNA\\n'\n", dir)
	if err := os.WriteFile(script, []byte(body), 0755); err != nil {
		t.Fatal(err)
	}

	s := config.DefaultSettings()
	s.DownloadsPath = dir
	s.HistoryPath = filepath.Join(dir, "history.db")
	s.YtDlpPath = script
	opts := &globalOptions{settings: s, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	f := getFlags{playlist: "pls", playlistName: "My: Mix?"}
	if err := runGet(context.Background(), opts, []string{"https://example.com/a"}, f, io.Discard); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "My_ Mix_.pls")); err != nil {
		t.Errorf("sanitized playlist not written: %v", err)
	}
}
