package ytdlp

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Jeffrey0117/Ytify/internal/audio"
	"github.com/Jeffrey0117/Ytify/internal/download"
	ythttp "github.com/Jeffrey0117/Ytify/internal/http"
	ioutils "github.com/Jeffrey0117/Ytify/internal/io"
	"github.com/Jeffrey0117/Ytify/internal/model"
)

// DefaultBinary is the yt-dlp executable looked up on PATH.
const DefaultBinary = "yt-dlp"

// ErrNoOutput is returned when yt-dlp exits cleanly without reporting a
// file.
var ErrNoOutput = errors.New("ytdlp: no output file reported")

// Uploader moves a finished file to remote storage and returns its URI.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Options configures a Fetcher.
type Options struct {
	// Binary is the yt-dlp executable. Defaults to DefaultBinary.
	Binary string

	// OutputDir receives finished files.
	OutputDir string

	// CookiesPath is passed through --cookies when set.
	CookiesPath string

	// Tagger, Images and Thumbs are used in audio mode to tag the MP3 and
	// embed the video thumbnail as cover art. Any of them may be nil.
	Tagger *audio.Tagger
	Images *ioutils.ImageService
	Thumbs *ythttp.Client

	// CoverSize bounds the embedded cover. Defaults to
	// ioutils.DefaultCoverSize.
	CoverSize int

	// Uploader, when set, receives every finished file.
	Uploader Uploader

	Logger *slog.Logger
}

// Fetcher runs yt-dlp for one attempt at a time.
//
// Example:
//
//	f := ytdlp.NewFetcher(ytdlp.Options{OutputDir: "./downloads"})
//	res, err := f.Fetch(ctx, download.Request{
//	    Target:  "https://www.youtube.com/watch?v=abc",
//	    Quality: model.Tier720p,
//	    Mode:    model.ModeVideo,
//	})
type Fetcher struct {
	opts   Options
	logger *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(opts Options) *Fetcher {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.CoverSize <= 0 {
		opts.CoverSize = ioutils.DefaultCoverSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{opts: opts, logger: logger}
}

// Fetch downloads req.Target. The returned error carries yt-dlp's stderr
// so it can be classified.
func (f *Fetcher) Fetch(ctx context.Context, req download.Request) (*download.FetchResult, error) {
	if err := ioutils.EnsureDir(f.opts.OutputDir); err != nil {
		return nil, fmt.Errorf("prepare output dir: %w", err)
	}

	var (
		mu  sync.Mutex
		res result
		got bool
	)
	onLine := func(line string) {
		if r, ok := parseResult(line); ok {
			mu.Lock()
			res, got = r, true
			mu.Unlock()
			return
		}
		if req.OnProgress == nil {
			return
		}
		if p, ok := parseProgress(line); ok {
			req.OnProgress(p)
		}
	}

	args := buildArgs(req, f.opts.OutputDir, f.opts.CookiesPath)
	f.logger.Debug("running yt-dlp", "target", req.Target, "quality", req.Quality, "mode", req.Mode, "proxy", req.Proxy != "")
	if err := f.run(ctx, args, onLine); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if !got {
		return nil, ErrNoOutput
	}

	if req.Mode == model.ModeAudio {
		f.tag(ctx, res, req.Target)
	}

	output := res.Path
	if f.opts.Uploader != nil {
		uri, err := f.opts.Uploader.Upload(ctx, res.Path)
		if err != nil {
			f.logger.Warn("upload failed, keeping local file", "path", res.Path, "error", err)
		} else {
			output = uri
		}
	}

	return &download.FetchResult{
		Output: output,
		Title:  res.Title,
		Metadata: map[string]string{
			"id":          res.ID,
			"uploader":    res.Uploader,
			"upload_date": res.UploadDate,
			"duration":    res.Duration,
			"filename":    filepath.Base(res.Path),
		},
	}, nil
}

// tag writes ID3 tags and cover art. Failures are logged; the audio file
// is still usable without them.
func (f *Fetcher) tag(ctx context.Context, res result, source string) {
	if f.opts.Tagger == nil {
		return
	}

	var cover []byte
	if res.Thumbnail != "" && f.opts.Thumbs != nil && f.opts.Images != nil {
		raw, err := f.opts.Thumbs.DownloadBytes(ctx, res.Thumbnail)
		if err != nil {
			f.logger.Warn("thumbnail download failed", "url", res.Thumbnail, "error", err)
		} else if cover, err = f.opts.Images.CoverArt(ctx, raw, f.opts.CoverSize); err != nil {
			f.logger.Warn("cover art conversion failed", "error", err)
			cover = nil
		}
	}

	meta := audio.Metadata{
		Title:    res.Title,
		Uploader: res.Uploader,
		Uploaded: audio.ParseUploadDate(res.UploadDate),
		Source:   source,
	}
	if err := f.opts.Tagger.SaveTags(res.Path, meta, cover); err != nil {
		f.logger.Warn("tagging failed", "path", res.Path, "error", err)
	}
}

func (f *Fetcher) run(ctx context.Context, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, f.opts.Binary, args...)

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("setup stdout pipe: %w", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("setup stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start yt-dlp: %w", err)
	}

	var errBuf strings.Builder
	var mu sync.Mutex
	var wg sync.WaitGroup

	read := func(r io.Reader, keep bool) {
		defer wg.Done()
		err := scanLines(r, func(line string) {
			if keep {
				mu.Lock()
				appendLimited(&errBuf, line)
				mu.Unlock()
			}
			onLine(line)
		})
		if err != nil {
			f.logger.Warn("yt-dlp output not fully parsed", "error", err)
		}
	}

	wg.Add(2)
	go read(stdoutPipe, false)
	go read(stderrPipe, true)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		mu.Lock()
		defer mu.Unlock()
		return fmt.Errorf("yt-dlp failed: %w\n%s", err, strings.TrimSpace(errBuf.String()))
	}
	return nil
}

// maxLine bounds one line of yt-dlp output.
const maxLine = 1024 * 1024

// scanLines calls fn for each line of r. If scanning stops early, the rest
// of r is discarded so the writer never blocks on a full pipe.
func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	scanner.Split(splitByNewlineOrCR)
	for scanner.Scan() {
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		io.Copy(io.Discard, r)
		return err
	}
	return nil
}

func splitByNewlineOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			if i == 0 {
				return 1, nil, nil
			}
			return i + 1, data[:i], nil
		}
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// appendLimited keeps the first few KB of stderr, which is where yt-dlp
// reports the reason for a failure.
func appendLimited(b *strings.Builder, line string) {
	const maxKeep = 8192
	if b.Len() >= maxKeep {
		return
	}
	toWrite := line + "\n"
	if remain := maxKeep - b.Len(); len(toWrite) > remain {
		toWrite = toWrite[:remain]
	}
	b.WriteString(toWrite)
}
