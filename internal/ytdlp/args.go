package ytdlp

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Jeffrey0117/Ytify/internal/download"
	"github.com/Jeffrey0117/Ytify/internal/model"
)

// resultMarker prefixes the line yt-dlp prints once the final file is in
// place.
const resultMarker = "YTIFY\t"

// resultTemplate is printed after the file has been moved to its final
// name, one tab-separated field per value.
const resultTemplate = "after_move:" + resultMarker +
	"%(filepath)s\t%(id)s\t%(title)s\t%(uploader)s\t%(upload_date)s\t%(thumbnail)s\t%(duration)s"

const outputTemplate = "%(title).200B_[%(id)s].%(ext)s"

var (
	rePct   = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)
	reSpeed = regexp.MustCompile(`\bat\s+([^\s]+)`)
	reETA   = regexp.MustCompile(`\bETA\s+([0-9:]+)`)
)

// buildArgs returns the yt-dlp arguments for one attempt.
func buildArgs(req download.Request, outputDir, cookiesPath string) []string {
	args := []string{
		"--no-playlist",
		"--newline",
		"--progress",
		"--restrict-filenames",
		"-P", outputDir,
		"-o", outputTemplate,
		"--print", resultTemplate,
	}

	if req.Mode == model.ModeAudio {
		args = append(args,
			"-f", "bestaudio/best",
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", "0",
		)
	} else {
		args = append(args,
			"-f", selectFormat(req.Quality),
			"--merge-output-format", "mp4",
		)
	}

	if strings.TrimSpace(cookiesPath) != "" {
		args = append(args, "--cookies", strings.TrimSpace(cookiesPath))
	}
	if strings.TrimSpace(req.Proxy) != "" {
		args = append(args, "--proxy", strings.TrimSpace(req.Proxy))
	}
	return append(args, req.Target)
}

// selectFormat maps a quality tier to a yt-dlp format selector. Custom
// tiers are passed through as selectors.
func selectFormat(tier model.Tier) string {
	switch {
	case tier == "" || tier == model.TierBest:
		return "bv*+ba/b"
	case tier.IsPredefined():
		h := tier.Height()
		return fmt.Sprintf("bv*[height<=%d]+ba/b[height<=%d]", h, h)
	default:
		// Custom tiers are raw yt-dlp format selectors.
		return string(tier)
	}
}

// parseProgress extracts percent, speed and ETA from a [download] line.
func parseProgress(line string) (download.Progress, bool) {
	l := strings.TrimSpace(line)
	if !strings.HasPrefix(l, "[download]") {
		return download.Progress{}, false
	}
	m := rePct.FindStringSubmatch(l)
	if len(m) < 2 {
		return download.Progress{}, false
	}
	pct, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return download.Progress{}, false
	}

	p := download.Progress{Percent: pct}
	if m := reSpeed.FindStringSubmatch(l); len(m) > 1 {
		p.Speed = m[1]
	}
	if m := reETA.FindStringSubmatch(l); len(m) > 1 {
		p.ETA = m[1]
	}
	return p, true
}

// result is the parsed resultTemplate line.
type result struct {
	Path       string
	ID         string
	Title      string
	Uploader   string
	UploadDate string
	Thumbnail  string
	Duration   string
}

func parseResult(line string) (result, bool) {
	if !strings.HasPrefix(line, resultMarker) {
		return result{}, false
	}
	fields := strings.Split(strings.TrimPrefix(line, resultMarker), "\t")
	for len(fields) < 7 {
		fields = append(fields, "")
	}
	r := result{
		Path:       fields[0],
		ID:         fields[1],
		Title:      fields[2],
		Uploader:   fields[3],
		UploadDate: fields[4],
		Thumbnail:  fields[5],
		Duration:   fields[6],
	}
	for _, f := range []*string{&r.ID, &r.Title, &r.Uploader, &r.UploadDate, &r.Thumbnail, &r.Duration} {
		if *f == "NA" {
			*f = ""
		}
	}
	if r.Path == "" {
		return result{}, false
	}
	return r, true
}
