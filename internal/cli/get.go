package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Jeffrey0117/Ytify/internal/audio"
	ioutils "github.com/Jeffrey0117/Ytify/internal/io"
	"github.com/Jeffrey0117/Ytify/internal/model"
	"github.com/Jeffrey0117/Ytify/internal/notify"
	"github.com/Jeffrey0117/Ytify/internal/service"
)

type getFlags struct {
	format   string
	audio    bool
	output   string
	verbose  bool
	playlist string

	// playlistName defaults to ytify-<timestamp>.
	playlistName string
}

func newGetCommand(opts *globalOptions) *cobra.Command {
	var f getFlags

	cmd := &cobra.Command{
		Use:   "get <url> [url...]",
		Short: "Download one or more URLs without starting the server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.output != "" {
				opts.settings.DownloadsPath = f.output
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runGet(ctx, opts, args, f, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&f.format, "format", "f", "", "Quality: best, 1080p, 720p, 480p, 360p (default from config)")
	cmd.Flags().BoolVarP(&f.audio, "audio", "a", false, "Extract audio as MP3")
	cmd.Flags().StringVarP(&f.output, "output", "o", "", "Output directory (overrides config)")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "Show every progress update")
	cmd.Flags().StringVar(&f.playlist, "playlist", "", "Write a playlist of the completed files: m3u, pls, wpl or zpl")
	cmd.Flags().StringVar(&f.playlistName, "playlist-name", "", "Playlist title and file name")
	return cmd
}

func runGet(ctx context.Context, opts *globalOptions, targets []string, f getFlags, out io.Writer) error {
	var playlist audio.PlaylistFormat
	if f.playlist != "" {
		var err error
		if playlist, err = audio.ParsePlaylistFormat(f.playlist); err != nil {
			return err
		}
	}

	a, err := newApp(ctx, opts.settings, opts.logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sub := notify.NewChannelSubscriber(0)
	handle := a.svc.Notifier().Subscribe("", sub)
	defer a.svc.Notifier().Unsubscribe(handle)

	runCtx, stopService := context.WithCancel(ctx)
	defer stopService()
	serviceDone := make(chan struct{})
	go func() {
		defer close(serviceDone)
		a.svc.Run(runCtx)
	}()

	quality := opts.settings.DefaultQuality
	if f.format != "" {
		quality = model.ParseTier(f.format)
	}
	mode := model.ModeVideo
	if f.audio {
		mode = model.ModeAudio
	}

	fmt.Fprintln(out, "🎬 Ytify")
	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	p := newPrinter(out, f.verbose)
	pending := make(map[string]bool, len(targets))
	for _, target := range targets {
		job, _, err := a.svc.Submit(model.Params{Target: target, Quality: quality, Mode: mode})
		if err != nil {
			fmt.Fprintf(out, "❌ %s: %v\n", target, err)
			continue
		}
		p.name(job.ID, job.Snapshot().Target)
		pending[job.ID] = true
	}

	// Terminal events can be skipped when the subscriber is full, so job
	// state is polled as well.
	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	for len(pending) > 0 {
		select {
		case ev := <-sub.Events():
			if !pending[ev.JobID] {
				continue
			}
			p.print(ev)
			if ev.Terminal() {
				delete(pending, ev.JobID)
			}
		case <-poll.C:
			for id := range pending {
				job, err := a.svc.Job(id)
				if err != nil || !job.Status().IsTerminal() {
					continue
				}
				snap := job.Snapshot()
				p.print(notify.Event{JobID: id, Status: snap.Status, Title: snap.Title, Output: snap.Output, Message: snap.Error})
				delete(pending, id)
			}
		case <-serviceDone:
			p.drain(sub.Events())
			return context.Canceled
		}
	}
	stopService()
	<-serviceDone

	if f.playlist != "" && len(p.done) > 0 {
		name := ioutils.SanitizeFileName(f.playlistName)
		if name == "" {
			name = "ytify-" + time.Now().Format("20060102-150405")
		}
		path, err := writePlaylist(opts.settings.DownloadsPath, name, playlist, a.svc, p.done)
		if err != nil {
			fmt.Fprintf(out, "❌ playlist: %v\n", err)
		} else if path != "" {
			fmt.Fprintf(out, "ℹ️  Playlist written to %s\n", path)
		}
	}

	fmt.Fprintln(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Fprintf(out, "✨ Done: %d completed, %d failed\n", p.completed, p.failed)
	if p.failed > 0 {
		return fmt.Errorf("%d of %d downloads failed", p.failed, p.completed+p.failed)
	}
	return nil
}

// writePlaylist writes the completed local files of jobIDs to the playlist
// name in dir and returns its path. Uploaded outputs are skipped; with none left no
// file is written.
func writePlaylist(dir, name string, format audio.PlaylistFormat, svc *service.Service, jobIDs []string) (string, error) {
	var items []audio.PlaylistItem
	for _, id := range jobIDs {
		job, err := svc.Job(id)
		if err != nil {
			continue
		}
		snap := job.Snapshot()
		if snap.Output == "" || strings.Contains(snap.Output, "://") {
			continue
		}
		items = append(items, audio.ItemFromMetadata(snap.Output, snap.Title, snap.Metadata))
	}
	if len(items) == 0 {
		return "", nil
	}

	content := audio.NewPlaylistCreator(format, true).CreatePlaylist(name, items)
	path := filepath.Join(dir, name+format.Extension())
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write playlist: %w", err)
	}
	return path, nil
}

// printer renders notifier events as terminal lines.
type printer struct {
	out     io.Writer
	verbose bool

	labels    map[string]string
	deciles   map[string]int
	completed int
	failed    int

	// done lists completed job IDs in completion order.
	done []string
}

func newPrinter(out io.Writer, verbose bool) *printer {
	return &printer{
		out:     out,
		verbose: verbose,
		labels:  make(map[string]string),
		deciles: make(map[string]int),
	}
}

// name sets the label printed for jobID until its title is known.
func (p *printer) name(jobID, label string) {
	p.labels[jobID] = label
}

func (p *printer) print(ev notify.Event) {
	if ev.Title != "" {
		p.labels[ev.JobID] = ev.Title
	}
	switch ev.Status {
	case model.StatusCompleted:
		p.completed++
		p.done = append(p.done, ev.JobID)
	case model.StatusFailed:
		p.failed++
	}
	if line, ok := p.format(ev); ok {
		fmt.Fprintln(p.out, line)
	}
}

func (p *printer) drain(events <-chan notify.Event) {
	for {
		select {
		case ev := <-events:
			p.print(ev)
		default:
			return
		}
	}
}

// format returns the line for ev, or false when the event is not worth a
// line. Without verbose, running progress prints once per 10%.
func (p *printer) format(ev notify.Event) (string, bool) {
	label := p.labels[ev.JobID]
	if label == "" {
		label = ev.JobID
	}

	switch ev.Status {
	case model.StatusQueued:
		return fmt.Sprintf("ℹ️  %s: %s", label, ev.Message), true
	case model.StatusRunning:
		decile := int(ev.Progress / 10)
		if last, seen := p.deciles[ev.JobID]; seen && !p.verbose && decile <= last {
			return "", false
		}
		p.deciles[ev.JobID] = decile
		line := fmt.Sprintf("   %s: %5.1f%%", label, ev.Progress)
		if ev.Speed != "" {
			line += " at " + ev.Speed
		}
		if ev.ETA != "" {
			line += " ETA " + ev.ETA
		}
		if ev.Progress == 0 && ev.Message != "" {
			line = fmt.Sprintf("   %s: %s", label, ev.Message)
		}
		return line, true
	case model.StatusRetrying:
		delete(p.deciles, ev.JobID)
		return fmt.Sprintf("⚠️  %s: %s", label, ev.Message), true
	case model.StatusCompleted:
		return fmt.Sprintf("✅ %s -> %s", label, ev.Output), true
	case model.StatusFailed:
		msg := ev.Message
		if ev.Failure != nil {
			msg = fmt.Sprintf("%s [%s]", ev.Failure.MessageEN, ev.Failure.Category)
		}
		return fmt.Sprintf("❌ %s: %s", label, msg), true
	case model.StatusCancelled:
		return fmt.Sprintf("⚠️  %s: cancelled", label), true
	}
	return "", false
}
