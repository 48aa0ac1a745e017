// Package tui provides a Bubble Tea terminal user interface for ytify.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Jeffrey0117/Ytify/internal/config"
	"github.com/Jeffrey0117/Ytify/internal/model"
	"github.com/Jeffrey0117/Ytify/internal/notify"
	"github.com/Jeffrey0117/Ytify/internal/queue"
	"github.com/Jeffrey0117/Ytify/internal/service"
)

// Styles for the TUI
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B")).
			MarginBottom(1)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#4ECDC4"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#95E1A3"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFE66D"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#A8DADC"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6C757D"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#4ECDC4")).
			Padding(0, 1)

	titleTextStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F8B500"))
)

// maxJobs is how many jobs the list shows, newest last.
const maxJobs = 8

// Downloader is the part of the service the TUI drives.
type Downloader interface {
	Submit(params model.Params) (*model.Job, int, error)
	Cancel(jobID string) (queue.CancelOutcome, error)
}

// JobView is the on-screen state of one submitted job.
type JobView struct {
	ID       string
	Label    string
	Status   model.Status
	Progress float64
	Speed    string
	ETA      string
	Message  string
	Position int
	Output   string
}

func (j *JobView) apply(ev notify.Event) {
	j.Status = ev.Status
	if ev.Title != "" {
		j.Label = ev.Title
	}
	if ev.Status == model.StatusRunning || ev.Progress > 0 {
		j.Progress = ev.Progress
	}
	j.Speed, j.ETA = ev.Speed, ev.ETA
	j.Position = ev.Position
	if ev.Output != "" {
		j.Output = ev.Output
	}
	j.Message = ev.Message
	if ev.Failure != nil {
		j.Message = fmt.Sprintf("%s [%s]", ev.Failure.MessageEN, ev.Failure.Category)
	}
}

// Model is the Bubble Tea model for the TUI.
type Model struct {
	svc      Downloader
	events   <-chan notify.Event
	settings *config.Settings

	textInput textinput.Model
	spinner   spinner.Model
	progress  progress.Model

	// Options for the next submission
	audio   bool
	quality model.Tier

	jobs []*JobView
	byID map[string]*JobView
	err  error

	width  int
	height int
}

// NewModel creates a new TUI model submitting to svc and rendering events
// received on events.
func NewModel(svc Downloader, events <-chan notify.Event, settings *config.Settings) Model {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	ti := textinput.New()
	ti.Placeholder = "https://www.youtube.com/watch?v=..."
	ti.Focus()
	ti.CharLimit = 500
	ti.Width = 60

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 40

	return Model{
		svc:       svc,
		events:    events,
		settings:  settings,
		textInput: ti,
		spinner:   sp,
		progress:  prog,
		quality:   settings.DefaultQuality,
		byID:      make(map[string]*JobView),
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitForEvent(m.events))
}

// Message types
type (
	// EventMsg carries one notifier event.
	EventMsg struct {
		Event notify.Event
	}

	// SubmittedMsg is sent after a submission attempt.
	SubmittedMsg struct {
		Job      *JobView
		Position int
		Err      error
	}
)

// waitForEvent blocks for the next event. It returns nil once the channel
// is closed.
func waitForEvent(events <-chan notify.Event) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return EventMsg{Event: ev}
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.progress.Width = msg.Width - 30
		if m.progress.Width > 60 {
			m.progress.Width = 60
		}
		if m.progress.Width < 10 {
			m.progress.Width = 10
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			if url := strings.TrimSpace(m.textInput.Value()); url != "" {
				m.textInput.SetValue("")
				return m, m.submit(url)
			}
			return m, nil

		case "tab":
			m.quality = nextTier(m.quality)
			return m, nil

		case "ctrl+t":
			m.audio = !m.audio
			return m, nil

		case "ctrl+x":
			if job := m.lastActive(); job != nil {
				if _, err := m.svc.Cancel(job.ID); err != nil {
					m.err = err
				}
			}
			return m, nil
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case SubmittedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.track(msg.Job)

	case EventMsg:
		if job, ok := m.byID[msg.Event.JobID]; ok {
			job.apply(msg.Event)
		}
		cmds = append(cmds, waitForEvent(m.events))
	}

	var cmd tea.Cmd
	m.textInput, cmd = m.textInput.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// submit queues url with the current options.
func (m Model) submit(url string) tea.Cmd {
	params := model.Params{Target: url, Quality: m.quality, Mode: model.ModeVideo}
	if m.audio {
		params.Mode = model.ModeAudio
	}
	svc := m.svc
	return func() tea.Msg {
		job, pos, err := svc.Submit(params)
		if err != nil {
			return SubmittedMsg{Err: err}
		}
		snap := job.Snapshot()
		view := &JobView{ID: snap.ID, Label: snap.Target, Status: model.StatusRunning, Position: pos}
		if pos > 0 {
			view.Status = model.StatusQueued
		}
		return SubmittedMsg{Job: view, Position: pos}
	}
}

func (m *Model) track(job *JobView) {
	if _, ok := m.byID[job.ID]; ok {
		return
	}
	m.byID[job.ID] = job
	m.jobs = append(m.jobs, job)
	if len(m.jobs) > maxJobs {
		delete(m.byID, m.jobs[0].ID)
		m.jobs = m.jobs[1:]
	}
}

func (m Model) lastActive() *JobView {
	for i := len(m.jobs) - 1; i >= 0; i-- {
		if !m.jobs[i].Status.IsTerminal() {
			return m.jobs[i]
		}
	}
	return nil
}

func nextTier(t model.Tier) model.Tier {
	for i, tier := range model.Tiers {
		if tier == t {
			return model.Tiers[(i+1)%len(model.Tiers)]
		}
	}
	return model.TierBest
}

// View renders the UI.
func (m Model) View() string {
	var b strings.Builder

	// Header
	b.WriteString(titleStyle.Render("🎬 Ytify"))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("Download video and audio with yt-dlp"))
	b.WriteString("\n\n")

	b.WriteString(m.viewInput())
	b.WriteString("\n")

	if len(m.jobs) > 0 {
		b.WriteString(m.viewJobs())
		b.WriteString("\n")
	}

	if m.err != nil {
		b.WriteString(errorStyle.Render("✗ " + m.err.Error()))
		b.WriteString("\n")
	}

	// Footer
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("enter: download • tab: quality • ctrl+t: audio only • ctrl+x: cancel latest • esc: quit"))

	return b.String()
}

func (m Model) viewInput() string {
	var b strings.Builder

	b.WriteString(subtitleStyle.Render("Enter video URL:"))
	b.WriteString("\n\n")
	b.WriteString(m.textInput.View())
	b.WriteString("\n\n")

	audioCheck := "[ ]"
	if m.audio {
		audioCheck = "[×]"
	}
	b.WriteString(infoStyle.Render("Options:"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Quality: %s (tab)\n", m.quality))
	b.WriteString(fmt.Sprintf("  %s Audio only, MP3 (ctrl+t)\n", audioCheck))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render(fmt.Sprintf("Download path: %s", m.settings.DownloadsPath)))
	b.WriteString("\n")

	return b.String()
}

func (m Model) viewJobs() string {
	var rows []string
	for _, job := range m.jobs {
		rows = append(rows, m.viewJob(job))
	}
	return boxStyle.Render(strings.Join(rows, "\n"))
}

func (m Model) viewJob(job *JobView) string {
	var b strings.Builder
	b.WriteString(titleTextStyle.Render("♪ " + job.Label))
	b.WriteString("\n")

	switch job.Status {
	case model.StatusQueued:
		b.WriteString(dimStyle.Render(fmt.Sprintf("  queued at position %d", job.Position)))
	case model.StatusRunning, "":
		b.WriteString("  ")
		b.WriteString(m.progress.ViewAs(job.Progress / 100))
		if job.Speed != "" {
			b.WriteString(infoStyle.Render(fmt.Sprintf(" %s ETA %s", job.Speed, job.ETA)))
		}
	case model.StatusRetrying:
		b.WriteString("  ")
		b.WriteString(m.spinner.View())
		b.WriteString(warningStyle.Render(" " + job.Message))
	case model.StatusCompleted:
		b.WriteString(successStyle.Render("  ✓ " + job.Output))
	case model.StatusFailed:
		b.WriteString(errorStyle.Render("  ✗ " + job.Message))
	case model.StatusCancelled:
		b.WriteString(warningStyle.Render("  ! cancelled"))
	}
	return b.String()
}

// Run starts the TUI on svc until the user quits or ctx is done.
func Run(ctx context.Context, svc *service.Service, settings *config.Settings) error {
	sub := notify.NewChannelSubscriber(0)
	defer sub.Close()
	handle := svc.Notifier().Subscribe("", sub)
	defer svc.Notifier().Unsubscribe(handle)

	p := tea.NewProgram(NewModel(svc, sub.Events(), settings), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
