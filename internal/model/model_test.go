package model

import "testing"

func TestParseTier(t *testing.T) {
	tests := []struct {
		input string
		want  Tier
	}{
		{"", TierBest},
		{"best", TierBest},
		{"1080", Tier1080p},
		{"HD", Tier1080p},
		{"720p", Tier720p},
		{" 480 ", Tier480p},
		{"360p", Tier360p},
		{"bv*+ba", Tier("bv*+ba")},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseTier(tt.input); got != tt.want {
				t.Errorf("ParseTier(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTier_DowngradeChain(t *testing.T) {
	tier := TierBest
	var visited []Tier
	for {
		next, ok := tier.Downgrade()
		if !ok {
			break
		}
		visited = append(visited, next)
		tier = next
		if len(visited) > len(Tiers) {
			t.Fatal("downgrade chain does not terminate")
		}
	}

	want := []Tier{Tier1080p, Tier720p, Tier480p, Tier360p}
	if len(visited) != len(want) {
		t.Fatalf("visited %v, want %v", visited, want)
	}
	for i := range want {
		if visited[i] != want[i] {
			t.Errorf("step %d = %q, want %q", i, visited[i], want[i])
		}
	}
	if tier != Tier360p {
		t.Errorf("final tier = %q, want %q", tier, Tier360p)
	}
}

func TestTier_DowngradeCustom(t *testing.T) {
	next, ok := Tier("bestvideo[ext=webm]").Downgrade()
	if !ok || next != Tier720p {
		t.Errorf("custom Downgrade() = (%q, %v), want (%q, true)", next, ok, Tier720p)
	}
}

func TestCleanURL(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"https://www.youtube.com/watch?v=abc123&list=PL1&index=2", "https://www.youtube.com/watch?v=abc123"},
		{"https://m.youtube.com/watch?v=abc123", "https://www.youtube.com/watch?v=abc123"},
		{"https://youtu.be/abc123?t=10", "https://www.youtube.com/watch?v=abc123"},
		{"https://vimeo.com/12345", "https://vimeo.com/12345"},
		{"  https://www.youtube.com/feed  ", "https://www.youtube.com/feed"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CleanURL(tt.input); got != tt.want {
				t.Errorf("CleanURL(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestJob_Transitions(t *testing.T) {
	job := NewJob(Params{Target: "https://example.com/v"})

	if job.Status() != StatusQueued {
		t.Fatalf("new job status = %q, want %q", job.Status(), StatusQueued)
	}
	if len(job.ID) != 8 {
		t.Errorf("job ID %q should be 8 characters", job.ID)
	}
	if job.Params.Quality != TierBest || job.Params.Mode != ModeVideo {
		t.Errorf("defaults = (%q, %q), want (best, video)", job.Params.Quality, job.Params.Mode)
	}

	steps := []Status{StatusRunning, StatusRetrying, StatusRunning, StatusCompleted}
	for _, s := range steps {
		if err := job.Transition(s); err != nil {
			t.Fatalf("Transition(%q): %v", s, err)
		}
	}

	if err := job.Transition(StatusRunning); err == nil {
		t.Error("expected error leaving a terminal status")
	}

	snap := job.Snapshot()
	if snap.Progress != 100 {
		t.Errorf("completed progress = %v, want 100", snap.Progress)
	}
	if snap.CompletedAt.IsZero() {
		t.Error("CompletedAt should be set on terminal status")
	}
}

func TestJob_QueuedCannotComplete(t *testing.T) {
	job := NewJob(Params{Target: "https://example.com/v"})
	if err := job.Transition(StatusCompleted); err == nil {
		t.Error("queued -> completed should be rejected")
	}
}

func TestJob_SetProgressClamps(t *testing.T) {
	job := NewJob(Params{Target: "https://example.com/v"})
	job.SetProgress(150)
	if got := job.Snapshot().Progress; got != 100 {
		t.Errorf("progress = %v, want 100", got)
	}
	job.SetProgress(-3)
	if got := job.Snapshot().Progress; got != 0 {
		t.Errorf("progress = %v, want 0", got)
	}
}
