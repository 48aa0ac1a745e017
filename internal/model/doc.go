// Package model defines the core data structures shared by the queue,
// the orchestrator and the API layer.
//
// # Job
//
// Job is one requested fetch tracked through its lifecycle:
//
//	job := model.NewJob(model.Params{
//	    Target:  model.CleanURL(rawURL),
//	    Quality: model.ParseTier("1080p"),
//	    Mode:    model.ModeVideo,
//	})
//	fmt.Println(job.ID, job.Status()) // "3f9a0c1d queued"
//
// Status changes go through Job.Transition, which rejects anything the
// transition table does not allow. Terminal statuses are completed,
// failed and cancelled; running and retrying may alternate.
//
// # Quality tiers
//
// Tier values are ordered best → 1080p → 720p → 480p → 360p.
// Tier.Downgrade steps one level down and reports false at the bottom.
package model
