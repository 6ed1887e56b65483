// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package pipeline

import (
	"github.com/google/uuid"

	"github.com/aiku/wa-stickerbot/pkg/chat"
)

// Outcome is the terminal state of a MediaJob.
type Outcome string

const (
	OutcomePending   Outcome = "pending"
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
)

// MediaJob converts one media item into one delivered sticker. Scratch paths
// are assigned while the job runs and their files are gone once it settles.
type MediaJob struct {
	ID                string
	SourceRef         *chat.MediaRef
	Kind              chat.MediaKind
	OriginID          string
	ScratchInputPath  string
	ScratchOutputPath string
	Outcome           Outcome
	Err               error
}

// NewJob returns a pending job for ref, destined for originID.
func NewJob(ref *chat.MediaRef, originID string) *MediaJob {
	return &MediaJob{
		ID:        uuid.NewString(),
		SourceRef: ref,
		Kind:      ref.Kind,
		OriginID:  originID,
		Outcome:   OutcomePending,
	}
}

func (j *MediaJob) settle(err error) {
	j.Err = err
	if err != nil {
		j.Outcome = OutcomeFailed
	} else {
		j.Outcome = OutcomeSucceeded
	}
}

// BatchResult tallies the outcomes of one batch.
type BatchResult struct {
	Total     int
	Succeeded int
	Failed    int
}

func tally(jobs []*MediaJob) BatchResult {
	res := BatchResult{Total: len(jobs)}
	for _, job := range jobs {
		if job.Outcome == OutcomeSucceeded {
			res.Succeeded++
		} else {
			res.Failed++
		}
	}
	return res
}
