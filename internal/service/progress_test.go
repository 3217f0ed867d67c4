package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/toothsense-analysis-server/internal/domain"
)

func TestProgressTracker_Advance(t *testing.T) {
	log := &eventLog{}
	tracker := NewProgressTracker("a-1", log, nil)

	assert.Equal(t, domain.StageIdle, tracker.Stage())
	assert.Equal(t, 0, tracker.Progress())

	for range domain.StageOrder {
		_, ok := tracker.Advance()
		assert.True(t, ok)
	}
	stage, ok := tracker.Advance()

	assert.False(t, ok)
	assert.Equal(t, domain.StageComplete, stage)
	assert.Equal(t, domain.StageOrder, log.stages())
	assert.Equal(t, []int{10, 30, 60, 90, 100}, log.progress())

	for _, e := range log.events {
		assert.Equal(t, "a-1", e.AnalysisID)
		assert.False(t, e.At.IsZero())
	}
	assert.Equal(t, "Uploading image...", log.events[0].Message)
}

func TestProgressTracker_Reset(t *testing.T) {
	log := &eventLog{}
	tracker := NewProgressTracker("a-2", log, nil)

	tracker.Reset()
	assert.Empty(t, log.events, "resetting an idle tracker emits nothing")

	tracker.Advance()
	tracker.Advance()
	tracker.Reset()

	assert.Equal(t, domain.StageIdle, tracker.Stage())
	assert.Equal(t, 0, tracker.Progress())
	assert.Equal(t, []domain.ProcessingStage{domain.StageUploading, domain.StagePreprocessing, domain.StageIdle}, log.stages())
	assert.Equal(t, []int{10, 30, 0}, log.progress())
}

func TestProgressTracker_NilObserver(t *testing.T) {
	tracker := NewProgressTracker("a-3", nil, nil)

	assert.NotPanics(t, func() {
		tracker.Advance()
		tracker.Reset()
	})
}
