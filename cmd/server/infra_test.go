package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	eventmemory "namereg/internal/events/store/memory"
	eventpostgres "namereg/internal/events/store/postgres"
)

func TestEventWiringWithoutPostgresUsesBoundedMemoryLog(t *testing.T) {
	in := &infra{}
	w := in.eventWiring(50)

	log, ok := w.log.(*eventmemory.InMemoryStore)
	require.True(t, ok, "expected the in-memory log, got %T", w.log)
	require.Len(t, w.sinks, 1)
	assert.Same(t, log, w.sinks[0])
}

func TestEventWiringReadsHistoryFromOutbox(t *testing.T) {
	outbox := eventpostgres.New(nil)
	in := &infra{outbox: outbox}
	w := in.eventWiring(50)

	assert.Same(t, outbox, w.log)
	require.Len(t, w.sinks, 1)
	assert.Same(t, outbox, w.sinks[0])
}

func TestEventWiringLeavesNothingToPublishWhenRecordsStageEvents(t *testing.T) {
	outbox := eventpostgres.New(nil)
	in := &infra{outbox: outbox, stagesEvents: true}
	w := in.eventWiring(50)

	assert.Same(t, outbox, w.log)
	assert.Empty(t, w.sinks)
}
