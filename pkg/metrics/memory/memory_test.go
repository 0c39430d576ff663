package memory

import (
	"testing"
	"time"

	"payflow/pkg/metrics"
)

func TestMemoryCollector_Snapshot(t *testing.T) {
	mc := NewMemoryCollector()

	mc.RecordInitiate(true, time.Millisecond)
	mc.RecordInitiate(false, time.Millisecond)
	mc.RecordStatusQuery("pending", true, time.Millisecond)
	mc.RecordStatusQuery("", false, time.Millisecond)
	mc.RecordCircuitState("gateway", metrics.CircuitOpen)
	mc.RecordCircuitState("gateway", metrics.CircuitOpen)
	mc.RecordCircuitState("gateway", metrics.CircuitHalfOpen)
	mc.RecordCircuitState("gateway", metrics.CircuitOpen)
	mc.RecordPoll("terminal", 4, time.Second)
	mc.RecordOutcome("succeeded")
	mc.RecordJournalWrite("memory", true, time.Microsecond)
	mc.RecordJournalWrite("memory", false, time.Microsecond)
	mc.RecordJournalDropped("memory")
	mc.RecordQueueDepth("memory", 3)
	mc.RecordReferenceCollision()

	s := mc.Snapshot()

	if s.Initiates != 2 || s.InitiateFailures != 1 {
		t.Errorf("initiates = %d/%d, want 2/1", s.Initiates, s.InitiateFailures)
	}
	if s.StatusQueries != 2 || s.StatusQueryFailures != 1 || s.StatusesSeen["pending"] != 1 {
		t.Errorf("status queries = %+v", s)
	}
	if s.CircuitOpens["gateway"] != 2 {
		t.Errorf("circuit opens = %d, want 2", s.CircuitOpens["gateway"])
	}
	if s.Polls["terminal"] != 1 || len(s.PollAttempts) != 1 || s.PollAttempts[0] != 4 {
		t.Errorf("polls = %v %v", s.Polls, s.PollAttempts)
	}
	if s.Outcomes["succeeded"] != 1 {
		t.Errorf("outcomes = %v", s.Outcomes)
	}
	jm := s.Journal["memory"]
	if jm.Writes != 2 || jm.Errors != 1 || jm.Dropped != 1 || jm.QueueDepth != 3 {
		t.Errorf("journal metrics = %+v", jm)
	}
	if s.ReferenceCollisions != 1 {
		t.Errorf("collisions = %d, want 1", s.ReferenceCollisions)
	}

	// Snapshot is a copy
	mc.RecordOutcome("succeeded")
	if s.Outcomes["succeeded"] != 1 {
		t.Error("snapshot changed after further recording")
	}
}

func TestMemoryCollector_Reset(t *testing.T) {
	mc := NewMemoryCollector()
	mc.RecordOutcome("failed")
	mc.RecordJournalDropped("redis")

	mc.Reset()

	s := mc.Snapshot()
	if len(s.Outcomes) != 0 || len(s.Journal) != 0 {
		t.Errorf("metrics not cleared: %+v", s)
	}
}
