package playback

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loopline/loopline/internal/engine"
	"github.com/loopline/loopline/internal/events"
	"github.com/loopline/loopline/internal/model"
)

func playbackDef() *model.LoopDefinition {
	return &model.LoopDefinition{
		SchemaVersion: 1,
		FileType:      "loop_definition",
		ID:            "playback_loop",
		Name:          "Playback Loop",
		Version:       "1.0.0",
		Phases: []model.Phase{
			{Tag: model.PhaseInit, SkillIDs: []string{"spec"}, Required: true},
			{Tag: model.PhaseImplement, SkillIDs: []string{"build", "polish"}, Required: true},
			{Tag: model.PhaseComplete, SkillIDs: []string{"finish"}, Required: true},
		},
		Gates: []model.Gate{
			{ID: "spec_review", AfterPhase: model.PhaseInit, Required: true, Approval: model.ApprovalHuman},
		},
	}
}

func newEngine(t *testing.T, autonomy model.Autonomy) *engine.Engine {
	t.Helper()
	eng, err := engine.New(playbackDef(), autonomy)
	require.NoError(t, err)
	return eng
}

func TestStepAdvancesOneStepInOrder(t *testing.T) {
	eng := newEngine(t, model.AutonomyAutonomous)
	ctrl := New(eng, nil)
	defer ctrl.Stop()

	snap, ok := ctrl.Step(context.Background())
	require.True(t, ok)
	assert.Equal(t, model.StepCompleted, snap.Steps[model.StepKey{Phase: 0, Step: 0}])
	// autonomous run auto-clears the human gate and moves on
	assert.Equal(t, 1, snap.CurrentPhaseIndex)

	snap, ok = ctrl.Step(context.Background())
	require.True(t, ok)
	assert.Equal(t, model.StepCompleted, snap.Steps[model.StepKey{Phase: 1, Step: 0}])
	assert.Equal(t, model.StepPending, snap.Steps[model.StepKey{Phase: 1, Step: 1}])
}

func TestStepStopsAtBlockedBoundary(t *testing.T) {
	eng := newEngine(t, model.AutonomySupervised)
	ctrl := New(eng, nil)
	defer ctrl.Stop()

	snap, ok := ctrl.Step(context.Background())
	require.True(t, ok)
	require.Equal(t, model.RunBlocked, snap.RunStatus)

	// blocked: ticking does nothing until someone approves the gate
	_, ok = ctrl.Step(context.Background())
	assert.False(t, ok)

	_, err := eng.ApproveGate("spec_review")
	require.NoError(t, err)

	snap, ok = ctrl.Step(context.Background())
	require.True(t, ok)
	assert.Equal(t, 1, snap.CurrentPhaseIndex)
}

func TestPlayRunsToCompletion(t *testing.T) {
	eng := newEngine(t, model.AutonomyAutonomous)
	ctrl := New(eng, nil)
	defer ctrl.Stop()

	done := make(chan struct{})
	ctrl.SetObserver(func(snap model.Snapshot) {
		if snap.RunStatus == model.RunCompleted {
			close(done)
		}
	})
	ctrl.SetSpeed(time.Millisecond)
	ctrl.Play()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not complete")
	}
	assert.Equal(t, model.RunCompleted, eng.Snapshot().RunStatus)
}

func TestPlayPausesItselfWhenBlocked(t *testing.T) {
	eng := newEngine(t, model.AutonomySupervised)
	ctrl := New(eng, nil)
	defer ctrl.Stop()

	ctrl.SetSpeed(time.Millisecond)
	ctrl.Play()

	require.Eventually(t, func() bool {
		return eng.Snapshot().RunStatus == model.RunBlocked && !ctrl.Playing()
	}, 5*time.Second, 5*time.Millisecond)
}

func TestFailingRunnerFailsRun(t *testing.T) {
	eng := newEngine(t, model.AutonomyAutonomous)
	ctrl := New(eng, failOn{"build"})
	defer ctrl.Stop()

	_, ok := ctrl.Step(context.Background()) // spec
	require.True(t, ok)
	snap, ok := ctrl.Step(context.Background()) // build fails
	require.True(t, ok)

	assert.Equal(t, model.RunFailed, snap.RunStatus)
	assert.Equal(t, model.StepFailed, snap.Steps[model.StepKey{Phase: 1, Step: 0}])
}

type failOn struct{ skillID string }

func (f failOn) RunStep(ctx context.Context, phase model.Phase, skillID string) engine.StepResult {
	if skillID == f.skillID {
		return engine.StepResult{Outcome: engine.OutcomeFailed, Detail: "simulated failure"}
	}
	return engine.StepResult{Outcome: engine.OutcomeSucceeded}
}

func TestResetPausesAndRestarts(t *testing.T) {
	eng := newEngine(t, model.AutonomyAutonomous)
	ctrl := New(eng, nil)
	defer ctrl.Stop()

	_, ok := ctrl.Step(context.Background())
	require.True(t, ok)

	snap := ctrl.Reset()
	assert.False(t, ctrl.Playing())
	assert.Equal(t, model.RunActive, snap.RunStatus)
	assert.Equal(t, 0, snap.CurrentPhaseIndex)
	assert.Empty(t, snap.Events)
}

func TestSessionLockExcludesSecondSession(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")

	sess, err := OpenSession(dir, newEngine(t, model.AutonomyAutonomous), nil)
	require.NoError(t, err)
	defer sess.Close()

	_, err = OpenSession(dir, newEngine(t, model.AutonomyAutonomous), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "another session")
}

func TestSessionAuditsEveryEvent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")

	eng := newEngine(t, model.AutonomyAutonomous)
	sess, err := OpenSession(dir, eng, nil)
	require.NoError(t, err)

	ctrl := sess.Controller()
	for {
		if _, ok := ctrl.Step(context.Background()); !ok {
			break
		}
	}
	snap := eng.Snapshot()
	require.Equal(t, model.RunCompleted, snap.RunStatus)
	require.NoError(t, sess.Close())

	entries, err := events.ReadAudit(filepath.Join(dir, "events.jsonl"))
	require.NoError(t, err)
	require.Len(t, entries, len(snap.Events))
	for i, entry := range entries {
		assert.Equal(t, snap.RunID, entry.RunID)
		assert.Equal(t, snap.Events[i].Seq, entry.Event.Seq)
	}
}

func TestExportRoundTripsThroughReplay(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")

	def := playbackDef()
	eng, err := engine.New(def, model.AutonomyAutonomous)
	require.NoError(t, err)

	sess, err := OpenSession(dir, eng, nil)
	require.NoError(t, err)
	defer sess.Close()

	ctrl := sess.Controller()
	for {
		if _, ok := ctrl.Step(context.Background()); !ok {
			break
		}
	}
	snap := eng.Snapshot()
	require.Equal(t, model.RunCompleted, snap.RunStatus)

	path, err := sess.Export()
	require.NoError(t, err)

	replayed, err := LoadExport(path, def)
	require.NoError(t, err)
	assert.Equal(t, snap.RunStatus, replayed.RunStatus)
	assert.Equal(t, snap.CurrentPhaseIndex, replayed.CurrentPhaseIndex)
	assert.Equal(t, snap.Steps, replayed.Steps)
	assert.Equal(t, snap.Gates, replayed.Gates)
}

func TestLoadExportRejectsWrongLoop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "session")

	eng := newEngine(t, model.AutonomyAutonomous)
	sess, err := OpenSession(dir, eng, nil)
	require.NoError(t, err)
	defer sess.Close()

	path, err := sess.Export()
	require.NoError(t, err)

	other := playbackDef()
	other.ID = "different_loop"
	_, err = LoadExport(path, other)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "different_loop")
}
