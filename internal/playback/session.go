package playback

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/loopline/loopline/internal/engine"
	"github.com/loopline/loopline/internal/events"
	"github.com/loopline/loopline/internal/lock"
	"github.com/loopline/loopline/internal/model"
	looplineyaml "github.com/loopline/loopline/internal/yaml"

	yamlv3 "gopkg.in/yaml.v3"
)

const (
	sessionLockName   = "session.lock"
	sessionAuditName  = "events.jsonl"
	sessionExportName = "run.yaml"
)

// Session ties a controller to a directory on disk: an advisory lock so two
// sessions never share it, and a JSONL audit trail of every event the run
// produces. The in-memory log stays authoritative; the audit file is an
// export.
type Session struct {
	dir   string
	flock *lock.FileLock
	audit *events.AuditWriter
	ctrl  *Controller
	eng   *engine.Engine
}

// OpenSession locks dir and starts a paused controller for the run.
func OpenSession(dir string, eng *engine.Engine, runner engine.StepRunner) (*Session, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}

	flock := lock.NewFileLock(filepath.Join(dir, sessionLockName))
	if err := flock.TryLock(); err != nil {
		return nil, err
	}

	audit, err := events.NewAuditWriter(filepath.Join(dir, sessionAuditName), 0)
	if err != nil {
		flock.Unlock()
		return nil, err
	}

	s := &Session{
		dir:   dir,
		flock: flock,
		audit: audit,
		eng:   eng,
	}
	s.ctrl = New(eng, runner)
	s.ctrl.SetObserver(s.record)
	return s, nil
}

// Controller exposes the playback controls.
func (s *Session) Controller() *Controller {
	return s.ctrl
}

// SetObserver chains a caller observer behind the audit recording.
func (s *Session) SetObserver(obs Observer) {
	s.ctrl.SetObserver(func(snap model.Snapshot) {
		s.record(snap)
		obs(snap)
	})
}

func (s *Session) record(snap model.Snapshot) {
	for _, ev := range snap.NewEvents {
		if err := s.audit.Write(snap.RunID, ev); err != nil {
			// the run log is intact; losing an audit line is not fatal
			fmt.Fprintf(os.Stderr, "audit write failed: %v\n", err)
			return
		}
	}
}

// runExport is the on-disk snapshot of a run, written atomically so a crash
// mid-export never leaves a torn file.
type runExport struct {
	looplineyaml.SchemaHeader `yaml:",inline"`
	RunID                     string           `yaml:"run_id"`
	LoopID                    string           `yaml:"loop_id"`
	Autonomy                  model.Autonomy   `yaml:"autonomy"`
	RunStatus                 model.RunStatus  `yaml:"run_status"`
	CurrentPhaseIndex         int              `yaml:"current_phase_index"`
	Events                    []model.LogEvent `yaml:"events"`
}

// Export writes the run's event log to the session directory. The export
// plus the definition is enough to rebuild the run state.
func (s *Session) Export() (string, error) {
	snap := s.eng.Snapshot()
	doc := runExport{
		SchemaHeader: looplineyaml.SchemaHeader{
			SchemaVersion: looplineyaml.CurrentSchemaVersion,
			FileType:      looplineyaml.FileTypeRunExport,
		},
		RunID:             snap.RunID,
		LoopID:            snap.LoopID,
		Autonomy:          snap.Autonomy,
		RunStatus:         snap.RunStatus,
		CurrentPhaseIndex: snap.CurrentPhaseIndex,
		Events:            snap.Events,
	}
	path := filepath.Join(s.dir, sessionExportName)
	if err := looplineyaml.AtomicWrite(path, doc); err != nil {
		return "", fmt.Errorf("export run: %w", err)
	}
	return path, nil
}

// LoadExport reads a run export and replays it into execution state.
func LoadExport(path string, def *model.LoopDefinition) (*model.ExecutionState, error) {
	if err := looplineyaml.ValidateSchemaHeader(path, looplineyaml.FileTypeRunExport); err != nil {
		return nil, fmt.Errorf("run export %s: %w", path, err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run export: %w", err)
	}
	var doc runExport
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse run export: %w", err)
	}
	if doc.LoopID != def.ID {
		return nil, fmt.Errorf("run export is for loop %q, not %q", doc.LoopID, def.ID)
	}
	return engine.Replay(def, doc.RunID, doc.Autonomy, doc.Events)
}

// Close stops playback, flushes the audit trail, and releases the lock.
func (s *Session) Close() error {
	s.ctrl.Stop()
	if err := s.audit.Close(); err != nil {
		s.flock.Unlock()
		return err
	}
	return s.flock.Unlock()
}
