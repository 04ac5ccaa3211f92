package engine

import (
	"fmt"
	"log"
	"sync"

	"github.com/loopline/loopline/internal/events"
	"github.com/loopline/loopline/internal/lock"
	"github.com/loopline/loopline/internal/model"
	"github.com/loopline/loopline/internal/registry"
	"github.com/loopline/loopline/internal/validate"
)

// Host manages the set of live runs in a process. Starting a run validates
// its definition first; a definition with errors never reaches an engine.
type Host struct {
	reg    registry.Registry
	bus    *events.Bus
	logger *log.Logger

	locks *lock.MutexMap

	mu   sync.Mutex
	runs map[string]*Engine
}

func NewHost(reg registry.Registry, bus *events.Bus, logger *log.Logger) *Host {
	return &Host{
		reg:    reg,
		bus:    bus,
		logger: logger,
		locks:  lock.NewMutexMap(),
		runs:   make(map[string]*Engine),
	}
}

// Start validates the definition and, when clean, creates a run. The
// returned error is a *validate.ValidationErrors when validation failed.
func (h *Host) Start(def *model.LoopDefinition, autonomy model.Autonomy) (*Engine, error) {
	if errs := validate.Definition(def, h.reg); errs != nil {
		return nil, errs
	}

	eng, err := New(def, autonomy)
	if err != nil {
		return nil, err
	}
	eng.SetBus(h.bus)
	eng.SetLogger(h.logger)

	h.mu.Lock()
	h.runs[eng.RunID()] = eng
	h.mu.Unlock()

	if h.logger != nil {
		h.logger.Printf("run %s started for loop %q", eng.RunID(), def.ID)
	}
	return eng, nil
}

// Get returns the engine for a live run.
func (h *Host) Get(runID string) (*Engine, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	eng, ok := h.runs[runID]
	if !ok {
		return nil, fmt.Errorf("unknown run %q", runID)
	}
	return eng, nil
}

// Reset restarts a run in place. The run keeps its id, so held references
// and lock keys stay valid.
func (h *Host) Reset(runID string) (model.Snapshot, error) {
	eng, err := h.Get(runID)
	if err != nil {
		return model.Snapshot{}, err
	}
	h.locks.Lock(runID)
	defer h.locks.Unlock(runID)
	return eng.Reset(), nil
}

// Remove drops a run from the host. The engine itself stays usable by
// anyone still holding it.
func (h *Host) Remove(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.runs, runID)
}

// RunIDs lists the live runs.
func (h *Host) RunIDs() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]string, 0, len(h.runs))
	for id := range h.runs {
		ids = append(ids, id)
	}
	return ids
}
