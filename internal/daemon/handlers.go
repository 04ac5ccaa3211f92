package daemon

import (
	"errors"

	"github.com/loopline/loopline/internal/engine"
	"github.com/loopline/loopline/internal/model"
	"github.com/loopline/loopline/internal/status"
	"github.com/loopline/loopline/internal/uds"
	"github.com/loopline/loopline/internal/validate"
	looplineyaml "github.com/loopline/loopline/internal/yaml"
)

type runParams struct {
	RunID string `json:"run_id"`
}

type stepParams struct {
	RunID  string `json:"run_id"`
	Phase  int    `json:"phase"`
	Step   int    `json:"step"`
	Reason string `json:"reason,omitempty"`
}

type phaseParams struct {
	RunID string `json:"run_id"`
	Phase int    `json:"phase"`
}

type gateParams struct {
	RunID  string `json:"run_id"`
	GateID string `json:"gate_id"`
	Reason string `json:"reason,omitempty"`
}

type startParams struct {
	LoopPath string `json:"loop_path"`
	Autonomy string `json:"autonomy,omitempty"`
}

func (d *Daemon) registerHandlers() {
	d.server.Handle("ping", func(req *uds.Request) *uds.Response {
		return uds.SuccessResponse(map[string]string{"status": "ok"})
	})

	d.server.Handle("shutdown", func(req *uds.Request) *uds.Response {
		d.log(LogLevelInfo, "shutdown requested via socket")
		go d.Shutdown()
		return uds.SuccessResponse(map[string]string{"status": "shutdown_accepted"})
	})

	d.server.Handle("start", d.handleStart)
	d.server.Handle("runs", d.handleRuns)
	d.server.Handle("status", d.handleStatus)
	d.server.Handle("reset", d.handleReset)
	d.server.Handle("remove", d.handleRemove)

	d.server.Handle("complete_step", d.stepHandler(func(eng *engine.Engine, p stepParams) (model.Snapshot, error) {
		return eng.CompleteStep(p.Phase, p.Step)
	}))
	d.server.Handle("skip_step", d.stepHandler(func(eng *engine.Engine, p stepParams) (model.Snapshot, error) {
		return eng.SkipStep(p.Phase, p.Step)
	}))
	d.server.Handle("fail_step", d.stepHandler(func(eng *engine.Engine, p stepParams) (model.Snapshot, error) {
		return eng.FailStep(p.Phase, p.Step, p.Reason)
	}))

	d.server.Handle("complete_phase", d.phaseHandler(func(eng *engine.Engine, p phaseParams) (model.Snapshot, error) {
		return eng.CompletePhase(p.Phase)
	}))
	d.server.Handle("skip_phase", d.phaseHandler(func(eng *engine.Engine, p phaseParams) (model.Snapshot, error) {
		return eng.SkipPhase(p.Phase)
	}))
	d.server.Handle("advance", func(req *uds.Request) *uds.Response {
		var p runParams
		if err := req.DecodeParams(&p); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		eng, err := d.host.Get(p.RunID)
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
		}
		snap, err := eng.AdvancePhase()
		if err != nil {
			return transitionResponse(err)
		}
		return d.reportResponse(eng, snap)
	})

	d.server.Handle("approve_gate", d.gateHandler(func(eng *engine.Engine, p gateParams) (model.Snapshot, error) {
		return eng.ApproveGate(p.GateID)
	}))
	d.server.Handle("reject_gate", d.gateHandler(func(eng *engine.Engine, p gateParams) (model.Snapshot, error) {
		return eng.RejectGate(p.GateID, p.Reason)
	}))
}

func (d *Daemon) handleStart(req *uds.Request) *uds.Response {
	var p startParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}

	def, err := looplineyaml.LoadDefinition(p.LoopPath)
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}

	eng, err := d.host.Start(def, model.Autonomy(p.Autonomy))
	if err != nil {
		var verrs *validate.ValidationErrors
		if errors.As(err, &verrs) {
			return uds.ErrorResponse(uds.ErrCodeValidation, verrs.Error())
		}
		return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
	}
	return d.reportResponse(eng, eng.Snapshot())
}

func (d *Daemon) handleRuns(req *uds.Request) *uds.Response {
	return uds.SuccessResponse(map[string]any{"runs": d.host.RunIDs()})
}

func (d *Daemon) handleStatus(req *uds.Request) *uds.Response {
	var p runParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	eng, err := d.host.Get(p.RunID)
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
	}
	return d.reportResponse(eng, eng.Snapshot())
}

func (d *Daemon) handleReset(req *uds.Request) *uds.Response {
	var p runParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	snap, err := d.host.Reset(p.RunID)
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
	}
	eng, err := d.host.Get(p.RunID)
	if err != nil {
		return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
	}
	return d.reportResponse(eng, snap)
}

func (d *Daemon) handleRemove(req *uds.Request) *uds.Response {
	var p runParams
	if err := req.DecodeParams(&p); err != nil {
		return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
	}
	if _, err := d.host.Get(p.RunID); err != nil {
		return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
	}
	d.host.Remove(p.RunID)
	return uds.SuccessResponse(map[string]string{"status": "removed"})
}

func (d *Daemon) stepHandler(op func(*engine.Engine, stepParams) (model.Snapshot, error)) uds.HandlerFunc {
	return func(req *uds.Request) *uds.Response {
		var p stepParams
		if err := req.DecodeParams(&p); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		eng, err := d.host.Get(p.RunID)
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
		}
		snap, err := op(eng, p)
		if err != nil {
			return transitionResponse(err)
		}
		return d.reportResponse(eng, snap)
	}
}

func (d *Daemon) phaseHandler(op func(*engine.Engine, phaseParams) (model.Snapshot, error)) uds.HandlerFunc {
	return func(req *uds.Request) *uds.Response {
		var p phaseParams
		if err := req.DecodeParams(&p); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		eng, err := d.host.Get(p.RunID)
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
		}
		snap, err := op(eng, p)
		if err != nil {
			return transitionResponse(err)
		}
		return d.reportResponse(eng, snap)
	}
}

func (d *Daemon) gateHandler(op func(*engine.Engine, gateParams) (model.Snapshot, error)) uds.HandlerFunc {
	return func(req *uds.Request) *uds.Response {
		var p gateParams
		if err := req.DecodeParams(&p); err != nil {
			return uds.ErrorResponse(uds.ErrCodeValidation, err.Error())
		}
		eng, err := d.host.Get(p.RunID)
		if err != nil {
			return uds.ErrorResponse(uds.ErrCodeNotFound, err.Error())
		}
		snap, err := op(eng, p)
		if err != nil {
			return transitionResponse(err)
		}
		return d.reportResponse(eng, snap)
	}
}

func (d *Daemon) reportResponse(eng *engine.Engine, snap model.Snapshot) *uds.Response {
	return uds.SuccessResponse(status.Build(eng.Definition(), snap))
}

func transitionResponse(err error) *uds.Response {
	var terr *engine.TransitionError
	if errors.As(err, &terr) {
		return uds.ErrorResponse(uds.ErrCodeTransition, terr.Error())
	}
	return uds.ErrorResponse(uds.ErrCodeInternal, err.Error())
}
