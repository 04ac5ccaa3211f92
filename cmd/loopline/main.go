package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loopline/loopline/internal/daemon"
	"github.com/loopline/loopline/internal/engine"
	"github.com/loopline/loopline/internal/model"
	"github.com/loopline/loopline/internal/playback"
	"github.com/loopline/loopline/internal/registry"
	"github.com/loopline/loopline/internal/setup"
	"github.com/loopline/loopline/internal/status"
	"github.com/loopline/loopline/internal/uds"
	"github.com/loopline/loopline/internal/validate"
	looplineyaml "github.com/loopline/loopline/internal/yaml"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "play":
		runPlay(os.Args[2:])
	case "inspect":
		runInspect(os.Args[2:])
	case "skills":
		runSkills(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "run":
		runRun(os.Args[2:])
	case "version":
		fmt.Printf("loopline %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`loopline - gated workflow loops

usage: loopline <command> [options]

commands:
  init [<dir>]
      Scaffold a .loopline/ workspace with a starter loop and skills.

  validate <loop.yaml> [--skills <dir>]
      Check a loop definition and report every defect.

  play <loop.yaml> [--skills <dir>] [--autonomy <level>] [--session <dir>] [--speed <ms>]
      Execute a loop with timed playback. Human gates prompt on the
      terminal unless autonomy is autonomous.

  inspect <loop.yaml> <run.yaml> [--json]
      Replay an exported run log and print its state.

  skills <dir>
      List the skill documents in a directory.

  serve [--dir <workspace>] [--log-level <level>] [--notify]
      Run the daemon, controlling runs over a Unix socket.

  run <start|list|status|step|skip|approve|reject|reset|stop> [options]
      Control runs on a serving daemon.

  version
      Print the version.`)
}

// openRegistry accepts every skill id at face value. Used when no skills
// directory is available; referential validation then only checks the
// definition's internal consistency.
type openRegistry struct{}

func (openRegistry) Resolve(skillID string) (registry.Skill, error) {
	return registry.Skill{ID: skillID}, nil
}

func buildRegistry(skillsDir string) (registry.Registry, error) {
	if skillsDir == "" {
		return openRegistry{}, nil
	}
	return registry.NewDirRegistry(skillsDir)
}

func runValidate(args []string) {
	var loopPath, skillsDir string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--skills":
			if i+1 >= len(args) {
				fmt.Fprintln(os.Stderr, "--skills requires a directory")
				os.Exit(1)
			}
			i++
			skillsDir = args[i]
		default:
			loopPath = args[i]
		}
	}
	if loopPath == "" {
		fmt.Fprintln(os.Stderr, "usage: loopline validate <loop.yaml> [--skills <dir>]")
		os.Exit(1)
	}

	def, err := looplineyaml.LoadDefinition(loopPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	reg, err := buildRegistry(skillsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if errs := validate.Definition(def, reg); errs != nil {
		fmt.Fprint(os.Stderr, errs.FormatStderr())
		fmt.Fprintf(os.Stderr, "%s: %d error(s)\n", loopPath, len(errs.Errors))
		os.Exit(1)
	}
	fmt.Printf("%s: ok (%d phases, %d steps, %d gates)\n",
		loopPath, len(def.Phases), def.TotalSteps(), len(def.Gates))
}

func runPlay(args []string) {
	var loopPath, skillsDir, sessionDir string
	autonomy := model.Autonomy("")
	speed := playback.DefaultInterval

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--skills":
			i++
			skillsDir = argAt(args, i, "--skills")
		case "--autonomy":
			i++
			autonomy = model.Autonomy(argAt(args, i, "--autonomy"))
		case "--session":
			i++
			sessionDir = argAt(args, i, "--session")
		case "--speed":
			i++
			ms, err := strconv.Atoi(argAt(args, i, "--speed"))
			if err != nil || ms <= 0 {
				fmt.Fprintln(os.Stderr, "--speed requires a positive millisecond count")
				os.Exit(1)
			}
			speed = time.Duration(ms) * time.Millisecond
		default:
			loopPath = args[i]
		}
	}
	if loopPath == "" {
		fmt.Fprintln(os.Stderr, "usage: loopline play <loop.yaml> [options]")
		os.Exit(1)
	}

	def, err := looplineyaml.LoadDefinition(loopPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	reg, err := buildRegistry(skillsDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	host := engine.NewHost(reg, nil, nil)
	eng, err := host.Start(def, autonomy)
	if err != nil {
		if verrs, ok := err.(*validate.ValidationErrors); ok {
			fmt.Fprint(os.Stderr, verrs.FormatStderr())
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}

	if sessionDir == "" {
		sessionDir = filepath.Join(".loopline", "sessions", eng.RunID())
	}
	sess, err := playback.OpenSession(sessionDir, eng, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer sess.Close()

	sess.SetObserver(func(snap model.Snapshot) {
		p := status.Overall(def, snap)
		fmt.Printf("\r%s %3.0f%%  phase %s  %s",
			status.Bar(p, 20), p.Percent,
			def.Phases[snap.CurrentPhaseIndex].Tag, snap.RunStatus)
	})

	ctrl := sess.Controller()
	ctrl.SetSpeed(speed)
	ctrl.Play()

	fmt.Printf("run %s started (loop %s, autonomy %s)\n", eng.RunID(), def.ID, eng.Snapshot().Autonomy)

	reader := bufio.NewReader(os.Stdin)
	for {
		snap := eng.Snapshot()
		if model.IsRunTerminal(snap.RunStatus) {
			break
		}
		if snap.RunStatus == model.RunBlocked {
			if !promptGate(reader, eng, def, snap) {
				break
			}
			ctrl.Play()
			continue
		}
		time.Sleep(50 * time.Millisecond)
	}

	fmt.Println()
	if path, err := sess.Export(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	} else {
		fmt.Printf("run exported to %s\n", path)
	}
	final := status.Build(def, eng.Snapshot())
	if err := status.Render(os.Stdout, final, false); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if final.RunStatus != model.RunCompleted {
		os.Exit(1)
	}
}

// promptGate asks the operator to decide the gate blocking the current
// boundary. Returns false when the run should stop.
func promptGate(reader *bufio.Reader, eng *engine.Engine, def *model.LoopDefinition, snap model.Snapshot) bool {
	tag := def.Phases[snap.CurrentPhaseIndex].Tag
	gate := def.GateAfter(tag)
	if gate == nil || snap.Gates[gate.ID] != model.GatePending {
		// blocked on a rejected gate; nothing left to decide
		return false
	}

	fmt.Printf("\ngate %q after phase %s (approval: %s)\n", gate.ID, tag, gate.Approval)
	for {
		fmt.Print("approve, reject, or quit? [a/r/q]: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return false
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "a", "approve":
			if _, err := eng.ApproveGate(gate.ID); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				return false
			}
			return true
		case "r", "reject":
			if _, err := eng.RejectGate(gate.ID, "rejected at terminal"); err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
			return false
		case "q", "quit":
			return false
		}
	}
}

func runInspect(args []string) {
	var loopPath, runPath string
	jsonOutput := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--json":
			jsonOutput = true
		default:
			if loopPath == "" {
				loopPath = args[i]
			} else {
				runPath = args[i]
			}
		}
	}
	if loopPath == "" || runPath == "" {
		fmt.Fprintln(os.Stderr, "usage: loopline inspect <loop.yaml> <run.yaml> [--json]")
		os.Exit(1)
	}

	def, err := looplineyaml.LoadDefinition(loopPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	st, err := playback.LoadExport(runPath, def)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	report := status.Build(def, st.Snapshot(nil))
	if err := status.Render(os.Stdout, report, jsonOutput); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runSkills(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: loopline skills <dir>")
		os.Exit(1)
	}

	reg, err := registry.NewDirRegistry(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	skills := reg.Skills()
	if len(skills) == 0 {
		fmt.Println("no skills found")
		return
	}
	fmt.Printf("%-24s  %-28s  %s\n", "ID", "NAME", "PREREQUISITES")
	for _, s := range skills {
		fmt.Printf("%-24s  %-28s  %s\n", s.ID, s.Name, strings.Join(s.Prerequisites, ", "))
	}
}

func argAt(args []string, i int, flag string) string {
	if i >= len(args) {
		fmt.Fprintf(os.Stderr, "%s requires a value\n", flag)
		os.Exit(1)
	}
	return args[i]
}

func runInit(args []string) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	base, err := setup.Run(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Initialized %s\n", base)
	fmt.Printf("Try: loopline validate %s --skills %s\n",
		filepath.Join(base, "loop.yaml"), filepath.Join(base, "skills"))
}

func runServe(args []string) {
	dir := ".loopline"
	level := "info"
	notifications := false
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--dir":
			i++
			dir = argAt(args, i, "--dir")
		case "--log-level":
			i++
			level = argAt(args, i, "--log-level")
		case "--notify":
			notifications = true
		default:
			fmt.Fprintf(os.Stderr, "unknown serve option: %s\n", args[i])
			os.Exit(1)
		}
	}

	d, err := daemon.New(dir, daemon.Options{
		LogLevel:      daemon.ParseLogLevel(level),
		Notifications: notifications,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "serve: %v\n", err)
		os.Exit(1)
	}
}

func runRun(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: loopline run <start|list|status|step|skip|approve|reject|reset|stop> [options]")
		os.Exit(1)
	}

	sub := args[0]
	rest := args[1:]

	var dir, runID, gateID, loopPath, autonomy, reason string
	dir = ".loopline"
	phase, step := -1, -1
	jsonOutput := false
	for i := 0; i < len(rest); i++ {
		switch rest[i] {
		case "--dir":
			i++
			dir = argAt(rest, i, "--dir")
		case "--run":
			i++
			runID = argAt(rest, i, "--run")
		case "--gate":
			i++
			gateID = argAt(rest, i, "--gate")
		case "--loop":
			i++
			loopPath = argAt(rest, i, "--loop")
		case "--autonomy":
			i++
			autonomy = argAt(rest, i, "--autonomy")
		case "--reason":
			i++
			reason = argAt(rest, i, "--reason")
		case "--phase":
			i++
			phase = mustInt(argAt(rest, i, "--phase"), "--phase")
		case "--step":
			i++
			step = mustInt(argAt(rest, i, "--step"), "--step")
		case "--json":
			jsonOutput = true
		default:
			fmt.Fprintf(os.Stderr, "unknown run option: %s\n", rest[i])
			os.Exit(1)
		}
	}

	client := uds.NewClient(filepath.Join(dir, uds.DefaultSocketName))

	type runParams struct {
		RunID string `json:"run_id"`
	}
	type stepParams struct {
		RunID  string `json:"run_id"`
		Phase  int    `json:"phase"`
		Step   int    `json:"step"`
		Reason string `json:"reason,omitempty"`
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

	var (
		resp *uds.Response
		err  error
	)
	switch sub {
	case "start":
		if loopPath == "" {
			fatalUsage("run start --loop <loop.yaml> [--autonomy <level>]")
		}
		abs, aerr := filepath.Abs(loopPath)
		if aerr != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", aerr)
			os.Exit(1)
		}
		resp, err = client.SendCommand("start", startParams{LoopPath: abs, Autonomy: autonomy})
	case "list":
		resp, err = client.SendCommand("runs", nil)
	case "status":
		requireRun(runID, "status")
		resp, err = client.SendCommand("status", runParams{RunID: runID})
	case "step":
		requireRun(runID, "step")
		if phase < 0 || step < 0 {
			fatalUsage("run step --run <id> --phase <n> --step <n>")
		}
		resp, err = client.SendCommand("complete_step", stepParams{RunID: runID, Phase: phase, Step: step})
	case "skip":
		requireRun(runID, "skip")
		if phase < 0 {
			fatalUsage("run skip --run <id> --phase <n> [--step <n>]")
		}
		if step < 0 {
			resp, err = client.SendCommand("skip_phase", stepParams{RunID: runID, Phase: phase})
		} else {
			resp, err = client.SendCommand("skip_step", stepParams{RunID: runID, Phase: phase, Step: step})
		}
	case "approve":
		requireRun(runID, "approve")
		if gateID == "" {
			fatalUsage("run approve --run <id> --gate <id>")
		}
		resp, err = client.SendCommand("approve_gate", gateParams{RunID: runID, GateID: gateID})
	case "reject":
		requireRun(runID, "reject")
		if gateID == "" {
			fatalUsage("run reject --run <id> --gate <id> [--reason <text>]")
		}
		resp, err = client.SendCommand("reject_gate", gateParams{RunID: runID, GateID: gateID, Reason: reason})
	case "reset":
		requireRun(runID, "reset")
		resp, err = client.SendCommand("reset", runParams{RunID: runID})
	case "stop":
		resp, err = client.SendCommand("shutdown", nil)
	default:
		fmt.Fprintf(os.Stderr, "unknown run subcommand: %s\n", sub)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", resp.Error.Code, resp.Error.Message)
		os.Exit(1)
	}

	switch sub {
	case "list":
		var data struct {
			Runs []string `json:"runs"`
		}
		if err := resp.DecodeData(&data); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if len(data.Runs) == 0 {
			fmt.Println("no runs")
			return
		}
		for _, id := range data.Runs {
			fmt.Println(id)
		}
	case "stop":
		fmt.Println("daemon stopping")
	default:
		var report status.Report
		if err := resp.DecodeData(&report); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		if err := status.Render(os.Stdout, report, jsonOutput); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}

func requireRun(runID, sub string) {
	if runID == "" {
		fatalUsage("run " + sub + " --run <id> [options]")
	}
}

func fatalUsage(usage string) {
	fmt.Fprintf(os.Stderr, "usage: loopline %s\n", usage)
	os.Exit(1)
}

func mustInt(s, flag string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		fmt.Fprintf(os.Stderr, "%s requires a non-negative integer\n", flag)
		os.Exit(1)
	}
	return n
}
