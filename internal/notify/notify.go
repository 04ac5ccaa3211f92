// Package notify surfaces run events that need a human: a gate waiting for
// approval, a run finishing or failing. Delivery is desktop-notification
// via osascript, best-effort by design.
package notify

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/loopline/loopline/internal/events"
)

// Attach subscribes the notifier to the bus events a human cares about and
// returns a function that detaches it.
func Attach(bus *events.Bus, send func(title, message string) error) func() {
	if send == nil {
		send = Send
	}

	notify := func(title string) events.Subscriber {
		return func(ev events.Event) {
			_ = send(title, describe(ev))
		}
	}

	unsubs := []func(){
		bus.Subscribe(events.EventRunBlocked, notify("loopline: approval needed")),
		bus.Subscribe(events.EventGateRejected, notify("loopline: gate rejected")),
		bus.Subscribe(events.EventRunCompleted, notify("loopline: run completed")),
		bus.Subscribe(events.EventRunFailed, notify("loopline: run failed")),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

func describe(ev events.Event) string {
	runID, _ := ev.Data["run_id"].(string)
	gateID, _ := ev.Data["gate_id"].(string)
	reason, _ := ev.Data["reason"].(string)

	parts := []string{}
	if runID != "" {
		parts = append(parts, "run "+runID)
	}
	if gateID != "" {
		parts = append(parts, "gate "+gateID)
	}
	if reason != "" {
		parts = append(parts, reason)
	}
	if len(parts) == 0 {
		return string(ev.Type)
	}
	return strings.Join(parts, ", ")
}

// Send sends a macOS notification via osascript with sound.
func Send(title, message string) error {
	title = escapeAppleScript(title)
	message = escapeAppleScript(message)

	script := fmt.Sprintf(
		`display notification %q with title %q sound name "default"`,
		message, title,
	)

	cmd := exec.Command("osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
