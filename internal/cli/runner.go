package cli

import (
	"fmt"
	"time"

	"proctor/internal/delivery"
	"proctor/internal/expr"
	"proctor/internal/session"
	"proctor/pkg/logging"
	"proctor/pkg/qti"
)

// RunOptions configures one scripted in-process run.
type RunOptions struct {
	// TestFile is the assessment document to load.
	TestFile string
	// ScriptFile holds the steps driving the session.
	ScriptFile string
	// Config is the behavior flag bitset for the session.
	Config session.Config
	// Start anchors the session clock. Zero means time.Now.
	Start time.Time
}

// Outcome is one rendered outcome variable of the finished session.
type Outcome struct {
	Name  string
	Value string
}

// ItemReport is the per-item row of a run report.
type ItemReport struct {
	Item       string
	State      string
	Attempts   int
	Completion string
	Duration   string
	Outcomes   []Outcome
}

// RunReport is what a scripted run hands back for rendering.
type RunReport struct {
	Test        string
	Title       string
	State       string
	Duration    string
	Items       []ItemReport
	Outcomes    []Outcome
	UnusedSteps int
}

// Run loads the assessment and script, drives a session through every
// step, and reports how the session ended.
func Run(opts RunOptions) (*RunReport, error) {
	asmt, err := delivery.LoadAssessment(opts.TestFile)
	if err != nil {
		return nil, err
	}
	script, err := LoadScript(opts.ScriptFile)
	if err != nil {
		return nil, err
	}
	return runScript(asmt, script, opts)
}

// runScript walks the route, pairing each interactable item with the
// next script step. Items the script skips or runs out of steps for
// are moved past without an attempt.
func runScript(asmt *delivery.Assessment, script *Script, opts RunOptions) (*RunReport, error) {
	now := opts.Start
	if now.IsZero() {
		now = time.Now().UTC()
	}

	sess := session.New(asmt.Test, asmt.Route, expr.NewEvaluator(), &session.Options{
		ID:     "scripted-run",
		Config: opts.Config,
		OnEvent: func(ev session.Event) {
			logging.Debug("Run", "op=%s state=%s position=%d item=%s", ev.Op, ev.State, ev.Position, ev.Item)
		},
	})

	if err := sess.SetTime(now); err != nil {
		return nil, fmt.Errorf("failed to set the session clock: %w", err)
	}
	if err := sess.Begin(); err != nil {
		return nil, fmt.Errorf("failed to begin the session: %w", err)
	}

	next := 0
	for sess.State() == session.TestInteracting || sess.State() == session.TestModalFeedback {
		if sess.State() == session.TestModalFeedback {
			if err := sess.MoveNext(); err != nil {
				return nil, fmt.Errorf("dismissing feedback: %w", err)
			}
			continue
		}

		current, err := sess.CurrentItem()
		if err != nil {
			return nil, err
		}
		if next >= len(script.Steps) {
			if err := sess.MoveNext(); err != nil {
				return nil, fmt.Errorf("moving past %s: %w", current, err)
			}
			continue
		}

		step := &script.Steps[next]
		if step.Item != "" && step.Item != current.String() {
			return nil, fmt.Errorf("step %d expects item %s, the route is at %s", next+1, step.Item, current)
		}
		next++

		if !step.Skip {
			if err := sess.BeginAttempt(false); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", next, current, err)
			}
			if wait := step.waitOf(); wait > 0 {
				now = now.Add(wait)
				if err := sess.SetTime(now); err != nil {
					return nil, fmt.Errorf("step %d (%s): %w", next, current, err)
				}
				// A wait can run the test clock out. The report still
				// covers what happened before the limit hit.
				if sess.State() != session.TestInteracting {
					break
				}
			}
			responses, err := delivery.ResponsesFromJSON(current.ItemRef, step.Responses)
			if err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", next, current, err)
			}
			if err := sess.EndAttempt(responses, false); err != nil {
				return nil, fmt.Errorf("step %d (%s): %w", next, current, err)
			}
			if sess.State() != session.TestInteracting {
				continue
			}
		}

		if err := sess.MoveNext(); err != nil {
			return nil, fmt.Errorf("moving past %s: %w", current, err)
		}
	}

	report := buildReport(asmt, sess)
	report.UnusedSteps = len(script.Steps) - next
	if report.UnusedSteps < 0 {
		report.UnusedSteps = 0
	}
	return report, nil
}

// buildReport projects the ended session into a report: one row per
// route item plus the test-level outcomes.
func buildReport(asmt *delivery.Assessment, sess *session.TestSession) *RunReport {
	report := &RunReport{
		Test:     asmt.ID,
		Title:    asmt.Test.Title,
		State:    sess.State().String(),
		Duration: sess.Durations().Get(asmt.ID).ISO(),
		Outcomes: outcomePairs(sess.Outcomes()),
	}
	for _, it := range sess.Route().Items() {
		row := ItemReport{
			Item:       it.String(),
			State:      session.ItemNotSelected.String(),
			Completion: session.CompletionNotAttempted,
		}
		if item, ok := sess.Sessions().Get(it.ItemRef, it.Occurrence); ok {
			row.State = item.State().String()
			row.Attempts = item.NumAttempts()
			row.Completion = item.CompletionStatus()
			row.Duration = item.Duration().ISO()
			row.Outcomes = outcomePairs(item.Vars())
		}
		report.Items = append(report.Items, row)
	}
	return report
}

// outcomePairs renders the outcome variables of a set in declaration
// order.
func outcomePairs(vars *session.Variables) []Outcome {
	var out []Outcome
	for _, name := range vars.Names() {
		v := vars.Variable(name)
		if v.Kind != session.VarOutcome {
			continue
		}
		out = append(out, Outcome{Name: name, Value: formatValue(v.Value)})
	}
	return out
}

// formatValue renders a variable value for the report. NULL shows as
// a dash.
func formatValue(v qti.Value) string {
	if qti.IsNull(v) {
		return "-"
	}
	return v.String()
}
