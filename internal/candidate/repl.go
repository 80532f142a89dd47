package candidate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
)

// promptChevronUnicode is the guillemet separator used in the prompt.
const promptChevronUnicode = "»"

// promptChevronASCII is the fallback chevron for terminals without
// unicode support.
const promptChevronASCII = ">"

// callTimeout bounds a single tool call so a hung service cannot wedge
// the terminal.
const callTimeout = 2 * time.Minute

// errExit signals a clean exit out of the command loop.
var errExit = errors.New("exit")

// REPL is the candidate's interactive terminal. It keeps one current
// session, shows the session id in the prompt, and renders the session
// view after every call that moves the test along.
type REPL struct {
	client     *Client
	rl         *readline.Instance
	out        io.Writer
	session    string // current session id
	test       string // assessment backing the current session
	lastState  string // last state shown, for transition display
	useUnicode bool
	quiet      bool // suppresses the spinner

	testIDs    []string // completion candidates for start
	sessionIDs []string // completion candidates for resume
}

// NewREPL creates a terminal over a connected client.
func NewREPL(client *Client) *REPL {
	return &REPL{
		client:     client,
		out:        os.Stdout,
		useUnicode: detectUnicodeSupport(),
	}
}

// detectUnicodeSupport checks whether the terminal likely renders
// unicode. Dumb terminals and an empty TERM fall back to ASCII.
func detectUnicodeSupport() bool {
	term := os.Getenv("TERM")
	if term == "" || term == "dumb" {
		return false
	}
	for _, v := range []string{os.Getenv("LANG"), os.Getenv("LC_ALL")} {
		lower := strings.ToLower(v)
		if strings.Contains(lower, "utf-8") || strings.Contains(lower, "utf8") {
			return true
		}
	}
	return true
}

// buildPrompt renders the prompt. With a current session it carries the
// short session id so a suspended terminal stays recognizable.
func (r *REPL) buildPrompt() string {
	chevron := promptChevronASCII
	if r.useUnicode {
		chevron = promptChevronUnicode
	}

	parts := []string{"proctor"}
	if r.session != "" {
		parts = append(parts, shortID(r.session))
	}
	parts = append(parts, chevron)
	return strings.Join(parts, " ") + " "
}

// shortID trims a session id to its leading group for display.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

// updatePrompt refreshes the readline prompt after the current session
// changed.
func (r *REPL) updatePrompt() {
	if r.rl != nil {
		r.rl.SetPrompt(r.buildPrompt())
	}
}

// filterInput keeps readline from suspending the process.
func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// createCompleter builds tab completion for the command set. Test and
// session ids complete from the lists the service reported last.
func (r *REPL) createCompleter() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("tests"),
		readline.PcItem("start", readline.PcItemDynamic(func(string) []string { return r.testIDs })),
		readline.PcItem("state"),
		readline.PcItem("begin"),
		readline.PcItem("answer"),
		readline.PcItem("next"),
		readline.PcItem("back"),
		readline.PcItem("jump"),
		readline.PcItem("part"),
		readline.PcItem("section"),
		readline.PcItem("suspend"),
		readline.PcItem("resume", readline.PcItemDynamic(func(string) []string { return r.sessionIDs })),
		readline.PcItem("end"),
		readline.PcItem("sessions"),
		readline.PcItem("help"),
		readline.PcItem("exit"),
	)
}

// Run enters the command loop and blocks until the candidate exits or
// the context is canceled.
func (r *REPL) Run(ctx context.Context) error {
	historyFile := filepath.Join(os.TempDir(), ".proctor_history")

	config := &readline.Config{
		Prompt:          r.buildPrompt(),
		HistoryFile:     historyFile,
		AutoComplete:    r.createCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	}

	rl, err := readline.NewEx(config)
	if err != nil {
		return fmt.Errorf("failed to create readline instance: %w", err)
	}
	defer rl.Close()
	r.rl = rl

	r.primeCompletion(ctx)

	fmt.Fprintf(r.out, "Connected to %s. Type 'help' for the command list.\n\n", r.client.Endpoint())

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := r.rl.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				continue
			}
		} else if err == io.EOF {
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		} else if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if err := r.execute(ctx, input); err != nil {
			if errors.Is(err, errExit) {
				fmt.Fprintln(r.out, "Goodbye!")
				return nil
			}
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		fmt.Fprintln(r.out)
	}
}

// primeCompletion fetches the assessment list once so tab completion
// works before the first 'tests' command. A failure only costs the
// completion candidates.
func (r *REPL) primeCompletion(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	raw, err := r.client.Call(callCtx, "test_list", nil)
	if err != nil {
		return
	}
	r.cacheTestIDs(raw)
}

// execute parses and runs one command line.
func (r *REPL) execute(ctx context.Context, input string) error {
	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]
	if command == "?" {
		command = "help"
	}

	switch command {
	case "tests":
		return r.cmdTests(ctx)
	case "start":
		if len(args) != 1 {
			return fmt.Errorf("usage: start <test>")
		}
		return r.cmdStart(ctx, args[0])
	case "state":
		return r.cmdState(ctx)
	case "begin":
		return r.cmdSessionTool(ctx, "attempt_begin")
	case "answer":
		return r.cmdAnswer(ctx, args)
	case "next":
		return r.cmdSessionTool(ctx, "move_next")
	case "back":
		return r.cmdSessionTool(ctx, "move_back")
	case "jump":
		if len(args) != 1 {
			return fmt.Errorf("usage: jump <item>")
		}
		return r.cmdJump(ctx, args[0])
	case "part":
		return r.cmdSessionTool(ctx, "testpart_next")
	case "section":
		return r.cmdSessionTool(ctx, "section_next")
	case "suspend":
		return r.cmdSuspend(ctx)
	case "resume":
		return r.cmdResume(ctx, args)
	case "end":
		return r.cmdSessionTool(ctx, "session_end")
	case "sessions":
		return r.cmdSessions(ctx)
	case "help":
		return r.cmdHelp()
	case "exit", "quit":
		return errExit
	default:
		return fmt.Errorf("unknown command: %s. Type 'help' for available commands", parts[0])
	}
}

// call executes one tool with a spinner while the request is in flight.
func (r *REPL) call(ctx context.Context, tool string, args map[string]interface{}) (interface{}, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	if r.quiet {
		return r.client.Call(callCtx, tool, args)
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " Waiting for the delivery service..."
	s.Start()
	defer s.Stop()

	return r.client.Call(callCtx, tool, args)
}

// requireSession guards commands that need a current session.
func (r *REPL) requireSession() error {
	if r.session == "" {
		return fmt.Errorf("no current session, run 'start <test>' or 'resume <session>' first")
	}
	return nil
}

func (r *REPL) cmdTests(ctx context.Context) error {
	raw, err := r.call(ctx, "test_list", nil)
	if err != nil {
		return err
	}
	r.cacheTestIDs(raw)

	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		fmt.Fprintln(r.out, "The library is empty.")
		return nil
	}
	for _, entry := range list {
		view, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		line := stringField(view, "id")
		if title := stringField(view, "title"); title != "" {
			line += "  " + title
		}
		fmt.Fprintf(r.out, "%s  (%d items)\n", line, intField(view, "items"))
	}
	return nil
}

func (r *REPL) cmdStart(ctx context.Context, test string) error {
	raw, err := r.call(ctx, "session_create", map[string]interface{}{"test": test})
	if err != nil {
		return err
	}
	r.adoptSession(raw)
	return r.printView(raw)
}

func (r *REPL) cmdState(ctx context.Context) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	raw, err := r.call(ctx, "session_state", map[string]interface{}{"session": r.session})
	if err != nil {
		return err
	}
	return r.printView(raw)
}

// cmdSessionTool runs a tool whose only argument is the current
// session and shows the view it returns.
func (r *REPL) cmdSessionTool(ctx context.Context, tool string) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	raw, err := r.call(ctx, tool, map[string]interface{}{"session": r.session})
	if err != nil {
		return err
	}
	return r.printView(raw)
}

func (r *REPL) cmdAnswer(ctx context.Context, args []string) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	if len(args) == 0 {
		return fmt.Errorf("usage: answer NAME=value...")
	}
	responses, err := parseResponses(args)
	if err != nil {
		return err
	}
	raw, err := r.call(ctx, "attempt_end", map[string]interface{}{
		"session":   r.session,
		"responses": responses,
	})
	if err != nil {
		return err
	}
	return r.printView(raw)
}

func (r *REPL) cmdJump(ctx context.Context, arg string) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	item, err := strconv.Atoi(arg)
	if err != nil || item < 1 {
		return fmt.Errorf("jump wants an item number starting at 1, got %q", arg)
	}
	// The view numbers items from one, the route from zero.
	raw, err := r.call(ctx, "jump", map[string]interface{}{
		"session":  r.session,
		"position": item - 1,
	})
	if err != nil {
		return err
	}
	return r.printView(raw)
}

func (r *REPL) cmdSuspend(ctx context.Context) error {
	if err := r.requireSession(); err != nil {
		return err
	}
	raw, err := r.call(ctx, "session_suspend", map[string]interface{}{"session": r.session})
	if err != nil {
		return err
	}
	if err := r.printView(raw); err != nil {
		return err
	}
	fmt.Fprintf(r.out, "Pick the session up again with 'resume %s'.\n", r.session)
	return nil
}

func (r *REPL) cmdResume(ctx context.Context, args []string) error {
	session := r.session
	switch {
	case len(args) == 1:
		session = args[0]
	case len(args) > 1:
		return fmt.Errorf("usage: resume [session]")
	}
	if session == "" {
		return fmt.Errorf("usage: resume <session>")
	}

	raw, err := r.call(ctx, "session_resume", map[string]interface{}{"session": session})
	if err != nil {
		return err
	}
	r.adoptSession(raw)
	return r.printView(raw)
}

func (r *REPL) cmdSessions(ctx context.Context) error {
	raw, err := r.call(ctx, "session_list", nil)
	if err != nil {
		return err
	}
	r.cacheSessionIDs(raw)

	list, ok := raw.([]interface{})
	if !ok || len(list) == 0 {
		fmt.Fprintln(r.out, "No sessions.")
		return nil
	}
	for _, entry := range list {
		summary, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		line := fmt.Sprintf("%s  %-9s", stringField(summary, "id"), stringField(summary, "status"))
		if test := stringField(summary, "test"); test != "" {
			line += "  " + test
		}
		if state := stringField(summary, "state"); state != "" {
			line += "  (" + state + ")"
		}
		fmt.Fprintln(r.out, line)
	}
	return nil
}

func (r *REPL) cmdHelp() error {
	help := []struct{ usage, text string }{
		{"tests", "list the assessments the service offers"},
		{"start <test>", "create a session and make it current"},
		{"state", "show the current session"},
		{"begin", "begin an attempt on the current item"},
		{"answer NAME=value...", "submit responses and end the attempt"},
		{"next", "advance to the next item"},
		{"back", "step back to the previous item"},
		{"jump <item>", "go to an item by its number in the view"},
		{"part", "finish the current test part"},
		{"section", "finish the current section"},
		{"suspend", "suspend the current session"},
		{"resume [session]", "resume a suspended session"},
		{"end", "end the current session"},
		{"sessions", "list the sessions the service knows"},
		{"help", "show this help"},
		{"exit", "leave the terminal"},
	}
	for _, entry := range help {
		fmt.Fprintf(r.out, "  %-22s%s\n", entry.usage, entry.text)
	}
	return nil
}

// adoptSession makes the session behind a view the current one.
func (r *REPL) adoptSession(raw interface{}) {
	view, ok := raw.(map[string]interface{})
	if !ok {
		return
	}
	r.session = stringField(view, "id")
	r.test = stringField(view, "test")
	r.lastState = ""
	r.updatePrompt()
}

// printView renders a session view and records its state for
// transition display on the next call.
func (r *REPL) printView(raw interface{}) error {
	view, ok := raw.(map[string]interface{})
	if !ok {
		fmt.Fprintf(r.out, "%v\n", raw)
		return nil
	}
	fmt.Fprint(r.out, renderView(view, r.lastState))
	r.lastState = stringField(view, "state")
	return nil
}

// renderView formats one session view. When previous names a different
// state the header line shows the transition.
func renderView(view map[string]interface{}, previous string) string {
	var b strings.Builder

	state := stringField(view, "state")
	header := state
	if previous != "" && previous != state {
		header = previous + " -> " + state
	}
	fmt.Fprintf(&b, "session %s  %s  %s\n", shortID(stringField(view, "id")), stringField(view, "test"), header)

	if item := stringField(view, "item"); item != "" {
		fmt.Fprintf(&b, "  item %d of %d: %s", intField(view, "position")+1, intField(view, "count"), item)
		if itemState := stringField(view, "itemState"); itemState != "" {
			fmt.Fprintf(&b, " (%s", itemState)
			if attempts := intField(view, "attempts"); attempts > 0 {
				fmt.Fprintf(&b, ", attempts %d", attempts)
			}
			b.WriteString(")")
		}
		b.WriteString("\n")
	}

	if pending := intField(view, "pending"); pending > 0 {
		fmt.Fprintf(&b, "  pending responses: %d\n", pending)
	}

	if outcomes, ok := view["outcomes"].(map[string]interface{}); ok && len(outcomes) > 0 {
		names := make([]string, 0, len(outcomes))
		for name := range outcomes {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]string, len(names))
		for i, name := range names {
			pairs[i] = name + "=" + formatJSON(outcomes[name])
		}
		fmt.Fprintf(&b, "  outcomes: %s\n", strings.Join(pairs, "  "))
	}

	if durations, ok := view["durations"].(map[string]interface{}); ok {
		if d, ok := durations[stringField(view, "test")].(string); ok {
			fmt.Fprintf(&b, "  time: %s\n", d)
		}
	}

	if feedbacks, ok := view["feedbacks"].([]interface{}); ok && len(feedbacks) > 0 {
		shown := make([]string, 0, len(feedbacks))
		for _, fb := range feedbacks {
			if s, ok := fb.(string); ok {
				shown = append(shown, s)
			}
		}
		fmt.Fprintf(&b, "  feedback: %s\n", strings.Join(shown, " "))
	}

	return b.String()
}

// parseResponses turns NAME=value arguments into a response object.
// Values stay strings so the service can coerce them against the
// item's declarations. A comma-separated value becomes an array for
// multiple and ordered responses, an empty value clears the variable.
func parseResponses(args []string) (map[string]interface{}, error) {
	responses := make(map[string]interface{}, len(args))
	for _, arg := range args {
		name, value, found := strings.Cut(arg, "=")
		if !found || name == "" {
			return nil, fmt.Errorf("expected NAME=value, got %q", arg)
		}
		if _, dup := responses[name]; dup {
			return nil, fmt.Errorf("response %s given twice", name)
		}
		switch {
		case value == "":
			responses[name] = nil
		case strings.Contains(value, ","):
			parts := strings.Split(value, ",")
			items := make([]interface{}, len(parts))
			for i, part := range parts {
				items[i] = part
			}
			responses[name] = items
		default:
			responses[name] = value
		}
	}
	return responses, nil
}

// cacheTestIDs remembers assessment ids for tab completion.
func (r *REPL) cacheTestIDs(raw interface{}) {
	if ids := idsFromList(raw); ids != nil {
		r.testIDs = ids
	}
}

// cacheSessionIDs remembers session ids for tab completion.
func (r *REPL) cacheSessionIDs(raw interface{}) {
	if ids := idsFromList(raw); ids != nil {
		r.sessionIDs = ids
	}
}

// idsFromList pulls the id fields out of a decoded JSON array.
func idsFromList(raw interface{}) []string {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]interface{}); ok {
			if id := stringField(m, "id"); id != "" {
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// stringField reads a string field out of a decoded JSON object.
func stringField(m map[string]interface{}, key string) string {
	s, _ := m[key].(string)
	return s
}

// intField reads a numeric field out of a decoded JSON object.
func intField(m map[string]interface{}, key string) int {
	f, _ := m[key].(float64)
	return int(f)
}

// formatJSON renders a decoded JSON value compactly for the view.
func formatJSON(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			parts[i] = formatJSON(item)
		}
		return "[" + strings.Join(parts, " ") + "]"
	default:
		return fmt.Sprintf("%v", val)
	}
}
