package delivery

import (
	"fmt"
	"math"

	"proctor/internal/model"
	"proctor/internal/session"
	"proctor/pkg/qti"
)

// SessionView is the state projection the service hands to clients.
type SessionView struct {
	ID        string                 `json:"id"`
	Test      string                 `json:"test"`
	State     string                 `json:"state"`
	Position  int                    `json:"position"`
	Count     int                    `json:"count"`
	Item      string                 `json:"item,omitempty"`
	ItemState string                 `json:"itemState,omitempty"`
	Attempts  int                    `json:"attempts,omitempty"`
	Pending   int                    `json:"pending,omitempty"`
	Outcomes  map[string]interface{} `json:"outcomes,omitempty"`
	Durations map[string]string      `json:"durations,omitempty"`
	Feedbacks []string               `json:"feedbacks,omitempty"`
}

// SessionSummary is one row of a session listing.
type SessionSummary struct {
	ID     string `json:"id"`
	Test   string `json:"test,omitempty"`
	Status string `json:"status"`
	State  string `json:"state,omitempty"`
}

// AssessmentView describes one library entry to clients.
type AssessmentView struct {
	ID        string   `json:"id"`
	Title     string   `json:"title,omitempty"`
	File      string   `json:"file"`
	Parts     int      `json:"parts"`
	Items     int      `json:"items"`
	ItemRefs  []string `json:"itemRefs,omitempty"`
	TestParts []string `json:"testParts,omitempty"`
}

// viewOf projects a session. The caller holds the session's lock.
func viewOf(sess *session.TestSession, testID string) *SessionView {
	view := &SessionView{
		ID:       sess.ID(),
		Test:     testID,
		State:    sess.State().String(),
		Position: sess.Route().Position(),
		Count:    sess.Route().Count(),
		Pending:  sess.Pending().Len(),
	}

	if it, err := sess.CurrentItem(); err == nil {
		view.Item = it.String()
	}
	if item := sess.CurrentItemSession(); item != nil {
		view.ItemState = item.State().String()
		view.Attempts = item.NumAttempts()
	}

	outcomes := sess.Outcomes()
	if names := outcomes.Names(); len(names) > 0 {
		view.Outcomes = make(map[string]interface{}, len(names))
		for _, name := range names {
			v, _ := outcomes.Get(name)
			view.Outcomes[name] = jsonValue(v)
		}
	}

	durations := sess.Durations()
	if ids := durations.Identifiers(); len(ids) > 0 {
		view.Durations = make(map[string]string, len(ids))
		for _, id := range ids {
			view.Durations[id] = durations.Get(id).ISO()
		}
	}

	for _, fb := range sess.ActiveFeedbacks() {
		view.Feedbacks = append(view.Feedbacks, fb.Identifier)
	}
	return view
}

// ItemView is the per-item row of a detailed session view.
type ItemView struct {
	Item       string                 `json:"item"`
	State      string                 `json:"state"`
	Attempts   int                    `json:"attempts,omitempty"`
	Completion string                 `json:"completion"`
	Duration   string                 `json:"duration,omitempty"`
	Outcomes   map[string]interface{} `json:"outcomes,omitempty"`
}

// itemViewsOf projects every route item. Items the candidate never
// reached have no session and show up as not selected.
func itemViewsOf(sess *session.TestSession) []ItemView {
	routeItems := sess.Route().Items()
	views := make([]ItemView, 0, len(routeItems))
	for _, it := range routeItems {
		view := ItemView{
			Item:       it.String(),
			State:      session.ItemNotSelected.String(),
			Completion: session.CompletionNotAttempted,
		}
		if item, ok := sess.Sessions().Get(it.ItemRef, it.Occurrence); ok {
			view.State = item.State().String()
			view.Attempts = item.NumAttempts()
			view.Completion = item.CompletionStatus()
			view.Duration = item.Duration().ISO()
			view.Outcomes = outcomeValues(item.Vars())
		}
		views = append(views, view)
	}
	return views
}

// outcomeValues renders the outcome variables of a set as JSON values.
func outcomeValues(vars *session.Variables) map[string]interface{} {
	var outcomes map[string]interface{}
	for _, name := range vars.Names() {
		if vars.Variable(name).Kind != session.VarOutcome {
			continue
		}
		if outcomes == nil {
			outcomes = make(map[string]interface{})
		}
		v, _ := vars.Get(name)
		outcomes[name] = jsonValue(v)
	}
	return outcomes
}

// viewOfAssessment projects a library entry.
func viewOfAssessment(asmt *Assessment, detailed bool) *AssessmentView {
	view := &AssessmentView{
		ID:    asmt.ID,
		Title: asmt.Test.Title,
		File:  asmt.File,
		Parts: len(asmt.Test.TestParts),
		Items: asmt.Route.Count(),
	}
	if !detailed {
		return view
	}
	for _, part := range asmt.Test.TestParts {
		view.TestParts = append(view.TestParts, part.Identifier)
	}
	for _, it := range asmt.Route.Items() {
		view.ItemRefs = append(view.ItemRefs, it.String())
	}
	return view
}

// jsonValue renders a runtime value with native JSON types where they
// exist, falling back to the textual form.
func jsonValue(v qti.Value) interface{} {
	if qti.IsNull(v) {
		return nil
	}
	switch val := v.(type) {
	case qti.Boolean:
		return bool(val)
	case qti.Integer:
		return int(val)
	case qti.Float:
		return float64(val)
	case *qti.Container:
		items := make([]interface{}, 0, val.Len())
		for _, item := range val.Items() {
			items = append(items, jsonValue(item))
		}
		return items
	case *qti.Record:
		fields := make(map[string]interface{}, val.Len())
		for _, key := range val.Keys() {
			field, _ := val.Get(key)
			fields[key] = jsonValue(field)
		}
		return fields
	default:
		return v.String()
	}
}

// ResponsesFromJSON coerces a decoded JSON object into typed response
// values against the item's response declarations.
func ResponsesFromJSON(ref *model.AssessmentItemRef, raw map[string]interface{}) (map[string]qti.Value, error) {
	responses := make(map[string]qti.Value, len(raw))
	for name, rv := range raw {
		decl := ref.ResponseDeclaration(name)
		if decl == nil {
			return nil, fmt.Errorf("item %s declares no response %q", ref.Identifier, name)
		}
		value, err := valueFromJSON(decl, rv)
		if err != nil {
			return nil, fmt.Errorf("response %s: %w", name, err)
		}
		responses[name] = value
	}
	return responses, nil
}

// valueFromJSON shapes one JSON value by its declaration.
func valueFromJSON(decl *model.VariableDeclaration, raw interface{}) (qti.Value, error) {
	if raw == nil {
		return nil, nil
	}

	switch decl.Cardinality {
	case qti.CardinalitySingle:
		return scalarFromJSON(decl.BaseType, raw)

	case qti.CardinalityMultiple, qti.CardinalityOrdered:
		items, ok := raw.([]interface{})
		if !ok {
			// A bare scalar is accepted as a one-element container.
			items = []interface{}{raw}
		}
		container, err := qti.NewContainer(decl.Cardinality, decl.BaseType)
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			scalar, err := scalarFromJSON(decl.BaseType, item)
			if err != nil {
				return nil, err
			}
			if err := container.Append(scalar); err != nil {
				return nil, err
			}
		}
		return container, nil

	case qti.CardinalityRecord:
		fields, ok := raw.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("record value must be an object, got %T", raw)
		}
		record := qti.NewRecord()
		for name, field := range fields {
			scalar, err := recordFieldFromJSON(field)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", name, err)
			}
			if err := record.Set(name, scalar); err != nil {
				return nil, err
			}
		}
		return record, nil
	}
	return nil, fmt.Errorf("unsupported cardinality %s", decl.Cardinality)
}

// scalarFromJSON converts one JSON scalar. Strings go through the
// document-text parser, numbers and booleans map directly.
func scalarFromJSON(bt qti.BaseType, raw interface{}) (qti.Value, error) {
	switch val := raw.(type) {
	case string:
		return qti.ParseScalar(bt, val)
	case bool:
		if bt != qti.BaseTypeBoolean {
			return nil, fmt.Errorf("got a boolean for base type %s", bt)
		}
		return qti.Boolean(val), nil
	case float64:
		switch bt {
		case qti.BaseTypeInteger:
			if val != math.Trunc(val) {
				return nil, fmt.Errorf("got a fractional number for an integer")
			}
			return qti.Integer(int32(val)), nil
		case qti.BaseTypeFloat:
			return qti.Float(val), nil
		}
		return nil, fmt.Errorf("got a number for base type %s", bt)
	// json.Unmarshal into interface{} yields no other scalar kinds.
	default:
		return nil, fmt.Errorf("unsupported value of type %T", raw)
	}
}

// recordFieldFromJSON infers the base type of a record field from its
// JSON shape. Record declarations carry no field typing of their own.
func recordFieldFromJSON(raw interface{}) (qti.Value, error) {
	switch val := raw.(type) {
	case string:
		return qti.String(val), nil
	case bool:
		return qti.Boolean(val), nil
	case float64:
		if val == math.Trunc(val) {
			return qti.Integer(int32(val)), nil
		}
		return qti.Float(val), nil
	default:
		return nil, fmt.Errorf("unsupported record field of type %T", raw)
	}
}
