package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"proctor/internal/delivery"
)

func TestRenderRunReport(t *testing.T) {
	var buf bytes.Buffer
	RenderRunReport(&buf, &RunReport{
		Test:     "RUN01",
		Title:    "Runner check",
		State:    "closed",
		Duration: "PT45S",
		Items: []ItemReport{
			{Item: "Q01.0", State: "closed", Attempts: 1, Completion: "completed", Duration: "PT30S",
				Outcomes: []Outcome{{Name: "SCORE", Value: "1"}}},
			{Item: "Q02.0", State: "notSelected", Completion: "notAttempted"},
		},
		Outcomes:    []Outcome{{Name: "TOTAL", Value: "1"}},
		UnusedSteps: 2,
	})

	out := buf.String()
	assert.Contains(t, out, "Runner check (RUN01)")
	assert.Contains(t, out, "state: closed   time: PT45S")
	assert.Contains(t, out, "Q01.0")
	assert.Contains(t, out, "SCORE=1")
	assert.Contains(t, out, "notAttempted")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "The session closed with 2 script steps unused.")
}

func TestRenderRunReportWithoutTitle(t *testing.T) {
	var buf bytes.Buffer
	RenderRunReport(&buf, &RunReport{Test: "RUN01", State: "closed", Duration: "PT0S"})

	out := buf.String()
	assert.Contains(t, out, "RUN01\n")
	assert.NotContains(t, out, "(RUN01)")
	assert.NotContains(t, out, "unused")
	assert.NotContains(t, out, "OUTCOME", "no outcome table without outcomes")
}

func TestRenderSessionList(t *testing.T) {
	var buf bytes.Buffer
	RenderSessionList(&buf, []*delivery.SessionSummary{
		{ID: "3fc2a1b0-aaaa", Test: "ALG01", Status: "live", State: "interacting"},
		{ID: "77e9d4c2-bbbb", Test: "HIST01", Status: "stored", State: "suspended"},
	})

	out := buf.String()
	assert.Contains(t, out, "3fc2a1b0-aaaa")
	assert.Contains(t, out, "ALG01")
	assert.Contains(t, out, "stored")
	assert.Contains(t, out, "suspended")
}

func TestRenderSessionListEmpty(t *testing.T) {
	var buf bytes.Buffer
	RenderSessionList(&buf, nil)
	assert.Equal(t, "No sessions.\n", buf.String())
}

func TestRenderSessionDetail(t *testing.T) {
	var buf bytes.Buffer
	RenderSessionDetail(&buf, &delivery.SessionView{
		ID:        "3fc2a1b0-aaaa",
		Test:      "ALG01",
		State:     "interacting",
		Position:  1,
		Count:     3,
		Item:      "Q02.0",
		Outcomes:  map[string]interface{}{"TOTAL": float64(2), "PASS": true},
		Durations: map[string]string{"ALG01": "PT30S", "S1": "PT30S"},
	}, []delivery.ItemView{
		{Item: "Q01.0", State: "closed", Attempts: 1, Completion: "completed", Duration: "PT30S",
			Outcomes: map[string]interface{}{"SCORE": float64(1)}},
		{Item: "Q02.0", State: "interacting", Attempts: 1, Completion: "unknown"},
	})

	out := buf.String()
	assert.Contains(t, out, "session:   3fc2a1b0-aaaa")
	assert.Contains(t, out, "test:      ALG01")
	assert.Contains(t, out, "state:     interacting")
	assert.Contains(t, out, "item:      2 of 3 (Q02.0)")
	assert.Contains(t, out, "time:      PT30S")
	assert.Contains(t, out, "outcomes:  PASS=true TOTAL=2")
	assert.Contains(t, out, "SCORE=1")
	assert.Contains(t, out, "completed")
}

func TestRenderSessionDetailSparse(t *testing.T) {
	var buf bytes.Buffer
	RenderSessionDetail(&buf, &delivery.SessionView{
		ID:    "77e9d4c2-bbbb",
		Test:  "HIST01",
		State: "closed",
		Count: 3,
	}, nil)

	out := buf.String()
	assert.NotContains(t, out, "item:")
	assert.NotContains(t, out, "time:")
	assert.NotContains(t, out, "outcomes:")
}
