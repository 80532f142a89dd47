package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor/internal/delivery"
)

func TestValidateOutputFormat(t *testing.T) {
	assert.NoError(t, ValidateOutputFormat("table"))
	assert.NoError(t, ValidateOutputFormat("json"))
	assert.NoError(t, ValidateOutputFormat("yaml"))

	err := ValidateOutputFormat("xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported output format: "xml"`)
	assert.Contains(t, err.Error(), "table, json, yaml")
}

func TestRenderJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderJSON(&buf, []*delivery.SessionSummary{
		{ID: "abc", Test: "ALG01", Status: "live", State: "interacting"},
	}))

	out := buf.String()
	assert.Contains(t, out, `"id": "abc"`)
	assert.Contains(t, out, `"status": "live"`)
}

func TestRenderYAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderYAML(&buf, []*delivery.SessionSummary{
		{ID: "abc", Test: "ALG01", Status: "live"},
	}))

	out := buf.String()
	assert.Contains(t, out, "id: abc")
	assert.Contains(t, out, "status: live")
}
