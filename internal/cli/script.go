package cli

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"proctor/pkg/qti"
)

// Script drives a session from a YAML file: one step per attempt, in
// route order.
type Script struct {
	Steps []Step `yaml:"steps"`
}

// Step describes what the scripted candidate does on one item.
type Step struct {
	// Item optionally pins the step to a route position, e.g. "Q03.0".
	// The run fails if the route is somewhere else when the step fires.
	Item string `yaml:"item,omitempty"`

	// Skip moves past the item without attempting it.
	Skip bool `yaml:"skip,omitempty"`

	// Wait is an ISO 8601 duration spent on the item before the
	// responses go in, e.g. "PT45S".
	Wait string `yaml:"wait,omitempty"`

	// Responses maps response identifiers to submitted values.
	Responses map[string]interface{} `yaml:"responses,omitempty"`
}

// LoadScript reads and parses a script file.
func LoadScript(path string) (*Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script %s: %w", path, err)
	}
	script, err := ParseScript(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse script %s: %w", path, err)
	}
	return script, nil
}

// ParseScript parses YAML script data and validates every step.
func ParseScript(data []byte) (*Script, error) {
	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("script has no steps")
	}
	for i := range script.Steps {
		step := &script.Steps[i]
		if step.Skip && len(step.Responses) > 0 {
			return nil, fmt.Errorf("step %d: skip and responses are mutually exclusive", i+1)
		}
		if !step.Skip && len(step.Responses) == 0 {
			return nil, fmt.Errorf("step %d: needs responses, or skip: true to pass the item by", i+1)
		}
		if step.Wait != "" {
			if _, err := qti.ParseISODuration(step.Wait); err != nil {
				return nil, fmt.Errorf("step %d: %w", i+1, err)
			}
		}
		step.Responses = normalizeValues(step.Responses)
	}
	return &script, nil
}

// waitOf returns the parsed wait duration of a validated step.
func (s *Step) waitOf() time.Duration {
	if s.Wait == "" {
		return 0
	}
	d, err := qti.ParseISODuration(s.Wait)
	if err != nil {
		return 0
	}
	return time.Duration(d)
}

// normalizeValues rewrites YAML numbers into the shape the response
// converter expects. yaml.v3 decodes integers as int, the converter
// wants float64 across the board.
func normalizeValues(values map[string]interface{}) map[string]interface{} {
	if values == nil {
		return nil
	}
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case uint64:
		return float64(n)
	case []interface{}:
		out := make([]interface{}, len(n))
		for i, e := range n {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]interface{}:
		return normalizeValues(n)
	default:
		return v
	}
}
