package model

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"proctor/pkg/qti"
)

// ItemSessionControl tunes how item sessions behave. An element on an
// item reference overrides one on its section, which overrides the
// test part's. Unset attributes take the QTI defaults, not the parent
// values: inheritance replaces the whole element.
type ItemSessionControl struct {
	MaxAttempts       int  `yaml:"maxAttempts"`
	ShowFeedback      bool `yaml:"showFeedback"`
	AllowReview       bool `yaml:"allowReview"`
	ShowSolution      bool `yaml:"showSolution"`
	AllowComment      bool `yaml:"allowComment"`
	AllowSkipping     bool `yaml:"allowSkipping"`
	ValidateResponses bool `yaml:"validateResponses"`
}

// DefaultItemSessionControl returns the QTI attribute defaults: one
// attempt, review allowed, skipping allowed. MaxAttempts zero means
// unlimited attempts.
func DefaultItemSessionControl() *ItemSessionControl {
	return &ItemSessionControl{
		MaxAttempts:   1,
		AllowReview:   true,
		AllowSkipping: true,
	}
}

func (c *ItemSessionControl) UnmarshalYAML(node *yaml.Node) error {
	*c = *DefaultItemSessionControl()
	type plain ItemSessionControl
	return node.Decode((*plain)(c))
}

// TimeLimits constrains how long a candidate may spend in a scope.
// A nil MinTime or MaxTime means the bound is not in force.
type TimeLimits struct {
	MinTime             *qti.Duration
	MaxTime             *qti.Duration
	AllowLateSubmission bool
}

func (t *TimeLimits) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		MinTime             string `yaml:"minTime"`
		MaxTime             string `yaml:"maxTime"`
		AllowLateSubmission bool   `yaml:"allowLateSubmission"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}
	if raw.MinTime != "" {
		d, err := qti.ParseISODuration(raw.MinTime)
		if err != nil {
			return fmt.Errorf("minTime: %w", err)
		}
		t.MinTime = &d
	}
	if raw.MaxTime != "" {
		d, err := qti.ParseISODuration(raw.MaxTime)
		if err != nil {
			return fmt.Errorf("maxTime: %w", err)
		}
		t.MaxTime = &d
	}
	t.AllowLateSubmission = raw.AllowLateSubmission
	return nil
}

// HasMinTime reports whether a minimum is in force.
func (t *TimeLimits) HasMinTime() bool { return t != nil && t.MinTime != nil }

// HasMaxTime reports whether a maximum is in force.
func (t *TimeLimits) HasMaxTime() bool { return t != nil && t.MaxTime != nil }

// Selection narrows how many child elements of a section enter the
// route. WithReplacement allows the same child to be picked more than
// once, which is how an item reference yields multiple occurrences.
type Selection struct {
	Select          int  `yaml:"select"`
	WithReplacement bool `yaml:"withReplacement"`
}

// Ordering is kept for document fidelity. Shuffling is a delivery-time
// concern and the route builder ignores it.
type Ordering struct {
	Shuffle bool `yaml:"shuffle"`
}
