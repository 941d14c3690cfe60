package models

import "time"

// MetricRule adjusts metrics after every executed task
type MetricRule struct {
	Name   string   `json:"name" yaml:"name"`
	DeltaV *float64 `json:"delta_v,omitempty" yaml:"delta_v,omitempty"`
	DeltaS *float64 `json:"delta_s,omitempty" yaml:"delta_s,omitempty"`
	DeltaQ *float64 `json:"delta_q,omitempty" yaml:"delta_q,omitempty"`
	When   string   `json:"when,omitempty" yaml:"when,omitempty"`
	Source string   `json:"source,omitempty" yaml:"-"`
}

// RegisterRuleResponse answers rule registration and removal
type RegisterRuleResponse struct {
	Registered bool `json:"registered"`
	RuleCount  int  `json:"rule_count"`
}

// Event is an audit row from the events table
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Level     string         `json:"level"`
	Code      string         `json:"code"`
	Message   string         `json:"msg"`
	Meta      map[string]any `json:"meta,omitempty"`
}
