// Package rules stores named metric rules and applies them after task execution.
package rules

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/aigoflow/mmss-service/internal/models"
)

var (
	ErrEmptyName    = errors.New("rule name cannot be empty")
	ErrRuleNotFound = errors.New("rule not found")
	ErrInvalidWhen  = errors.New("invalid rule condition")
)

type compiledRule struct {
	def  models.MetricRule
	when *vm.Program
}

// Engine is a concurrency-safe registry of metric rules
type Engine struct {
	mu    sync.RWMutex
	rules map[string]compiledRule
}

func NewEngine() *Engine {
	return &Engine{rules: make(map[string]compiledRule)}
}

func compile(rule models.MetricRule) (compiledRule, error) {
	rule.Name = strings.TrimSpace(rule.Name)
	if rule.Name == "" {
		return compiledRule{}, ErrEmptyName
	}
	cr := compiledRule{def: rule}
	if strings.TrimSpace(rule.When) != "" {
		program, err := expr.Compile(rule.When, expr.Env(models.GeometricMetrics{}.Env()), expr.AsBool())
		if err != nil {
			return compiledRule{}, fmt.Errorf("%w: %v", ErrInvalidWhen, err)
		}
		cr.when = program
	}
	return cr, nil
}

// Validate checks a rule definition without registering it
func Validate(rule models.MetricRule) error {
	_, err := compile(rule)
	return err
}

// Register adds or replaces a rule and returns the new rule count
func (e *Engine) Register(rule models.MetricRule) (int, error) {
	cr, err := compile(rule)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules[cr.def.Name] = cr
	return len(e.rules), nil
}

// Remove deletes a rule and returns the new rule count
func (e *Engine) Remove(name string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.rules[name]; !ok {
		return len(e.rules), ErrRuleNotFound
	}
	delete(e.rules, name)
	return len(e.rules), nil
}

// RemoveSource deletes every rule loaded from source
func (e *Engine) RemoveSource(source string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for name, cr := range e.rules {
		if cr.def.Source == source {
			delete(e.rules, name)
			removed++
		}
	}
	return removed
}

// Apply runs a single rule; it reports whether the rule exists and fired
func (e *Engine) Apply(name string, m *models.GeometricMetrics) (bool, error) {
	e.mu.RLock()
	cr, ok := e.rules[name]
	e.mu.RUnlock()
	if !ok {
		return false, ErrRuleNotFound
	}
	return apply(cr, m)
}

// ApplyAll runs every rule in name order. Condition failures are collected
// and returned together after all rules ran.
func (e *Engine) ApplyAll(m *models.GeometricMetrics) error {
	e.mu.RLock()
	names := slices.Sorted(maps.Keys(e.rules))
	ordered := make([]compiledRule, 0, len(names))
	for _, name := range names {
		ordered = append(ordered, e.rules[name])
	}
	e.mu.RUnlock()

	var errs []error
	for _, cr := range ordered {
		if _, err := apply(cr, m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func apply(cr compiledRule, m *models.GeometricMetrics) (bool, error) {
	if cr.when != nil {
		out, err := expr.Run(cr.when, m.Env())
		if err != nil {
			return false, fmt.Errorf("rule %s: %w", cr.def.Name, err)
		}
		if fire, _ := out.(bool); !fire {
			return false, nil
		}
	}

	if cr.def.DeltaV != nil {
		m.VGeometric += *cr.def.DeltaV
	}
	if cr.def.DeltaS != nil {
		m.SGeometric = math.Min(math.Max(m.SGeometric+*cr.def.DeltaS, 0), 1)
	}
	if cr.def.DeltaQ != nil {
		m.QOscillator += *cr.def.DeltaQ
	}
	if m.CustomMetrics == nil {
		m.CustomMetrics = map[string]any{}
	}
	m.CustomMetrics["rule:"+cr.def.Name] = 1.0
	return true, nil
}

// Names lists registered rules sorted by name
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.rules))
}

// List returns rule definitions sorted by name
func (e *Engine) List() []models.MetricRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.MetricRule, 0, len(e.rules))
	for _, name := range slices.Sorted(maps.Keys(e.rules)) {
		out = append(out, e.rules[name].def)
	}
	return out
}

func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.rules)
}

func (e *Engine) IsEmpty() bool {
	return e.Len() == 0
}
