package workflow

import (
	"context"
	"time"
)

// Machineable is any entity whose lifecycle is governed by a transition
// table. The state field must only be written through Machine.Fire; direct
// writes bypass the audit trail.
type Machineable interface {
	MachineID() string
	MachineState() State
	SetMachineState(State)
}

// EffectKind classifies a deferred side effect recorded during a transition
type EffectKind string

const (
	EffectNotify  EffectKind = "notify"
	EffectReindex EffectKind = "reindex"
)

// Effect describes a side effect a hook requested during a transition. The
// engine never executes effects itself: the caller drains them after its
// transaction commits, so a slow or failing dispatch can never block or
// roll back the state change that produced it.
type Effect struct {
	Kind     EffectKind
	Template string
	TargetID string
	// TargetKind overrides the fired entity's kind when the effect points
	// at a different entity (a sanction fire reindexing its registration).
	TargetKind string
	ProviderID string
	Recipients []string
	Context    map[string]any
}

// Fire carries the inputs and accumulated results of one trigger execution.
// It is created per call and owned by the engine for the duration of the
// call; hooks read the inputs and append effects.
type Fire struct {
	Target  Machineable
	Trigger Trigger
	ActorID string
	Comment string
	Auto    bool

	// Workflow-specific extra arguments (e.g. an embargo end date or an
	// approval token), keyed by convention per machine.
	Extra map[string]any

	// Populated by the engine before hooks run
	From State
	To   State

	// Stamped by the audit hook so update-last-transitioned and the Action
	// record agree on a single timestamp.
	OccurredAt time.Time

	effects []Effect
}

// AddEffect records a deferred side effect for post-commit dispatch
func (f *Fire) AddEffect(e Effect) {
	f.effects = append(f.effects, e)
}

// Effects returns the side effects recorded during this fire, in order
func (f *Fire) Effects() []Effect {
	return f.effects
}

// ExtraString retrieves a string argument from the fire's extra context
func (f *Fire) ExtraString(key string) string {
	if v, ok := f.Extra[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ExtraBool retrieves a boolean argument from the fire's extra context
func (f *Fire) ExtraBool(key string) bool {
	if v, ok := f.Extra[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return false
}

// ExtraTime retrieves a time argument from the fire's extra context
func (f *Fire) ExtraTime(key string) (time.Time, bool) {
	if v, ok := f.Extra[key]; ok {
		if t, ok := v.(time.Time); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// Guard decides whether a transition row applies. Returning (false, nil)
// means the row does not apply and the engine keeps scanning; returning an
// error aborts the fire (used when an actor is outright forbidden rather
// than the row merely not matching business state).
type Guard[H any] func(h H, ctx context.Context, f *Fire) (bool, error)

// Hook is a before- or after-hook on a transition row, dispatched through
// the machine's hook provider. Hooks are typically method expressions on
// the provider interface, keeping the tables plain data.
type Hook[H any] func(h H, ctx context.Context, f *Fire) error

// Transition is one declarative rule of a workflow family's table
type Transition[H any] struct {
	Trigger Trigger
	Sources []State
	// Dest is the destination state, or StateUnchanged for noop rows
	Dest   State
	Guards []Guard[H]
	Before []Hook[H]
	After  []Hook[H]
}

// Machine executes transitions for one workflow family against a hook
// provider H. The machine holds no entity state: the current state lives on
// the Machineable and the machine may be shared across entities of the
// same type.
type Machine[H any] struct {
	family Family
	table  []Transition[H]
	hooks  H
}

// NewMachine creates a machine over a family's transition table
func NewMachine[H any](family Family, table []Transition[H], hooks H) *Machine[H] {
	return &Machine[H]{
		family: family,
		table:  table,
		hooks:  hooks,
	}
}

// Family returns the workflow family the machine's table belongs to
func (m *Machine[H]) Family() Family {
	return m.family
}

// Fire executes one trigger against the target entity's current state.
//
// Rows are scanned in table-declaration order. For each row whose trigger
// and source set match, guards are evaluated: a guard miss moves on to the
// next matching row (this is how moderated-vs-unmoderated branching and
// explicit noop fallbacks are expressed); a guard error aborts. On the
// first row whose guards all pass, before-hooks run in order (any error
// aborts with no mutation), then the state is set to the row's destination
// unless it is the unchanged sentinel, then after-hooks run in order.
//
// Persistence of the state mutation and the audit record written by the
// after-hooks must be wrapped in one transaction by the caller; Fire itself
// opens none.
func (m *Machine[H]) Fire(ctx context.Context, f *Fire) error {
	current := f.Target.MachineState()
	f.From = current
	f.To = current

	for _, row := range m.table {
		if row.Trigger != f.Trigger || !containsState(row.Sources, current) {
			continue
		}

		applies, err := m.evalGuards(ctx, row, f)
		if err != nil {
			return err
		}
		if !applies {
			continue
		}

		if row.Dest != StateUnchanged {
			f.To = row.Dest
		}

		for _, hook := range row.Before {
			if err := hook(m.hooks, ctx, f); err != nil {
				return err
			}
		}

		if row.Dest != StateUnchanged {
			f.Target.SetMachineState(row.Dest)
		}

		for _, hook := range row.After {
			if err := hook(m.hooks, ctx, f); err != nil {
				return err
			}
		}

		return nil
	}

	return &InvalidTriggerError{
		Trigger: f.Trigger,
		State:   current,
		Valid:   m.ValidTriggers(current),
	}
}

// CanFire reports whether any row structurally matches the trigger from the
// given state. Guards are not evaluated.
func (m *Machine[H]) CanFire(from State, trigger Trigger) bool {
	for _, row := range m.table {
		if row.Trigger == trigger && containsState(row.Sources, from) {
			return true
		}
	}
	return false
}

// ValidTriggers returns the distinct triggers with at least one row whose
// source set contains the given state, in table-declaration order.
func (m *Machine[H]) ValidTriggers(from State) []Trigger {
	seen := make(map[Trigger]bool)
	var triggers []Trigger
	for _, row := range m.table {
		if !containsState(row.Sources, from) || seen[row.Trigger] {
			continue
		}
		seen[row.Trigger] = true
		triggers = append(triggers, row.Trigger)
	}
	return triggers
}

func (m *Machine[H]) evalGuards(ctx context.Context, row Transition[H], f *Fire) (bool, error) {
	for _, guard := range row.Guards {
		ok, err := guard(m.hooks, ctx, f)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func containsState(states []State, s State) bool {
	for _, candidate := range states {
		if candidate == s {
			return true
		}
	}
	return false
}
