package config

import (
	"fmt"
	"sort"

	"github.com/openfroyo/actuator/pkg/engine"
)

// InvokerFactory returns the invoker used by the actor for entityID.
type InvokerFactory func(entityID string) (engine.Invoker, error)

// Actors is an immutable set of actors keyed by entity id.
type Actors struct {
	order []string
	byID  map[string]*engine.Actor
}

// Get returns the actor for entityID.
func (a *Actors) Get(entityID string) (*engine.Actor, bool) {
	actor, ok := a.byID[entityID]
	return actor, ok
}

// List returns the actors in configuration order.
func (a *Actors) List() []*engine.Actor {
	out := make([]*engine.Actor, len(a.order))
	for i, id := range a.order {
		out[i] = a.byID[id]
	}
	return out
}

// Len returns the number of actors.
func (a *Actors) Len() int {
	return len(a.order)
}

// EntityIDs returns the entity ids in sorted order.
func (a *Actors) EntityIDs() []string {
	ids := append([]string(nil), a.order...)
	sort.Strings(ids)
	return ids
}

// RuleCounts returns the number of rules per entity.
func (a *Actors) RuleCounts() map[string]int {
	counts := make(map[string]int, len(a.byID))
	for id, actor := range a.byID {
		counts[id] = actor.Table().Len()
	}
	return counts
}

// BuildActor validates one actor configuration and constructs it.
func BuildActor(ac ActorConfig, invoker engine.Invoker, opts ...engine.Option) (*engine.Actor, error) {
	ApplyDefaults(&ac)

	slots := ac.EngineSlots()
	table, err := engine.NewRuleTable(len(slots), ac.RuleSpecs())
	if err != nil {
		if engErr, ok := err.(*engine.EngineError); ok {
			return nil, engErr.WithEntity(ac.EntityID)
		}
		return nil, err
	}
	return engine.NewActor(ac.EntityID, slots, table, invoker, opts...)
}

// Build constructs every configured actor. newInvoker is called once per
// actor.
func Build(cfg *Config, newInvoker InvokerFactory, opts ...engine.Option) (*Actors, error) {
	set := &Actors{byID: make(map[string]*engine.Actor, len(cfg.Actors))}

	for _, ac := range cfg.Actors {
		if _, exists := set.byID[ac.EntityID]; exists {
			return nil, engine.NewConfigError(fmt.Sprintf("duplicate actor %s", ac.EntityID), nil)
		}
		invoker, err := newInvoker(ac.EntityID)
		if err != nil {
			return nil, fmt.Errorf("creating invoker for %s: %w", ac.EntityID, err)
		}
		actor, err := BuildActor(ac, invoker, opts...)
		if err != nil {
			return nil, err
		}
		set.order = append(set.order, ac.EntityID)
		set.byID[ac.EntityID] = actor
	}

	return set, nil
}

// StaticInvoker returns a factory handing the same invoker to every actor.
func StaticInvoker(invoker engine.Invoker) InvokerFactory {
	return func(string) (engine.Invoker, error) {
		return invoker, nil
	}
}
