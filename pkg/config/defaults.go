package config

import (
	"github.com/openfroyo/actuator/pkg/engine"
)

// ApplyDefaults fills in the type-specific defaults of an actor. A switch
// gets the "state" slot and on/off values unless it configures its own.
func ApplyDefaults(ac *ActorConfig) {
	if ac.Type == "" {
		ac.Type = ActorTypeGeneric
	}
	if ac.Type != ActorTypeSwitch {
		return
	}

	if len(ac.Slots) == 0 {
		for _, s := range engine.SwitchSlots() {
			ac.Slots = append(ac.Slots, SlotConfig{Attribute: s.Attribute})
		}
	}
	if len(ac.Values) == 0 {
		for _, spec := range engine.SwitchRuleSpecs() {
			calls := make([]CallConfig, len(spec.Calls))
			for i, c := range spec.Calls {
				calls[i] = CallConfig{Service: c.Service}
			}
			ac.Values = append(ac.Values, ValueConfig{
				Slots: append([]interface{}(nil), spec.Slots...),
				Calls: calls,
			})
		}
	}
}
