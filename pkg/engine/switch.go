package engine

// Switch defaults: a single "state" slot driven by the generic
// homeassistant on/off services.
const (
	SwitchStateAttribute = "state"
	SwitchServiceOn      = "homeassistant/turn_on"
	SwitchServiceOff     = "homeassistant/turn_off"
)

// SwitchSlots returns the slot layout of a switch actor.
func SwitchSlots() []Slot {
	return []Slot{{Attribute: SwitchStateAttribute}}
}

// SwitchRuleSpecs returns the default rules of a switch actor.
func SwitchRuleSpecs() []RuleSpec {
	return []RuleSpec{
		{
			Slots: []interface{}{"on"},
			Calls: []CallSpec{{Service: SwitchServiceOn}},
		},
		{
			Slots: []interface{}{"off"},
			Calls: []CallSpec{{Service: SwitchServiceOff}},
		},
	}
}

// NewSwitch creates an on/off actor for entityID.
func NewSwitch(entityID string, invoker Invoker, opts ...Option) (*Actor, error) {
	slots := SwitchSlots()
	table, err := NewRuleTable(len(slots), SwitchRuleSpecs())
	if err != nil {
		return nil, err
	}
	return NewActor(entityID, slots, table, invoker, opts...)
}
