// Package config loads and validates actuator configuration.
//
// # Formats
//
// A configuration may be written in YAML, JSON, CUE or Starlark. Every
// format is reduced to the same tree, checked against the built-in CUE
// schema (#Config) and decoded into Config, whose struct tags are then
// enforced with go-playground/validator.
//
//	homeassistant:
//	  url: http://homeassistant.local:8123
//	  token_env: HASS_TOKEN
//	actors:
//	  - entity_id: climate.living_room
//	    slots:
//	      - attribute: hvac_mode
//	      - attribute: temperature
//	    values:
//	      - slots: ["heat", "*"]
//	        calls:
//	          - service: climate/set_temperature
//	            data:
//	              hvac_mode: "{slot0}"
//	              temperature: "{slot1}"
//	      - slots: ["off"]
//	        calls:
//	          - service: climate/turn_off
//	  - entity_id: switch.lamp
//	    type: switch
//
// A Starlark script assigns the same keys as globals; env(name, default)
// reads environment variables.
//
// # Building actors
//
// Build turns a Config into engine actors. A switch actor without slots or
// values receives the "state" slot and homeassistant/turn_on and turn_off
// rules.
//
// # Hot reload
//
// Watcher watches a file or directory with fsnotify and reloads after
// writes settle. A configuration that fails to load is reported and never
// replaces the running one.
package config
