// Package policy guards service calls with Open Policy Agent (OPA) policies.
//
// Every rendered call is evaluated as the input document
//
//	{
//	  "entity_id": "climate.living_room",
//	  "service":   "climate/set_temperature",
//	  "domain":    "climate",
//	  "name":      "set_temperature",
//	  "data":      {"temperature": "21.5", "entity_id": "climate.living_room"},
//	  "timestamp": "2024-01-01T12:00:00Z"
//	}
//
// against the deny set of each enabled policy package. Each deny entry is a
// string or an object with message and severity. Violations of severity
// error or critical block the call; others are logged as warnings.
//
// # Usage
//
//	policies, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := policies.LoadPolicies(ctx, []string{"policies/"}); err != nil {
//	    return err
//	}
//	invoker := policy.NewGuard(policies, client, "climate.living_room", policy.ModeEnforcing, logger)
//
// Loader.Watch reloads .rego files after they change; pass Engine.Replace
// as the reload function.
package policy
