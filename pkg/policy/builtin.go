package policy

import (
	"time"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		serviceFormatPolicy(),
		entityDomainPolicy(),
	}
}

// serviceFormatPolicy rejects calls whose service is not "<domain>/<service>".
func serviceFormatPolicy() Policy {
	return Policy{
		Name:        "service-format",
		Description: "Service names must have the form <domain>/<service>",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package actuator.policies.service_format

import rego.v1

deny contains violation if {
	not regex.match("^[a-z0-9_]+/[a-z0-9_]+$", input.service)
	violation := {
		"message": sprintf("service '%s' must have the form <domain>/<service>", [input.service]),
		"severity": "error",
	}
}
`,
	}
}

// entityDomainPolicy warns when a call targets an entity of another domain.
// The homeassistant domain works across domains and is exempt.
func entityDomainPolicy() Policy {
	return Policy{
		Name:        "entity-domain",
		Description: "Calls should target entities of the service's own domain",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package actuator.policies.entity_domain

import rego.v1

cross_domain_services := {"homeassistant", "scene", "script", "notify"}

deny contains violation if {
	target := input.data.entity_id
	is_string(target)
	not input.domain in cross_domain_services
	entity_domain := split(target, ".")[0]
	entity_domain != input.domain
	violation := {
		"message": sprintf("service %s called for entity %s of domain %s", [input.service, target, entity_domain]),
		"severity": "warning",
	}
}
`,
	}
}
