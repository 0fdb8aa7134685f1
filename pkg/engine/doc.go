// Package engine maps logical values of a controlled entity to service calls
// and maps observed entity state back to logical values.
//
// # Values
//
// A value is a Tuple of scalars (int, float, string or null), one position
// per configured Slot. Integers and floats compare numerically.
//
// # Rules
//
// A RuleTable holds rules sorted longest pattern first; patterns of equal
// length keep configuration order. A pattern matches a tuple of the same
// length whose every position equals the pattern element or meets a
// Wildcard ("*").
//
// # Write path
//
// Actor.SetValue validates a raw value, checks it against the table and runs
// the calls of the first matching rule through an Invoker. Each call's
// parameter tree is deep-copied and every string leaf is rendered with the
// placeholders {slotN} and {entity_id}. Unless a call opts out, entity_id is
// added to the parameters when absent.
//
// # Read path
//
// Actor.NotifyStateChanged reads the slot attributes from an observed state
// and returns the longest prefix that some rule matches.
//
// # Errors
//
// All failures are *EngineError values classified by ErrorClass and code,
// usable with errors.Is against ErrInvalidValueType, ErrNoMatchingRule,
// ErrActionInvocation and ErrPolicyDenied.
package engine
