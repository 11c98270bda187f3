package policy

// BuiltinPolicies returns the policies every gate starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		resourceNamingPolicy(),
		secretHygienePolicy(),
		destructiveActionsPolicy(),
		pollBudgetPolicy(),
	}
}

// resourceNamingPolicy enforces resource naming conventions.
func resourceNamingPolicy() Policy {
	return Policy{
		Name:        "resource-naming",
		Description: "Enforces resource naming conventions (lowercase, alphanumeric, hyphens only)",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming", "conventions"},
		Rego: `package provio.policies.naming

import rego.v1

deny contains violation if {
	some step in input.steps
	name := step.resource

	not regex.match("^[a-z0-9-]+$", name)
	violation := {
		"message": sprintf("Resource name '%s' must contain only lowercase letters, numbers, and hyphens", [name]),
		"severity": "error",
		"step": step.name,
	}
}

deny contains violation if {
	some step in input.steps
	name := step.resource

	regex.match("^-|-$", name)
	violation := {
		"message": sprintf("Resource name '%s' must not start or end with a hyphen", [name]),
		"severity": "error",
		"step": step.name,
	}
}

deny contains violation if {
	some step in input.steps
	name := step.resource

	count(name) < 3
	violation := {
		"message": sprintf("Resource name '%s' must be at least 3 characters long", [name]),
		"severity": "error",
		"step": step.name,
	}
}

deny contains violation if {
	some step in input.steps
	name := step.resource

	count(name) > 63
	violation := {
		"message": sprintf("Resource name '%s' must not exceed 63 characters", [name]),
		"severity": "error",
		"step": step.name,
	}
}`,
	}
}

// secretHygienePolicy keeps secret material out of manifests.
func secretHygienePolicy() Policy {
	return Policy{
		Name:        "secret-hygiene",
		Description: "Forbids plaintext secret material in step arguments",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"secrets", "safety"},
		Rego: `package provio.policies.secrets

import rego.v1

# Argument keys that carry secret material.
sensitive_keys := ["password", "secret", "token", "api-key", "client-secret"]

deny contains violation if {
	some step in input.steps
	some key, value in step.args

	some sensitive in sensitive_keys
	contains(lower(key), sensitive)

	# Literals are forbidden; references to captured outputs are fine.
	not startswith(value, "ref://")

	violation := {
		"message": sprintf("Step %s passes a plaintext value for sensitive argument '%s'; declare a credential instead", [step.name, key]),
		"severity": "error",
		"step": step.name,
	}
}

deny contains violation if {
	some step in input.steps
	step.secret

	input.context.environment == "production"
	step.secret.mode == "regenerate"
	not step.confirm

	violation := {
		"message": sprintf("Step %s regenerates secret %s in production without operator confirmation", [step.name, step.secret.name]),
		"severity": "error",
		"step": step.name,
	}
}`,
	}
}

// destructiveActionsPolicy prevents destructive provider actions in
// production without confirmation.
func destructiveActionsPolicy() Policy {
	return Policy{
		Name:        "destructive-actions",
		Description: "Prevents destructive provider actions in production without confirmation",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"operations", "safety", "production"},
		Rego: `package provio.policies.operations

import rego.v1

destructive_words := ["delete", "destroy", "purge"]

deny contains violation if {
	some step in input.steps
	some word in destructive_words
	contains(step.action, word)

	input.context.environment == "production"
	not step.confirm

	violation := {
		"message": sprintf("Destructive action '%s' in step %s requires confirm in production", [step.action, step.name]),
		"severity": "critical",
		"step": step.name,
	}
}`,
	}
}

// pollBudgetPolicy warns about convergence polls that could stall a run
// for too long.
func pollBudgetPolicy() Policy {
	return Policy{
		Name:        "poll-budget",
		Description: "Warns when a convergence poll can exceed one hour",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"polling", "budget"},
		Rego: `package provio.policies.polling

import rego.v1

max_poll_seconds := 3600

deny contains violation if {
	some step in input.steps
	step.poll

	budget := step.poll.attempts * step.poll.interval_seconds
	budget > max_poll_seconds

	violation := {
		"message": sprintf("Step %s can poll for %d seconds, above the %d second budget", [step.name, budget, max_poll_seconds]),
		"severity": "warning",
		"step": step.name,
	}
}

deny contains violation if {
	some step in input.steps
	step.poll
	not step.poll.remediation

	violation := {
		"message": sprintf("Step %s polls without a remediation command for timeouts", [step.name]),
		"severity": "warning",
		"step": step.name,
	}
}`,
	}
}
