// Package policy provides Open Policy Agent (OPA) deployment gates.
//
// A Gate evaluates Rego policies against a validated step sequence before
// anything executes. Blocking violations (severity error or critical) veto
// the run; warnings are reported but do not block.
//
// Creating a gate with the built-in policies:
//
//	gate, err := policy.NewGate(logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Loading custom policies from disk:
//
//	err = gate.LoadPaths(ctx, []string{"/etc/provio/policies"})
//
// Custom policies are plain Rego exporting a `deny` set. The input document
// carries the stack name, the steps (with durations flattened to seconds)
// and an evaluation context:
//
//	package custom.policies.regions
//
//	import rego.v1
//
//	deny contains violation if {
//	    some step in input.steps
//	    step.args.location == "westus"
//	    violation := {
//	        "message": sprintf("Step %s targets a retired region", [step.name]),
//	        "severity": "error",
//	        "step": step.name,
//	    }
//	}
//
// Secret and credential values never appear in the input document, only
// their names and sources.
//
// The Loader supports watching policy files and reloading on change:
//
//	loader := policy.NewLoader(logger)
//	err = loader.Watch(ctx, paths, func(policies []policy.Policy) error {
//	    return gate.Replace(ctx, policies)
//	})
package policy
