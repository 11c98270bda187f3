// Package stack loads deployment stack manifests. Manifests are written in
// CUE and describe the ordered step sequence: the resource each step
// provisions, how to probe for an existing one, which outputs to capture,
// the credentials to resolve, the secret to publish, and the convergence
// poll to run. Parsed manifests are validated against the built-in CUE
// schemas and struct tags, then built into engine steps; poll predicates
// are Starlark expressions compiled at build time.
package stack
