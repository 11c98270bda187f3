// Package provider implements the external provider boundary: a subprocess
// CLI runner that turns provider actions into classified invocations the
// engine can reason about. The provider is opaque to the engine; everything
// it reports flows through a single synchronous invoke with structured
// output, an exit status, and a stderr-driven failure classification.
package provider
