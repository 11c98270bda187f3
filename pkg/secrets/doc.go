// Package secrets implements the credential side of a deployment: resolving
// step credentials through the precedence chain (explicit value, environment
// variable, vault secret, interactive prompt) and publishing generated
// secrets to the vault with write-then-read-back verification.
//
// Secret values never reach logs, events or the journal. Diagnostic output
// is limited to source names and, at debug level, an eight character value
// prefix.
package secrets
