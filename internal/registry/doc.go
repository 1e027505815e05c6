// Package registry provides the name-to-implementation tables used to turn
// configuration strings into concrete reduction strategies.
//
// A Registry is populated once at package initialisation with every
// implementation compiled into the binary. Configuration values are resolved
// against it while a configuration is being turned into a reduction plan, so
// an unknown name surfaces as a typed lookup error before any reduction work
// starts, rather than as a failure deep inside a long-running session.
//
// Registering the same name twice is a programmer error and panics.
package registry
