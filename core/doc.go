// Package core contains the shell service registry: the subsystem contracts,
// the contract checker, the per-subsystem slots and the delegating functions
// consumers call. Concrete implementations live in sibling packages and must
// depend on core, never the other way around.
package core
