// Package config owns the two pieces of configuration every other package
// reads: the resolved process Settings (paths and credentials taken from the
// environment exactly once) and the format-agnostic pipeline Model produced
// by a Loader.
//
// Settings are immutable after resolution and are passed explicitly to the
// registry, the loader, the staleness evaluator and every task action, so a
// change to the environment in the middle of a run cannot make two tasks see
// different roots. Concrete pipeline loaders, such as the HCL one, live in
// separate packages.
package config
