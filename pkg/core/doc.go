// Package core defines the shared language of the leapask engine.
//
// This package contains:
//   - Filter predicates and comparators extracted from generated code
//   - Dependency records produced by import resolution
//   - The failure kinds raised by the pipeline and their retry policy
//   - Connection configuration shared by SQL adapters
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
