// Package scope implements the variable-resolution container for task
// attempts.
//
// This package contains:
//   - Map, the ordered name-to-value container with environment fallback
//   - Environment implementations and the kind registry
//   - live Channel handles and their directional ports
//   - the transmittable-binding filter used at serialization boundaries
package scope
