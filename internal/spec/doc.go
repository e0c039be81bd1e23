// Package spec implements composable business rules.
//
// A Specification is a predicate over a candidate that can be evaluated in
// memory, exposed as a declarative expr.Lambda for storage backends to
// translate, and combined with And, Or and Not. Composite specifications
// report which leaf rules failed for the last candidate they evaluated.
//
// Specifications can also act as factories: Create builds a fresh candidate,
// lets the rule populate it and verifies the result still satisfies the rule.
package spec
