// Package quality scores documents for publish readiness.
//
// Evaluate runs a fixed list of weighted checks (105 points in total) over a
// document's header and body and returns a Report. The function is pure: the
// same document and rules always produce the same score. The score gates
// promotion in the workflow but never blocks a run on its own.
package quality
