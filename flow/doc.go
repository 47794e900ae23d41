// Package flow builds the per-phase agent graphs.
//
// Every phase is a two-level star: a director node is the entry point and
// routes to the phase's specialists, each specialist returns to the
// director, and only the director can end the phase. Routing consults the
// task text, the editing type and finally the phase's quality gate.
package flow
