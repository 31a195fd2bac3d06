// Package fabricator holds the per-segment working context the craft stages
// write into.
//
// A Fabricator is created for exactly one segment attempt. It wraps the
// template's SourceMaterial, the chain, the immediately prior Crafted segment
// (passed in explicitly, never fetched) and the pending segment. Stages read
// continuity through ChoicesIfContinued/ChoiceIfContinued, register decisions
// with Put, and expand patterns into picks with CraftNoteEventArrangements.
// Finish freezes the pending segment into an immutable Crafted snapshot.
//
// Timing is the single place bars and beats become microseconds.
//
// Two error classes exist. Content gaps go through ReportMissing and never
// fail the segment. System faults are returned as *Error and abort the
// attempt; the production loop decides whether to retry.
package fabricator
