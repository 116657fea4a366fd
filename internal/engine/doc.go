// Package engine generates loop schedules for a kernel.
//
// A schedule is a flat sequence of loop-enter, loop-leave, instruction-run
// and barrier items. The engine produces them in two stages:
//
//  1. Search walks the space of partial schedules depth-first and yields
//     every complete schedule it reaches, lazily. It prefers running an
//     instruction over leaving a loop over entering one, and commits to the
//     first instruction that can run.
//  2. InsertBarriers walks each complete schedule and adds the workgroup
//     barriers needed to order conflicting accesses to shared temporaries.
//
// Generate ties both stages together with the strict-then-boosted fallback
// and the dead-end diagnostics.
//
// DETERMINISM:
// Instructions are considered in declaration order and candidate loops in
// sorted order. Two runs over the same kernel yield the same schedules in
// the same order.
//
// The engine only reads the kernel through the KernelInfo interface and
// never mutates it.
package engine
