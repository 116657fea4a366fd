// Package ir provides the kernel and schedule representation for loopsched.
//
// This package contains type definitions and pure helpers only. All other
// internal packages import ir; ir imports nothing internal. This keeps the
// representation the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Kernels are immutable once compiled; WithSchedule returns a copy
//   - Declaration order of instructions is significant (search determinism)
//   - Item is a sealed interface with exactly four variants
//   - Canonical JSON (sorted keys, NFC strings, no floats) is the only
//     encoding used for content hashes
package ir
