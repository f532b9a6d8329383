// Package util provides small helpers shared by the cbrest packages.
//
// The package contains:
//   - functions: seed generation and the FNV-1a string hash used to derive node identifiers
//   - wait: a notify-on-change primitive used to block callers while the node set is empty
package util
