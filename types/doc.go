// Package types defines shared data structures and the unified error
// model used across ragflow packages.
package types
