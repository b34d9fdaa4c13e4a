// Package cmd implements the command-line interface for the sealKV
// encrypted key-value vault. It provides a hierarchical command structure
// for inspecting and manipulating a file-backed vault.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for vault operations (get, set, delete, watch, etc.)
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See sealkv -help for a list of all commands.
package cmd
