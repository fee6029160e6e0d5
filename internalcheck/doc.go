// Package internalcheck holds source-level policy tests for the privacy
// package.
//
// The tests load the package with go/packages and walk its syntax trees.
// They fail the build when secret-bearing byte slices are compared with ==
// or formatted as hex in log and error messages. The package exports
// nothing and should not be imported.
package internalcheck
