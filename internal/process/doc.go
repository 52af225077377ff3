// Package process starts external commands in their own process group and
// terminates whole groups, so that a timed-out converter cannot leave
// orphaned children behind.
package process
