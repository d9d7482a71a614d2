// Package preflight provides readiness checks for the filesystem paths,
// backends, and tools miniq depends on.
//
// These checks run in two contexts:
//   - daemonrun calls Local before starting the daemon and logs every failure.
//   - The CLI "miniq check" command runs RunAll, which also opens the job
//     store and the journal, and prints the results.
//
// Checks never fail fast: every check runs and reports its own Result.
package preflight
