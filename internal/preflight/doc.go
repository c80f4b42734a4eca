// Package preflight provides readiness checks for external services
// and filesystem paths that splicer depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check so a
//     missing key or unwritable directory shows up before the first episode.
//   - The CLI "splicer status" command renders the same results.
//
// Remote checks are gated by configuration: an unset provider is skipped.
package preflight
