// Package preflight provides readiness checks for the filesystem paths and
// remote services narrator depends on.
//
// These checks run in two contexts:
//   - The daemon runs RunLocal at startup and on every status request, so a
//     full or read-only segment volume shows up before sessions start failing.
//   - The CLI "narrator check" command runs RunAll, which adds the speech
//     endpoint and NATS connectivity probes.
//
// Optional features are skipped when their config is empty.
package preflight
