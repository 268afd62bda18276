// The [migrator] package moves a service's data access from a source store to
// a destination store without downtime.
//
// # Facade
//
// A [Facade] stands in front of two implementations of the same operations,
// one per store. Every operation is registered once with [Register], together
// with an [OperationSpec] saying whether it reads or writes, whether the
// destination runs in parallel with the source or after it, and whether it is
// pinned to one store. [Invoke] then calls the operation:
//
//   - The [decision.Provider] says which stores take part in this call.
//   - The destination runs on the facade's worker pool, bounded by the timeout
//     resolved by [timeout.Policy].
//   - Any destination failure or timeout is masked by the source result and
//     reported to the event sink.
//   - When both results exist and must be verified, the [consistency.Evaluator]
//     compares them. On divergence the source result wins.
//
// The caller always gets either a result or the source's own error. Facade
// errors reach the caller only for contract violations, such as an unknown
// operation, and when there is no source result to fall back to.
//
// # Identifiers
//
// Create operations whose source store generates keys hand them to the
// destination through [github.com/surrealdb/migrator/pkg/idstore]: the source
// handler pushes, the destination handler pops.
//
// # Phases
//
// [decision.PhaseProvider] drives the facade through the migration phases
// source_only, dual_read, dual_write, destination_read and destination_only.
// Hosts with a feature-flag system use [decision.FlagProvider] instead.
//
// # Examples
//
// The [github.com/surrealdb/migrator/contrib/countries] package is a complete
// facade for one entity moving from PostgreSQL to SurrealDB, and
// [github.com/surrealdb/migrator/contrib/migratord] serves it over HTTP.
package migrator
