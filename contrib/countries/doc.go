// Package countries is a small country catalogue served through a migration
// facade while its data moves from PostgreSQL to SurrealDB.
//
// The catalogue is the facade's reference workload: reads that must agree
// across stores, listings compared without regard to order, and creates whose
// generated identifier the destination has to reuse.
package countries
