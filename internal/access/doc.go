// Package access implements component-level access control for shared
// vehicles.
//
// Permission records are the source of truth: at most one record per
// (component, user), carrying a read or write level, an optional
// grantor and an optional expiry. Every record write mirrors a derived
// capability set (write grants view and change, read grants view only)
// in the same transaction, and the resolver answers runtime checks from
// that mirror with a single fixed rule order: vehicle owners bypass
// everything, everyone else needs the capability for the operation and
// an unlapsed backing record.
//
// Bulk grant and revoke operate on all components of a vehicle matching
// a type/name filter, with per-component outcomes so partial success is
// visible rather than rolled back. A background sweeper deletes lapsed
// records; expiry is enforced by the resolver regardless.
package access
