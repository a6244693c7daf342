// Package vehicle manages the vehicle registry, ownership facts and the
// component catalog.
//
// Ownership follows a claim model: any authenticated user may take
// ownership of an unowned vehicle, and only the current owner may release
// it. The single-owner invariant is enforced with a conditional UPDATE so
// concurrent claims serialise at the database row.
//
// Components are the identity anchors the permission engine grants access
// against. Their (vin, type, name) key is unique with case-insensitive
// matching, which is also how bulk permission filters resolve.
package vehicle
