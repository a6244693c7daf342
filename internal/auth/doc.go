// Package auth provides authentication and account identity for Carlink Core.
//
// It implements a 2-tier role model (user → admin) with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access/refresh token rotation with family-based theft detection
//   - Static role-permission mapping for administrative operations
//
// Roles are administrative only. Whether a user may read or change a
// vehicle component is never decided here: that flows through vehicle
// ownership and the per-component permission grants in internal/access.
package auth
