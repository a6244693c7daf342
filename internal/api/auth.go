package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/carlink/carlink-core/internal/audit"
	"github.com/carlink/carlink-core/internal/auth"
)

// defaultAccessTokenTTL is used when the config omits a TTL, in minutes.
const defaultAccessTokenTTL = 15

// loginRequest is the request body for POST /api/auth/login.
type loginRequest struct {
	Username   string `json:"username"`
	Password   string `json:"password"`
	DeviceInfo string `json:"device_info,omitempty"`
}

// tokenResponse is the response body for login and refresh.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// refreshRequest is the request body for POST /api/auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin authenticates a user against the directory and issues an
// access token plus a refresh token in a new family.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeBadRequest(w, "username and password are required")
		return
	}

	user, err := s.userRepo.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "invalid credentials")
			return
		}
		s.logger.Error("login lookup failed", "error", err)
		writeInternalError(w, "login failed")
		return
	}

	ok, err := auth.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil || !ok {
		writeUnauthorized(w, "invalid credentials")
		return
	}

	if !user.IsActive {
		writeForbidden(w, "account is deactivated")
		return
	}

	resp, err := s.issueTokens(r, user, "", req.DeviceInfo)
	if err != nil {
		s.logger.Error("issuing tokens failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "login failed")
		return
	}

	s.logger.Info("user logged in", "user_id", user.ID, "username", user.Username)
	s.auditLog(audit.ActionLogin, audit.EntityUser, user.ID, user.ID, nil)

	writeJSON(w, http.StatusOK, resp)
}

// handleRefresh rotates a refresh token and returns a fresh token pair.
// Reuse of an already-consumed token revokes the whole family.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	stored, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}

	// Theft detection: a revoked token coming back means the raw token
	// leaked. Kill every descendant in the family.
	if stored.Revoked {
		if err := s.tokenRepo.RevokeFamily(r.Context(), stored.FamilyID); err != nil {
			s.logger.Error("revoking token family failed", "family_id", stored.FamilyID, "error", err)
		}
		s.logger.Warn("refresh token reuse detected", "user_id", stored.UserID, "family_id", stored.FamilyID)
		writeUnauthorized(w, "refresh token reuse detected")
		return
	}

	if time.Now().After(stored.ExpiresAt) {
		writeUnauthorized(w, "refresh token expired")
		return
	}

	user, err := s.userRepo.GetByID(r.Context(), stored.UserID)
	if err != nil {
		writeUnauthorized(w, "invalid refresh token")
		return
	}
	if !user.IsActive {
		writeForbidden(w, "account is deactivated")
		return
	}

	resp, err := s.rotateTokens(r, user, stored)
	if err != nil {
		s.logger.Error("rotating tokens failed", "user_id", user.ID, "error", err)
		writeInternalError(w, "refresh failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleLogout revokes the presented refresh token's family, ending the
// session on every device that shares it.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	stored, err := s.tokenRepo.GetByTokenHash(r.Context(), auth.HashToken(req.RefreshToken))
	if err == nil {
		if err := s.tokenRepo.RevokeFamily(r.Context(), stored.FamilyID); err != nil {
			s.logger.Error("logout revoke failed", "family_id", stored.FamilyID, "error", err)
			writeInternalError(w, "logout failed")
			return
		}
	}

	// Unknown tokens still get a 204: logout is idempotent.
	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated user's account record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())

	user, err := s.userRepo.GetByID(r.Context(), claims.Subject)
	if err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			writeUnauthorized(w, "account no longer exists")
			return
		}
		s.logger.Error("me lookup failed", "user_id", claims.Subject, "error", err)
		writeInternalError(w, "failed to load account")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// issueTokens creates an access token and a refresh token for the user.
// An empty familyID starts a new session family.
func (s *Server) issueTokens(r *http.Request, user *auth.User, familyID, deviceInfo string) (*tokenResponse, error) {
	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	accessToken, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	refresh := &auth.RefreshToken{
		UserID:     user.ID,
		FamilyID:   familyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(s.refreshTokenTTL()),
	}
	if err := s.tokenRepo.Create(r.Context(), refresh); err != nil {
		return nil, err
	}

	return &tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60,
	}, nil
}

// rotateTokens consumes the old refresh token and issues a replacement
// in the same family, together with a fresh access token.
func (s *Server) rotateTokens(r *http.Request, user *auth.User, old *auth.RefreshToken) (*tokenResponse, error) {
	ttl := s.secCfg.JWT.AccessTokenTTL
	if ttl <= 0 {
		ttl = defaultAccessTokenTTL
	}

	accessToken, err := auth.GenerateAccessToken(user, s.secCfg.JWT.Secret, ttl)
	if err != nil {
		return nil, err
	}

	raw, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	replacement := &auth.RefreshToken{
		UserID:     user.ID,
		FamilyID:   old.FamilyID,
		TokenHash:  auth.HashToken(raw),
		DeviceInfo: old.DeviceInfo,
		ExpiresAt:  time.Now().Add(s.refreshTokenTTL()),
	}
	if err := s.tokenRepo.RotateRefreshToken(r.Context(), old.ID, replacement); err != nil {
		return nil, err
	}

	return &tokenResponse{
		AccessToken:  accessToken,
		RefreshToken: raw,
		TokenType:    "Bearer",
		ExpiresIn:    ttl * 60,
	}, nil
}

// refreshTokenTTL returns the configured refresh token lifetime.
func (s *Server) refreshTokenTTL() time.Duration {
	ttl := s.secCfg.JWT.RefreshTokenTTL
	if ttl <= 0 {
		ttl = 7 * 24 * 60 //nolint:mnd // default 7-day refresh token TTL, in minutes
	}
	return time.Duration(ttl) * time.Minute
}
