// Package auth issues and verifies the per-camera access tokens that
// gate live subscription and control-channel connections, raising an
// AuthRejected error kind on failure. The Authenticator/JWTManager
// split replaces a username/password login surface with a (camera_id,
// token) model — there is no user account here, only a bearer token
// scoped to one camera.
package auth

import (
	"errors"
	"time"
)

var (
	ErrTokenCameraMismatch = errors.New("auth: token is not valid for this camera")
)

// Authenticator issues and verifies access tokens.
type Authenticator struct {
	jwtManager *JWTManager
}

// NewAuthenticator creates an Authenticator backed by a fresh JWTManager.
func NewAuthenticator() *Authenticator {
	return &Authenticator{jwtManager: NewJWTManager()}
}

// IssueAccessToken mints a token for cameraID granting scope, valid for
// ttl (<=0 uses the manager's default expiry).
func (a *Authenticator) IssueAccessToken(cameraID string, scope Scope, ttl time.Duration) (string, error) {
	token, _, err := a.jwtManager.GenerateToken(cameraID, scope, ttl)
	return token, err
}

// VerifyAccessToken checks that token is valid, unexpired, scoped to
// cameraID, and grants at least required.
func (a *Authenticator) VerifyAccessToken(cameraID, token string, required Scope) error {
	claims, err := a.jwtManager.ValidateToken(token, required)
	if err != nil {
		return err
	}
	if claims.CameraID != cameraID {
		return ErrTokenCameraMismatch
	}
	return nil
}

// JWTManager returns the underlying JWT manager.
func (a *Authenticator) JWTManager() *JWTManager {
	return a.jwtManager
}
