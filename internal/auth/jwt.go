package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken      = errors.New("invalid token")
	ErrExpiredToken      = errors.New("token has expired")
	ErrInsufficientScope = errors.New("token does not grant the requested scope")
)

// Scope limits what a per-camera access token authorizes. A camera
// token never carries a user identity — scope, not role, is the access
// control axis, since every token is already bound to one camera_id.
type Scope string

const (
	// ScopeLive grants Subscribe and LatestFrame only.
	ScopeLive Scope = "live"
	// ScopeControl grants the control channel: replay, seek, speed,
	// and session start/stop.
	ScopeControl Scope = "control"
	// ScopeAll grants every operation ScopeLive and ScopeControl do.
	ScopeAll Scope = "all"
)

// grants reports whether a token minted with scope s satisfies a
// required scope. ScopeAll satisfies any requirement; every other
// scope only satisfies an identical requirement.
func (s Scope) grants(required Scope) bool {
	return s == ScopeAll || s == required
}

// Claims carries the camera and scope an access token was issued for:
// a (camera_id, scope) grant, not a user's identity or roles.
type Claims struct {
	CameraID string `json:"camera_id"`
	Scope    Scope  `json:"scope"`
	jwt.RegisteredClaims
}

// JWTManager mints and validates per-camera access tokens.
type JWTManager struct {
	secretKey []byte
	expiry    time.Duration
}

// NewJWTManager creates a new JWT manager. The signing secret comes from
// JWT_SECRET; a random one is generated for a process that never set it
// (dev mode).
func NewJWTManager() *JWTManager {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		randomBytes := make([]byte, 32)
		rand.Read(randomBytes)
		secret = hex.EncodeToString(randomBytes)
	}

	expiry := 24 * time.Hour
	if exp := os.Getenv("JWT_EXPIRY"); exp != "" {
		if d, err := time.ParseDuration(exp); err == nil {
			expiry = d
		}
	}

	return &JWTManager{
		secretKey: []byte(secret),
		expiry:    expiry,
	}
}

// GenerateToken issues a token scoped to cameraID and scope. ttl <= 0
// uses the manager's default expiry; an empty scope defaults to
// ScopeAll.
func (m *JWTManager) GenerateToken(cameraID string, scope Scope, ttl time.Duration) (string, time.Time, error) {
	if scope == "" {
		scope = ScopeAll
	}
	if ttl <= 0 {
		ttl = m.expiry
	}
	expiresAt := time.Now().Add(ttl)

	claims := &Claims{
		CameraID: cameraID,
		Scope:    scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "vigil",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// ValidateToken validates a JWT token's signature and expiry, then
// checks that its scope grants required. Pass "" for required to skip
// the scope check.
func (m *JWTManager) ValidateToken(tokenString string, required Scope) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if required != "" && !claims.Scope.grants(required) {
		return nil, ErrInsufficientScope
	}

	return claims, nil
}

// GetExpiry returns the manager's default token lifetime.
func (m *JWTManager) GetExpiry() time.Duration {
	return m.expiry
}
