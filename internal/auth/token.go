// internal/auth/token.go
package auth

import (
	"crypto/ed25519"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// privateKey and publicKey sign and verify lobby admin tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// ADMIN_TOKEN_EXPIRE_SEC is how many seconds until token expiration (0 => never).
	ADMIN_TOKEN_EXPIRE_SEC int
)

// parseTokenExpireTime reads the ADMIN_TOKEN_EXPIRE_TIME env var. The
// default of 24h covers a stream plus generous overtime.
func parseTokenExpireTime() error {
	duration := os.Getenv("ADMIN_TOKEN_EXPIRE_TIME")
	switch duration {
	case "":
		ADMIN_TOKEN_EXPIRE_SEC = int((24 * time.Hour).Seconds())
	case "never", "0":
		ADMIN_TOKEN_EXPIRE_SEC = 0
	default:
		d, err := time.ParseDuration(duration)
		if err != nil {
			return fmt.Errorf("failed to parse ADMIN_TOKEN_EXPIRE_TIME: %w", err)
		}
		ADMIN_TOKEN_EXPIRE_SEC = int(d.Seconds())
	}
	return nil
}

// Init generates a fresh ed25519 key pair at runtime. Tokens do not survive
// a restart; lobbies do not either, so that is fine.
func Init() error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	return parseTokenExpireTime()
}

// InitFromPath reads raw ed25519 private/public keys from file, for
// deployments where admin tokens must stay valid across restarts.
func InitFromPath(privatePath, publicPath string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	return parseTokenExpireTime()
}

// CreateLobbyToken creates a signed JWT whose "sub" is the lobby ID. The
// bearer is that lobby's admin.
func CreateLobbyToken(lobbyID uuid.UUID) (string, error) {
	claims := jwt.MapClaims{
		"sub": lobbyID.String(),
	}
	if ADMIN_TOKEN_EXPIRE_SEC > 0 {
		claims["exp"] = time.Now().Add(time.Duration(ADMIN_TOKEN_EXPIRE_SEC) * time.Second).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// VerifyLobbyToken checks a presented token and reports whether it grants
// admin rights on lobbyID.
func VerifyLobbyToken(lobbyID uuid.UUID, tokenString string) bool {
	if tokenString == "" {
		return false
	}
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil || !t.Valid {
		return false
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return false
	}
	sub, ok := claims["sub"].(string)
	return ok && sub == lobbyID.String()
}
