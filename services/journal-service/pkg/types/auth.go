package types

import "github.com/golang-jwt/jwt/v5"

// JWTClaims are the claims carried by a session token. The subject is the
// user id and the ID (jti) keys the revocation denylist.
type JWTClaims struct {
	jwt.RegisteredClaims
}

// UserID returns the subject of the token.
func (c *JWTClaims) UserID() string {
	return c.Subject
}
