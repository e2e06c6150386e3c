package claims

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultIssuer is the iss claim when none is configured
const DefaultIssuer = "liwaywai-prototype"

var (
	ErrInvalidSignature = errors.New("invalid or tampered claims token")
	ErrClaimsExpired    = errors.New("claims token expired")
)

// SignedClaims is the JWS payload: the scoped sections plus registered claims
type SignedClaims struct {
	Claims
	jwt.RegisteredClaims
}

// Binding ties a payload to its share
type Binding struct {
	Subject   string
	Audience  string
	TokenID   uuid.UUID
	ExpiresAt time.Time
}

// Signer produces and checks HS256 compact tokens with a server-held secret
type Signer struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewSigner creates claims signer
func NewSigner(secret, issuer string) *Signer {
	if issuer == "" {
		issuer = DefaultIssuer
	}
	return &Signer{secret: []byte(secret), issuer: issuer, now: time.Now}
}

// Issuer returns the configured iss value
func (s *Signer) Issuer() string { return s.issuer }

// Sign seals c. The token expires with the share it was issued under.
func (s *Signer) Sign(c *Claims, b Binding) (string, error) {
	payload := SignedClaims{
		Claims: *c,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   b.Subject,
			Audience:  jwt.ClaimStrings{b.Audience},
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(b.ExpiresAt),
			ID:        b.TokenID.String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	return token.SignedString(s.secret)
}

// Verify checks signature, issuer and expiry
func (s *Signer) Verify(tokenString string) (*SignedClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SignedClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrClaimsExpired
		}
		return nil, ErrInvalidSignature
	}
	payload, ok := token.Claims.(*SignedClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidSignature
	}
	return payload, nil
}
