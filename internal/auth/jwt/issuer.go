package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token lifetimes by identity class.
const (
	UserTokenTTL      = 24 * time.Hour
	AnonymousTokenTTL = 6 * time.Hour
	ServiceTokenTTL   = 5 * time.Minute
	MaxDeviceTokenTTL = 720 * time.Hour
)

// rfc3986Reserved are the gen-delims and sub-delims that cannot appear in
// a conference room name.
const rfc3986Reserved = ":/?#[]@!$&'()*+,;="

// MQTTClaims is the payload of an MQTT credential token. Subscribe and
// Publish carry the normalized topic permission lists the broker enforces.
type MQTTClaims struct {
	jwt.RegisteredClaims
	Subscribe []string `json:"subs,omitempty"`
	Publish   []string `json:"publ,omitempty"`
	Room      string   `json:"room,omitempty"`
}

// ConferenceConfig identifies the video conferencing backend that tokens
// carrying a room claim are addressed to.
type ConferenceConfig struct {
	Audience string
	Issuer   string
	KeyID    string
}

// TokenRequest describes one token to sign.
type TokenRequest struct {
	Subject   string
	Duration  time.Duration
	Subscribe []string
	Publish   []string

	// ConferenceScene, when non-empty, adds the aud, iss and room claims
	// plus the kid signing header for the conferencing backend.
	ConferenceScene string
}

// Issuer signs MQTT credential tokens.
type Issuer struct {
	keys       *KeyManager
	conference ConferenceConfig
}

// NewIssuer creates a token issuer backed by the given key manager.
func NewIssuer(keys *KeyManager, conference ConferenceConfig) *Issuer {
	return &Issuer{keys: keys, conference: conference}
}

// Issue signs a token for the request. It returns ErrSigningKeyMissing
// when no key material is loaded.
func (i *Issuer) Issue(req TokenRequest) (string, error) {
	key := i.keys.PrivateKey()
	if key == nil {
		return "", ErrSigningKeyMissing
	}

	now := time.Now()
	claims := MQTTClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(req.Duration)),
		},
		Subscribe: req.Subscribe,
		Publish:   req.Publish,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, &claims)

	if req.ConferenceScene != "" {
		claims.Audience = jwt.ClaimStrings{i.conference.Audience}
		claims.Issuer = i.conference.Issuer
		claims.Room = RoomName(req.ConferenceScene)
		kid := i.conference.KeyID
		if kid == "" {
			kid = i.keys.KeyID()
		}
		token.Header["kid"] = kid
	}

	return token.SignedString(key)
}

// ServiceToken signs a short-lived read-everything token for internal
// service calls against the broker realm.
func (i *Issuer) ServiceToken(subject, realm string) (string, error) {
	return i.Issue(TokenRequest{
		Subject:   subject,
		Duration:  ServiceTokenTTL,
		Subscribe: []string{realm + "/s/#"},
	})
}

// DeviceTokenTTL clamps a requested device token lifetime to the allowed
// maximum. Zero or negative requests get the maximum.
func DeviceTokenTTL(requested time.Duration) time.Duration {
	if requested <= 0 || requested > MaxDeviceTokenTTL {
		return MaxDeviceTokenTTL
	}
	return requested
}

// SessionTokenTTL returns the token lifetime for an interactive session.
func SessionTokenTTL(authenticated bool) time.Duration {
	if authenticated {
		return UserTokenTTL
	}
	return AnonymousTokenTTL
}

// RoomName maps a scene name to a conference room name: lower-cased, with
// RFC 3986 reserved characters replaced by underscores.
func RoomName(scene string) string {
	lowered := strings.ToLower(scene)
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(rfc3986Reserved, r) {
			return '_'
		}
		return r
	}, lowered)
}

// Decode parses and verifies a token previously issued by this service.
// Used by internal callers that need to inspect their own tokens.
func (i *Issuer) Decode(tokenString string) (*MQTTClaims, error) {
	pub := i.keys.PublicKey()
	if pub == nil {
		return nil, ErrSigningKeyMissing
	}

	token, err := jwt.ParseWithClaims(tokenString, &MQTTClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return pub, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*MQTTClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
