// Package media issues join credentials for the external media-routing
// service (an SFU). The realtime core never touches media bytes; it only
// hands clients the token and routing URL they need to establish transport.
package media

import (
	"errors"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Credential is what a client needs to connect to the media server for
// one voice room.
type Credential struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// Issuer mints media credentials. Implemented locally with signed tokens;
// an external SFU SDK can be swapped in behind this interface.
type Issuer interface {
	IssueCredential(identity, name, roomID string) (Credential, error)
}

// ErrDisabled is returned by the Disabled issuer.
var ErrDisabled = errors.New("media: no media server configured")

// Disabled is an Issuer for deployments without a media server; every
// issuance fails so callers degrade gracefully.
type Disabled struct{}

func (Disabled) IssueCredential(string, string, string) (Credential, error) {
	return Credential{}, ErrDisabled
}

// videoGrant mirrors the media server's room-permission claim.
type videoGrant struct {
	Room         string `json:"room"`
	RoomJoin     bool   `json:"roomJoin"`
	CanPublish   bool   `json:"canPublish"`
	CanSubscribe bool   `json:"canSubscribe"`
}

type accessClaims struct {
	Name  string     `json:"name,omitempty"`
	Video videoGrant `json:"video"`
	jwtlib.RegisteredClaims
}

// TokenIssuer signs HS256 access tokens the media server verifies with the
// shared API secret.
type TokenIssuer struct {
	apiKey    string
	apiSecret []byte
	url       string
	ttl       time.Duration
}

const defaultTokenTTL = 6 * time.Hour

func NewTokenIssuer(apiKey, apiSecret, url string) (*TokenIssuer, error) {
	if apiKey == "" || apiSecret == "" || url == "" {
		return nil, errors.New("media: api_key, api_secret and url are required")
	}
	return &TokenIssuer{
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		url:       url,
		ttl:       defaultTokenTTL,
	}, nil
}

// IssueCredential mints a token granting join/publish/subscribe on one room.
func (i *TokenIssuer) IssueCredential(identity, name, roomID string) (Credential, error) {
	now := time.Now()
	claims := accessClaims{
		Name: name,
		Video: videoGrant{
			Room:         roomID,
			RoomJoin:     true,
			CanPublish:   true,
			CanSubscribe: true,
		},
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    i.apiKey,
			Subject:   identity,
			NotBefore: jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(i.ttl)),
		},
	}

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(i.apiSecret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: token, URL: i.url}, nil
}
