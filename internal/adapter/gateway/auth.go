package gateway

import (
	"crypto/subtle"

	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
)

// ClientInfo identifies an authenticated surface.
type ClientInfo struct {
	Name string
}

// Authenticator validates incoming gateway connections.
type Authenticator interface {
	Authenticate(token string) (*ClientInfo, error)
}

// StaticTokenAuth checks tokens against a fixed list in constant time.
type StaticTokenAuth struct {
	tokens [][]byte
	infos  []*ClientInfo
}

// NewStaticTokenAuth builds an authenticator from configured tokens.
func NewStaticTokenAuth(tokens []config.TokenConfig) *StaticTokenAuth {
	a := &StaticTokenAuth{}
	for _, t := range tokens {
		a.tokens = append(a.tokens, []byte(t.Token))
		a.infos = append(a.infos, &ClientInfo{Name: t.Name})
	}
	return a
}

// Authenticate implements Authenticator.
func (s *StaticTokenAuth) Authenticate(token string) (*ClientInfo, error) {
	tokenBytes := []byte(token)
	for i, t := range s.tokens {
		if subtle.ConstantTimeCompare(tokenBytes, t) == 1 {
			return s.infos[i], nil
		}
	}
	return nil, domain.ErrGatewayAuthFailed
}

// OpenAuth accepts every connection. Only suitable when the gateway listens
// on loopback.
type OpenAuth struct{}

// Authenticate implements Authenticator.
func (OpenAuth) Authenticate(string) (*ClientInfo, error) {
	return &ClientInfo{Name: "local"}, nil
}

// NewAuthenticator picks the authenticator for cfg.
func NewAuthenticator(cfg config.AuthConfig) Authenticator {
	if cfg.Type == "static" {
		return NewStaticTokenAuth(cfg.Tokens)
	}
	return OpenAuth{}
}
