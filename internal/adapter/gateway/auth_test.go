package gateway

import (
	"errors"
	"testing"

	"devicepair/internal/domain"
	"devicepair/internal/infra/config"
)

func TestStaticTokenAuthValid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{
		{Token: "secret-123", Name: "kitchen-display"},
		{Token: "other", Name: "phone"},
	})

	info, err := auth.Authenticate("other")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if info.Name != "phone" {
		t.Errorf("Name = %q", info.Name)
	}
}

func TestStaticTokenAuthInvalid(t *testing.T) {
	auth := NewStaticTokenAuth([]config.TokenConfig{{Token: "secret-123", Name: "kitchen-display"}})

	_, err := auth.Authenticate("wrong-token")
	if !errors.Is(err, domain.ErrGatewayAuthFailed) {
		t.Errorf("err = %v, want ErrGatewayAuthFailed", err)
	}
	if _, err := NewStaticTokenAuth(nil).Authenticate(""); err == nil {
		t.Fatal("expected error for empty token list")
	}
}

func TestNewAuthenticator(t *testing.T) {
	if _, ok := NewAuthenticator(config.AuthConfig{}).(OpenAuth); !ok {
		t.Error("empty auth type should accept all clients")
	}
	a := NewAuthenticator(config.AuthConfig{Type: "static", Tokens: []config.TokenConfig{{Token: "t", Name: "n"}}})
	if _, err := a.Authenticate("x"); err == nil {
		t.Error("static auth accepted an unknown token")
	}
}
