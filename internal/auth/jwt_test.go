package auth

import (
	"testing"
	"time"
)

func TestNewTokenManager(t *testing.T) {
	if _, err := NewTokenManager("", 0); err == nil {
		t.Error("Expected error for empty secret")
	}

	manager, err := NewTokenManager("test-secret", 0)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}
	if manager.TTL() != DefaultTokenTTL {
		t.Errorf("Expected default TTL %v, got %v", DefaultTokenTTL, manager.TTL())
	}

	manager, err = NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}
	if manager.TTL() != time.Hour {
		t.Errorf("Expected TTL %v, got %v", time.Hour, manager.TTL())
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	manager, err := NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}

	token, err := manager.GenerateClientToken("client-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}
	if token == "" {
		t.Fatal("Expected non-empty token")
	}

	claims, err := manager.ValidateToken(token)
	if err != nil {
		t.Fatalf("Failed to validate token: %v", err)
	}
	if claims.ClientID != "client-123" {
		t.Errorf("Expected client ID client-123, got %s", claims.ClientID)
	}
	if claims.Role != RoleClient {
		t.Errorf("Expected role %s, got %s", RoleClient, claims.Role)
	}
}

func TestGenerateClientToken_EmptyClientID(t *testing.T) {
	manager, err := NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}

	if _, err := manager.GenerateClientToken(""); err == nil {
		t.Error("Expected error for empty client ID")
	}
}

func TestValidateToken_Expired(t *testing.T) {
	manager, err := NewTokenManager("test-secret", time.Nanosecond)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}

	token, err := manager.GenerateClientToken("client-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	// Let the token pass its expiry
	time.Sleep(5 * time.Millisecond)

	if _, err := manager.ValidateToken(token); err == nil {
		t.Error("Expected error for expired token")
	}
}

func TestValidateToken_Garbage(t *testing.T) {
	manager, err := NewTokenManager("test-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create token manager: %v", err)
	}

	if _, err := manager.ValidateToken("not-a-token"); err == nil {
		t.Error("Expected error for malformed token")
	}
}

func TestValidateToken_WrongSecret(t *testing.T) {
	issuer, err := NewTokenManager("issuer-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create issuer: %v", err)
	}
	verifier, err := NewTokenManager("other-secret", time.Hour)
	if err != nil {
		t.Fatalf("Failed to create verifier: %v", err)
	}

	token, err := issuer.GenerateClientToken("client-123")
	if err != nil {
		t.Fatalf("Failed to generate token: %v", err)
	}

	if _, err := verifier.ValidateToken(token); err == nil {
		t.Error("Expected error for token signed with a different secret")
	}
}
