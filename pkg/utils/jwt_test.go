package utils

import (
	"testing"

	"github.com/google/uuid"
)

func TestGenerateAndValidateToken(t *testing.T) {
	userID := uuid.New()

	pair, err := GenerateTokenPair(userID, "pat@example.com", "patient", "secret", 168, 720)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}
	if pair.RefreshToken == "" || pair.AccessToken == "" {
		t.Fatal("expected both tokens")
	}

	claims, err := ValidateToken(pair.AccessToken, "secret")
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != userID || claims.Role != "patient" || claims.Email != "pat@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}

	if _, err := ValidateToken(pair.AccessToken, "other-secret"); err == nil {
		t.Error("expected signature mismatch to fail")
	}
	if _, err := ValidateToken("not-a-token", "secret"); err == nil {
		t.Error("expected garbage token to fail")
	}
}

func TestGenerateTokenPair_EmptySecret(t *testing.T) {
	if _, err := GenerateTokenPair(uuid.New(), "a@b.c", "patient", "", 1, 1); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
