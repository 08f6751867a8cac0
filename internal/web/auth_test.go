package web

import (
	"strings"
	"testing"
	"time"
)

func TestSessionCookieTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := newSessionCookieToken(secret, "auth0|abc", "nonce-1", time.Hour)
	if err != nil {
		t.Fatalf("newSessionCookieToken: %v", err)
	}
	sp, err := verifyToken(secret, tok)
	if err != nil {
		t.Fatalf("verifyToken: %v", err)
	}
	if sp.Sub != "auth0|abc" || sp.N != "nonce-1" {
		t.Fatalf("unexpected claims: %+v", sp)
	}
}

func TestVerifyTokenRejectsTampering(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := newSessionCookieToken(secret, "auth0|abc", "nonce-1", time.Hour)
	if err != nil {
		t.Fatalf("newSessionCookieToken: %v", err)
	}

	if _, err := verifyToken([]byte("other-secret"), tok); err == nil {
		t.Fatalf("expected verification to fail under a different secret")
	}

	parts := strings.SplitN(tok, ".", 2)
	forged := parts[0] + "x." + parts[1]
	if _, err := verifyToken(secret, forged); err == nil {
		t.Fatalf("expected verification to fail for altered payload")
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := signToken(secret, signedPayload{
		Sub: "auth0|abc",
		N:   "nonce-1",
		Exp: time.Now().Add(-time.Minute).Unix(),
	})
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if _, err := verifyToken(secret, tok); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifyTokenRequiresClaims(t *testing.T) {
	secret := []byte("test-secret")
	tok, err := signToken(secret, signedPayload{Exp: time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("signToken: %v", err)
	}
	if _, err := verifyToken(secret, tok); err == nil {
		t.Fatalf("expected token without sub/nonce to be rejected")
	}

	if _, err := newSessionCookieToken(secret, "  ", "nonce", time.Hour); err == nil {
		t.Fatalf("expected empty subject to be rejected")
	}
}

func TestLoadOrInitSecretKeyIsStable(t *testing.T) {
	dir := t.TempDir()
	first, err := loadOrInitSecretKey(dir)
	if err != nil {
		t.Fatalf("loadOrInitSecretKey: %v", err)
	}
	second, err := loadOrInitSecretKey(dir)
	if err != nil {
		t.Fatalf("loadOrInitSecretKey (again): %v", err)
	}
	if string(first) != string(second) {
		t.Fatalf("secret key changed between loads")
	}
}
