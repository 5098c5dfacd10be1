package auth

import "testing"

func TestIssueAndValidateTokenRoundTrip(t *testing.T) {
	hash, err := HashPassphrase("hunter2")
	if err != nil {
		t.Fatalf("hash passphrase: %v", err)
	}
	svc := New("test-secret", hash)

	token, err := svc.IssueToken("hunter2")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	if claims.Subject != "operator" {
		t.Fatalf("subject = %q, want operator", claims.Subject)
	}
}

func TestIssueTokenRejectsWrongPassphrase(t *testing.T) {
	hash, _ := HashPassphrase("hunter2")
	svc := New("test-secret", hash)

	if _, err := svc.IssueToken("wrong"); err == nil {
		t.Fatal("expected an error for an incorrect passphrase")
	}
}

func TestIssueTokenFailsClosedWithNoPassphraseConfigured(t *testing.T) {
	svc := New("test-secret", "")
	if _, err := svc.IssueToken("anything"); err == nil {
		t.Fatal("expected an error when no operator passphrase is configured")
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	hash, _ := HashPassphrase("hunter2")
	svc := New("secret-a", hash)
	token, err := svc.IssueToken("hunter2")
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	other := New("secret-b", hash)
	if _, err := other.ValidateToken(token); err == nil {
		t.Fatal("expected validation to fail against a different secret")
	}
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	svc := New("test-secret", "")
	if _, err := svc.ValidateToken("not-a-jwt"); err == nil {
		t.Fatal("expected an error for a malformed token")
	}
}
