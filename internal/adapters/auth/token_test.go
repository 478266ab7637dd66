package auth

import "testing"

func TestTokenAuth_ValidateToken(t *testing.T) {
	auth := NewTokenAuth([]string{"token1", "token2"})

	if !auth.ValidateToken("token1") {
		t.Error("token1 should be valid")
	}
	if !auth.ValidateToken("token2") {
		t.Error("token2 should be valid")
	}
	if auth.ValidateToken("token3") {
		t.Error("token3 should be invalid")
	}
	if auth.ValidateToken("token") {
		t.Error("prefix of a token should be invalid")
	}
	if auth.ValidateToken("") {
		t.Error("empty token should be invalid")
	}
}

func TestTokenAuth_BlankTokensIgnored(t *testing.T) {
	auth := NewTokenAuth([]string{"", "  ", "real"})
	if auth.Len() != 1 {
		t.Errorf("Len() = %d, want 1", auth.Len())
	}
	if auth.ValidateToken("  ") {
		t.Error("blank token should not validate")
	}
}

func TestTokenAuth_EmptyTokenList(t *testing.T) {
	auth := NewTokenAuth([]string{})
	if auth.ValidateToken("anything") {
		t.Error("no tokens configured, nothing should validate")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"  Bearer   abc  ", "abc", true},
		{"Bearer", "", false},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := BearerToken(tt.header)
		if got != tt.want || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
		}
	}
}
