package tokenauth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func decodeSegment(t *testing.T, token string, idx int) map[string]any {
	t.Helper()
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token shape: %s", token)
	}
	raw, err := base64.RawURLEncoding.DecodeString(parts[idx])
	if err != nil {
		t.Fatalf("decode segment %d: %v", idx, err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal segment %d: %v", idx, err)
	}
	return out
}

func TestIssuer_DefaultClaims(t *testing.T) {
	issued := time.Unix(1_700_000_000, 123_000_000)
	issuer, _ := newPair(t, NewAllowlist(DefaultAllowedUsers...), issued)

	tok, err := issuer.Issue("local-admin", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok.TokenType != "Bearer" {
		t.Fatalf("unexpected token type: %s", tok.TokenType)
	}
	if tok.ExpiresIn != "7d" {
		t.Fatalf("unexpected expiresIn: %s", tok.ExpiresIn)
	}
	if tok.Lifetime != 7*24*time.Hour {
		t.Fatalf("unexpected lifetime: %v", tok.Lifetime)
	}
	if !tok.IssuedAt.Equal(time.Unix(1_700_000_000, 0)) {
		t.Fatalf("issuedAt should be truncated to seconds, got %v", tok.IssuedAt)
	}

	header := decodeSegment(t, tok.AccessToken, 0)
	if header["alg"] != "HS256" {
		t.Fatalf("unexpected alg: %v", header["alg"])
	}

	claims := decodeSegment(t, tok.AccessToken, 1)
	want := map[string]any{
		"sub":   "local-admin",
		"email": "local-test@example.com",
		"role":  "user",
		"iat":   float64(1_700_000_000),
		"exp":   float64(1_700_000_000 + 604800),
	}
	if len(claims) != len(want) {
		t.Fatalf("unexpected claim set: %v", claims)
	}
	for k, v := range want {
		if claims[k] != v {
			t.Fatalf("claim %s: want %v, got %v", k, v, claims[k])
		}
	}
}

func TestIssuer_TrimsInput(t *testing.T) {
	issuer, _ := newPair(t, NewAllowlist(DefaultAllowedUsers...), time.Now())

	tok, err := issuer.Issue("  test-user \n", "  dev@example.com ", " admin ")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok.Claims.Subject != "test-user" {
		t.Fatalf("unexpected subject: %q", tok.Claims.Subject)
	}
	if tok.Claims.Email != "dev@example.com" {
		t.Fatalf("unexpected email: %q", tok.Claims.Email)
	}
	if tok.Claims.Role != "admin" {
		t.Fatalf("unexpected role: %q", tok.Claims.Role)
	}

	tok, err = issuer.Issue("test-user", "   ", "\t")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if tok.Claims.Email != DefaultEmail || tok.Claims.Role != DefaultRole {
		t.Fatalf("blank optional fields should fall back to defaults, got %+v", tok.Claims)
	}
}

func TestIssuer_NotAllowlisted(t *testing.T) {
	issuer, _ := newPair(t, NewAllowlist(DefaultAllowedUsers...), time.Now())

	for _, subject := range []string{"nobody", "", "   ", "LOCAL-ADMIN", "local-admin2"} {
		tok, err := issuer.Issue(subject, "", "")
		requireCode(t, err, ErrCodeNotAllowlisted)
		if tok != nil {
			t.Fatalf("expected no token for %q", subject)
		}
	}
}

func TestIssuer_EmptyAllowlist(t *testing.T) {
	issuer, _ := newPair(t, NewAllowlist(), time.Now())
	_, err := issuer.Issue("local-admin", "", "")
	requireCode(t, err, ErrCodeNotAllowlisted)
}

func TestIssuer_CustomLifetime(t *testing.T) {
	cfg, err := NewSigningConfig(testSecret, "90m")
	if err != nil {
		t.Fatalf("NewSigningConfig: %v", err)
	}
	now := time.Unix(1_700_000_000, 0)
	issuer, err := NewIssuer(cfg, NewAllowlist("svc"), WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("NewIssuer: %v", err)
	}
	tok, err := issuer.Issue("svc", "", "")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if got := tok.ExpiresAt().Sub(tok.IssuedAt); got != 90*time.Minute {
		t.Fatalf("unexpected lifetime: %v", got)
	}
	if tok.ExpiresIn != "90m" {
		t.Fatalf("unexpected expiresIn: %s", tok.ExpiresIn)
	}
}

func TestSigningConfig_Validation(t *testing.T) {
	tests := []struct {
		name      string
		secret    string
		expiresIn string
		wantErr   string
	}{
		{name: "missing secret", secret: "", wantErr: "required"},
		{name: "short secret", secret: strings.Repeat("a", 31), wantErr: "at least 32"},
		{name: "bad lifetime", secret: testSecret, expiresIn: "soon", wantErr: "expires in"},
		{name: "sub-second lifetime", secret: testSecret, expiresIn: "500", wantErr: "at least 1s"},
		{name: "ok", secret: strings.Repeat("a", 32), expiresIn: "1h"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSigningConfig(tc.secret, tc.expiresIn)
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tc.wantErr, err)
			}
		})
	}
}
