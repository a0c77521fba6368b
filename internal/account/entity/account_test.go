package entity

import (
	"testing"
	"time"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{in: "employer", want: RoleEmployer, ok: true},
		{in: " ADMIN ", want: RoleAdmin, ok: true},
		{in: "", want: RoleNone, ok: true},
		{in: "root", ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseRole(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ParseRole(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestParseProvider(t *testing.T) {
	if p, ok := ParseProvider("google"); !ok || p != ProviderGoogle {
		t.Fatalf("expected GOOGLE, got %q %v", p, ok)
	}
	if _, ok := ParseProvider("facebook"); ok {
		t.Fatal("expected unknown provider to fail")
	}
}

func TestRefreshTokenFieldsMoveTogether(t *testing.T) {
	var a Account
	a.SetRefreshToken("fp", time.Unix(100, 0))
	if a.RefreshTokenFingerprint == nil || a.RefreshTokenExpiry == nil {
		t.Fatal("expected both refresh fields set")
	}
	a.ClearRefreshToken()
	if a.RefreshTokenFingerprint != nil || a.RefreshTokenExpiry != nil {
		t.Fatal("expected both refresh fields cleared")
	}
}

func TestExternalIDsScanValue(t *testing.T) {
	in := ExternalIDs{ProviderVK: "vk-1", ProviderTelegram: "tg-9"}
	v, err := in.Value()
	if err != nil {
		t.Fatalf("value: %v", err)
	}

	var out ExternalIDs
	if err := out.Scan(v); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if out[ProviderVK] != "vk-1" || out[ProviderTelegram] != "tg-9" {
		t.Fatalf("unexpected ids: %v", out)
	}

	var empty ExternalIDs
	if err := empty.Scan("{}"); err != nil {
		t.Fatalf("scan empty: %v", err)
	}
	if empty != nil {
		t.Fatalf("expected nil map for empty document, got %v", empty)
	}
	if err := empty.Scan(42); err == nil {
		t.Fatal("expected error for unsupported type")
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  A@X.com "); got != "a@x.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}
