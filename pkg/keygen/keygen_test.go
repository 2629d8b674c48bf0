package keygen

import (
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/yndnr/meshsync/internal/core/domain"
)

var lowerHex64 = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestGenerateHexKey(t *testing.T) {
	a, err := GenerateHexKey()
	if err != nil {
		t.Fatalf("GenerateHexKey() error = %v", err)
	}
	b, err := GenerateHexKey()
	if err != nil {
		t.Fatalf("GenerateHexKey() error = %v", err)
	}

	for _, k := range []string{a, b} {
		if !lowerHex64.MatchString(k) {
			t.Errorf("key %q is not 64 lowercase hex chars", k)
		}
	}
	if a == b {
		t.Error("two generated keys should differ")
	}
}

func TestGenerateBytes(t *testing.T) {
	for _, n := range []int{0, 1, 32, 100} {
		b, err := GenerateBytes(n)
		if err != nil {
			t.Fatalf("GenerateBytes(%d) error = %v", n, err)
		}
		if len(b) != n {
			t.Errorf("GenerateBytes(%d) length = %d", n, len(b))
		}
	}
}

func TestGenerateInviteCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		code, err := GenerateInviteCode()
		if err != nil {
			t.Fatalf("GenerateInviteCode() error = %v", err)
		}
		if len(code) != domain.InviteCodeLength {
			t.Fatalf("code %q length = %d", code, len(code))
		}
		for _, c := range code {
			if !strings.ContainsRune(domain.InviteCodeAlphabet, c) {
				t.Fatalf("code %q contains %q", code, c)
			}
		}
		if !domain.ValidInviteCode(code) {
			t.Fatalf("ValidInviteCode(%q) = false", code)
		}
		seen[code] = true
	}
	if len(seen) < 195 {
		t.Errorf("only %d distinct codes out of 200", len(seen))
	}
}

func TestNewDeviceIdentity(t *testing.T) {
	a := NewDeviceIdentity()
	b := NewDeviceIdentity()

	if !strings.HasPrefix(a, runtime.GOOS+"-") {
		t.Errorf("identity %q should start with platform", a)
	}
	if parts := strings.Split(a, "-"); len(parts) < 3 || len(parts[len(parts)-1]) != 12 {
		t.Errorf("identity %q has unexpected shape", a)
	}
	if a == b {
		t.Error("identities should differ")
	}
}

func TestFingerprint(t *testing.T) {
	fp := Fingerprint("abc")
	if len(fp) != 16 {
		t.Errorf("Fingerprint() length = %d, want 16", len(fp))
	}
	if fp != Fingerprint("abc") {
		t.Error("Fingerprint() should be deterministic")
	}
	if fp == Fingerprint("abd") {
		t.Error("different inputs should fingerprint differently")
	}
}

func TestEqual(t *testing.T) {
	if !Equal("x", "x") || Equal("x", "y") || Equal("x", "xx") {
		t.Error("Equal() mismatch")
	}
}

func BenchmarkGenerateHexKey(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = GenerateHexKey()
	}
}
