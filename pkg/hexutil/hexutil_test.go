package hexutil

import (
	"math/big"
	"strings"
	"testing"
)

func TestAddPrefix(t *testing.T) {
	if got := AddPrefix("ab"); got != "0xab" {
		t.Errorf("AddPrefix(ab) = %q, want 0xab", got)
	}
	if got := AddPrefix("0xab"); got != "0xab" {
		t.Errorf("AddPrefix(0xab) = %q, want 0xab", got)
	}
	if got := StripPrefix("0xab"); got != "ab" {
		t.Errorf("StripPrefix(0xab) = %q, want ab", got)
	}
	if got := StripPrefix("ab"); got != "ab" {
		t.Errorf("StripPrefix(ab) = %q, want ab", got)
	}
}

func TestPadding(t *testing.T) {
	left := LeftPadBytes32("0x1")
	if len(left) != 66 || !strings.HasSuffix(left, "01") || !strings.HasPrefix(left, "0x000") {
		t.Errorf("LeftPadBytes32(0x1) = %q", left)
	}
	right := RightPadBytes32("70a08231")
	if len(right) != 66 || !strings.HasPrefix(right, "0x70a08231000") {
		t.Errorf("RightPadBytes32 = %q", right)
	}
	if got := LeftPadByte("abc"); got != "0x0abc" {
		t.Errorf("LeftPadByte(abc) = %q, want 0x0abc", got)
	}
	if got := LeftPadByte("0xabcd"); got != "0xabcd" {
		t.Errorf("LeftPadByte(0xabcd) = %q, want 0xabcd", got)
	}
}

func TestBigCodec(t *testing.T) {
	v, _ := new(big.Int).SetString("1000000000000000000", 10)
	enc := FormatBig(v)
	if enc != "0xde0b6b3a7640000" {
		t.Errorf("FormatBig(1e18) = %q", enc)
	}
	dec, err := ParseBig(enc)
	if err != nil {
		t.Fatalf("ParseBig() error: %v", err)
	}
	if dec.Cmp(v) != 0 {
		t.Errorf("ParseBig(%q) = %s, want %s", enc, dec, v)
	}

	dec, err = ParseBig("42")
	if err != nil || dec.Int64() != 42 {
		t.Errorf("ParseBig(42) = %v, %v", dec, err)
	}
	if FormatBig(nil) != "0x0" || FormatBig(new(big.Int)) != "0x0" {
		t.Error("zero should encode as 0x0")
	}

	max256 := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	dec, err = ParseBig(FormatBig(max256))
	if err != nil || dec.Cmp(max256) != 0 {
		t.Errorf("ParseBig(2^256-1) = %v, %v", dec, err)
	}

	over := new(big.Int).Lsh(big.NewInt(1), 256)
	for _, bad := range []string{"", "0x", "zz", "0xzz", "-5", "0x-5", "-0x5", FormatBig(over), over.String()} {
		if _, err := ParseBig(bad); err == nil {
			t.Errorf("ParseBig(%q) should fail", bad)
		}
	}
}

func TestUintCodec(t *testing.T) {
	n, err := ParseUint(FormatUint(12345))
	if err != nil || n != 12345 {
		t.Errorf("uint roundtrip = %d, %v", n, err)
	}
	n, err = ParseUint("0x10")
	if err != nil || n != 16 {
		t.Errorf("ParseUint(0x10) = %d, %v", n, err)
	}
	if _, err := ParseUint("-1"); err == nil {
		t.Error("ParseUint(-1) should fail")
	}
	if _, err := ParseUint("0x-1"); err == nil {
		t.Error("ParseUint(0x-1) should fail")
	}
	if _, err := ParseUint(""); err == nil {
		t.Error("ParseUint(empty) should fail")
	}
	if _, err := ParseUint("0x10000000000000000"); err == nil {
		t.Error("ParseUint overflow should fail")
	}
}
