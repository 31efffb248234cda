package duration

import (
	"math/big"
	"testing"
)

const res = 480

func bigHalfRatio() *big.Rat { return big.NewRat(1, 2) }

func mustParse(t *testing.T, token string, want int) {
	t.Helper()
	got, err := Parse(token, res)
	if err != nil {
		t.Fatalf("Parse(%q) returned error: %v", token, err)
	}
	if got != want {
		t.Errorf("Parse(%q) = %d, want %d", token, got, want)
	}
}

func TestPrimitiveLengths(t *testing.T) {
	mustParse(t, "/4", 480)
	mustParse(t, "/2", 960)
	mustParse(t, "*2", 3840)
}

func TestDottedLengths(t *testing.T) {
	mustParse(t, "*4.", 11520)
	mustParse(t, "*4..", 13440)
}

func TestTripletChains(t *testing.T) {
	mustParse(t, "*4t", 5120)
	mustParse(t, "*4tt", 3413)
	mustParse(t, "*4t7:4", 4389)
	mustParse(t, "*4t7:4t7:4", 2508)
	mustParse(t, "*4t7:4t7:4t5:4", 2006)
	// 7680 * (2/3)^3 = 61440/27 = 2275.55..., which rounds to 2276 only
	// when the exact rational is carried through all three "t" steps and
	// rounded once; rounding after each step (7680 -> 5120 -> 3413 ->
	// 2275) would lose the fraction and land on 2275 instead.
	mustParse(t, "*4ttt", 2276)
}

func TestTupletRoundTripIdentity(t *testing.T) {
	// t7:4 followed by t4:7 is an identity pair; chained twice it must
	// land back exactly on the base length. Rounding after each step
	// would instead pass through 274 and a 479.5 tie along the way.
	mustParse(t, "/4t7:4t4:7t7:4t4:7", 480)
}

func TestLegacyDigitsAndSums(t *testing.T) {
	mustParse(t, "4+32+1", 2460)
	mustParse(t, "5", 600)
	mustParse(t, "1", 1920)
}

func TestBadLength(t *testing.T) {
	cases := []string{"/64", "*64", "xyz", "/4+", "", "/4t7:"}
	for _, c := range cases {
		if _, err := Parse(c, res); err == nil {
			t.Errorf("Parse(%q) expected error, got none", c)
		}
	}
}

func TestRoundHalfUp(t *testing.T) {
	half := bigHalfRatio()
	if got := RoundHalfUp(480, half); got != 240 {
		t.Errorf("RoundHalfUp(480, 1/2) = %d, want 240", got)
	}
	// 481 * 0.5 = 240.5, half-up breaks the tie upward to 241.
	if got := RoundHalfUp(481, half); got != 241 {
		t.Errorf("RoundHalfUp(481, 1/2) = %d, want 241", got)
	}
}

func TestLengthRoundsTripStable(t *testing.T) {
	// Any length already expressed as a canonical ticks-producing token
	// must re-derive the same tick count when parsed again.
	for _, tok := range []string{"/4", "/2", "*2", "4+32+1", "*4t7:4"} {
		a, err := Parse(tok, res)
		if err != nil {
			t.Fatalf("Parse(%q): %v", tok, err)
		}
		b, err := Parse(tok, res)
		if err != nil {
			t.Fatalf("second Parse(%q): %v", tok, err)
		}
		if a != b {
			t.Errorf("Parse(%q) not stable: %d vs %d", tok, a, b)
		}
	}
}
