package repository

import (
	"testing"

	"github.com/google/uuid"
)

func TestPairKeyIsSymmetric(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	if PairKey(a, b) != PairKey(b, a) {
		t.Errorf("PairKey(%s, %s) != PairKey(%s, %s)", a, b, b, a)
	}
}

func TestPairKeyOrdersLexicographically(t *testing.T) {
	low := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	high := uuid.MustParse("ffffffff-ffff-ffff-ffff-ffffffffffff")

	want := low.String() + ":" + high.String()
	if got := PairKey(high, low); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if got := PairKey(low, high); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPairKeyDistinguishesPairs(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	c := uuid.New()

	if PairKey(a, b) == PairKey(a, c) {
		t.Error("different pairs produced the same key")
	}
}
