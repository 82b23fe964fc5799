package similarity

import (
	"math"
	"testing"
)

func TestScoreIdenticalTexts(t *testing.T) {
	t.Parallel()

	s := Score("The meeting starts at noon.", "The meeting starts at noon.")
	if math.Abs(s-1) > 1e-9 {
		t.Fatalf("identical texts score=%v want 1", s)
	}
}

func TestScoreDisjointTexts(t *testing.T) {
	t.Parallel()

	if s := Score("alpha beta gamma", "delta epsilon zeta"); s != 0 {
		t.Fatalf("disjoint texts score=%v want 0", s)
	}
}

func TestScorePartialOverlap(t *testing.T) {
	t.Parallel()

	s := Score(
		"The quarterly budget was approved by the board.",
		"The board approved the budget for next quarter.",
	)
	if s <= 0 || s >= 1 {
		t.Fatalf("partial overlap score=%v want (0, 1)", s)
	}
}

func TestScoreOrderInsensitive(t *testing.T) {
	t.Parallel()

	a := Score("cat dog bird", "bird dog cat")
	if math.Abs(a-1) > 1e-9 {
		t.Fatalf("reordered tokens score=%v want 1", a)
	}
}

func TestScoreCaseAndPunctuation(t *testing.T) {
	t.Parallel()

	s := Score("Hello, World!", "hello world")
	if math.Abs(s-1) > 1e-9 {
		t.Fatalf("case/punct normalization score=%v want 1", s)
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	t.Parallel()

	if s := Score("", ""); s != 1 {
		t.Fatalf("both empty score=%v want 1", s)
	}
	if s := Score("something", ""); s != 0 {
		t.Fatalf("one empty score=%v want 0", s)
	}
	if s := Score("", "something"); s != 0 {
		t.Fatalf("one empty score=%v want 0", s)
	}
}

func TestScoreSymmetric(t *testing.T) {
	t.Parallel()

	a := "Revenue grew ten percent year over year."
	b := "Year over year revenue was up."
	if math.Abs(Score(a, b)-Score(b, a)) > 1e-12 {
		t.Fatalf("score not symmetric")
	}
}

func TestScoreBounded(t *testing.T) {
	t.Parallel()

	pairs := [][2]string{
		{"a a a b", "a b b b"},
		{"x", "x y z"},
		{"one two three four", "three four five six"},
	}
	for _, p := range pairs {
		s := Score(p[0], p[1])
		if s < 0 || s > 1 {
			t.Fatalf("Score(%q, %q)=%v out of [0,1]", p[0], p[1], s)
		}
	}
}
