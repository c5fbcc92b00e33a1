package errs

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := Shape("scaler", "expected %d columns, got %d", 5, 3)
	wrapped := fmt.Errorf("predict: %w", base)

	if !errors.Is(wrapped, ErrShape) {
		t.Fatalf("expected ShapeError through wrapping")
	}
	if errors.Is(wrapped, ErrData) {
		t.Fatalf("unexpected DataError match")
	}
	if KindOf(wrapped) != ErrShape {
		t.Fatalf("unexpected kind %v", KindOf(wrapped))
	}
	if StageOf(wrapped) != "scaler" {
		t.Fatalf("unexpected stage %q", StageOf(wrapped))
	}
}

func TestErrorMessageNamesStageAndKind(t *testing.T) {
	err := Data("labeler", "cpi is NaN at index %d", 4).Wrap(errors.New("parse"))
	want := "labeler: DataError: cpi is NaN at index 4: parse"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}

func TestExitCode(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{Config("config", "x"), 2},
		{Data("csv", "x"), 3},
		{Shape("windows", "x"), 4},
		{InsufficientData("predictor", "x"), 5},
		{NumericDivergence("trainer", "x"), 6},
	}
	for _, c := range cases {
		if got := ExitCode(c.err); got != c.code {
			t.Fatalf("ExitCode(%v)=%d want %d", c.err, got, c.code)
		}
	}
}
