package extract

import (
	"errors"
	"testing"
)

func TestParseFindsObjectInsideProse(t *testing.T) {
	obj, err := Parse(`prefix {"summary":"ok"} suffix`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if obj != `{"summary":"ok"}` {
		t.Errorf("Parse() = %q", obj)
	}
}

func TestParseNoObject(t *testing.T) {
	for _, buf := range []string{"", "no braces here", `{"never": "closed"`} {
		if _, err := Parse(buf); !errors.Is(err, ErrNoObject) {
			t.Errorf("Parse(%q) error = %v, want ErrNoObject", buf, err)
		}
	}
}

func TestParseMalformed(t *testing.T) {
	if _, err := Parse(`{"bad": }`); !errors.Is(err, ErrMalformedJSON) {
		t.Errorf("Parse() error = %v, want ErrMalformedJSON", err)
	}
}

func TestParseNestedObjects(t *testing.T) {
	obj, err := Parse(`{"a":{"b":{"c":1}},"d":2} trailing {"e":3}`)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if obj != `{"a":{"b":{"c":1}},"d":2}` {
		t.Errorf("Parse() = %q", obj)
	}
}

func TestParseBracesInsideStrings(t *testing.T) {
	// Braces and escaped quotes inside string values must not end the scan.
	in := `{"code":"if (x) { return \"}\"; }","n":1}`
	obj, err := Parse("note: " + in)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if obj != in {
		t.Errorf("Parse() = %q, want %q", obj, in)
	}
}

func TestScannerIncrementalFeeding(t *testing.T) {
	chunks := []string{`The analysis: {"sum`, `mary"`, `:"o`, `k"} done`}

	var s Scanner
	for _, c := range chunks {
		s.Feed(c)
	}
	obj, err := s.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if obj != `{"summary":"ok"}` {
		t.Errorf("Result() = %q", obj)
	}
}

func TestScannerIgnoresInputAfterCapture(t *testing.T) {
	var s Scanner
	s.Feed(`{"a":1}`)
	s.Feed(`{"b": }`)
	obj, err := s.Result()
	if err != nil {
		t.Fatalf("Result() error = %v", err)
	}
	if obj != `{"a":1}` {
		t.Errorf("Result() = %q", obj)
	}
}

func TestScannerPartialStream(t *testing.T) {
	var s Scanner
	s.Feed(`{"summary":"stream cut off`)
	if _, err := s.Result(); !errors.Is(err, ErrNoObject) {
		t.Errorf("Result() error = %v, want ErrNoObject", err)
	}
}
