package util

import "testing"

func TestIsValidEmail(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{in: "user@example.com", want: true},
		{in: "a@b.c", want: true},
		{in: "first.last@sub.example.co.kr", want: true},
		{in: "not-an-email", want: false},
		{in: "@example.com", want: false},
		{in: "user@", want: false},
		{in: "user@localhost", want: false},
		{in: "user@.com", want: false},
		{in: "user@example.", want: false},
		{in: "us er@example.com", want: false},
		{in: "user@@example.com", want: false},
		{in: "", want: false},
	}
	for _, tc := range cases {
		if got := IsValidEmail(tc.in); got != tc.want {
			t.Fatalf("IsValidEmail(%q) want %v got %v", tc.in, tc.want, got)
		}
	}
}

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"user@example.com":   "use*@example.com",
		"abc@example.com":    "abc@example.com",
		"jo@example.com":     "jo@example.com",
		"longname@mail.net":  "lon*****@mail.net",
		"not-an-email":       "not-an-email",
		"김철수영희@example.com": "김철수**@example.com",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) want %q got %q", in, want, got)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  User@Example.COM "); got != "user@example.com" {
		t.Fatalf("unexpected normalized email: %q", got)
	}
}

func TestContainsSuspicious(t *testing.T) {
	if !ContainsSuspicious("<script>alert(1)</script>") {
		t.Fatalf("script tag should be suspicious")
	}
	if ContainsSuspicious("eatflow_user01") {
		t.Fatalf("plain username should not be suspicious")
	}
	if got := SanitizeInput(" <b> "); got != "&lt;b&gt;" {
		t.Fatalf("unexpected sanitized value: %q", got)
	}
}
