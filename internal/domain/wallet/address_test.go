package wallet

import "testing"

func TestValid(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"0x52908400098527886E0F7030069857D2E4169EE7", true},
		{" 0x8617e340b3d01fa5f11f306f4090fd50e238070d ", true},
		{"0x123", false},
		{"52908400098527886E0F7030069857D2E4169EE7", false},
		{"0xZZ908400098527886E0F7030069857D2E4169EE7", false},
	}
	for _, tc := range cases {
		if got := Valid(tc.in); got != tc.want {
			t.Fatalf("Valid(%q): want=%v got=%v", tc.in, tc.want, got)
		}
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("  0xABCdef "); got != "0xabcdef" {
		t.Fatalf("Normalize: want=%q got=%q", "0xabcdef", got)
	}
}
