package prose

import "testing"

func TestCountChars(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"hello", 5},
		{"สวัสดี", 6},
		{"日本語", 3},
	}

	for _, tt := range tests {
		if got := CountChars(tt.input); got != tt.want {
			t.Errorf("CountChars(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"one", 2},
		{"one two three", 4},
		{"  spaced   out  words ", 4},
	}

	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestTail(t *testing.T) {
	tests := []struct {
		name string
		text string
		n    int
		want string
	}{
		{"shorter than window", "abc", 10, "abc"},
		{"exact", "abc", 3, "abc"},
		{"trimmed", "abcdef", 2, "ef"},
		{"multibyte", "กขคงจ", 2, "งจ"},
		{"zero window", "abc", 0, ""},
		{"empty", "", 5, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Tail(tt.text, tt.n); got != tt.want {
				t.Errorf("Tail(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.want)
			}
		})
	}
}
