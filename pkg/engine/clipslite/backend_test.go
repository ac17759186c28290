package clipslite

import "testing"

func TestConsultForm(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "defrule evaluated directly",
			input: `(defrule fire-once (ready) => (printout t "fired" crlf))`,
			want:  `(defrule fire-once (ready) => (printout t "fired" crlf))`,
		},
		{
			name:  "deffacts evaluated directly",
			input: `(deffacts startup (ready))`,
			want:  `(deffacts startup (ready))`,
		},
		{
			name:  "bare fact literal wrapped in assert",
			input: `(parent tom mary)`,
			want:  `(assert (parent tom mary))`,
		},
		{
			name:  "leading whitespace trimmed before dispatch",
			input: "  (parent tom mary)  ",
			want:  `(assert (parent tom mary))`,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := consultForm(tc.input); got != tc.want {
				t.Errorf("consultForm(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
