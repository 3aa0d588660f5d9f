package nodegroup

import "testing"

func TestMatches(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		node    string
		include []string
		exclude []string
		want    bool
	}{
		{name: "empty include is permissive", node: "SG-01", want: true},
		{name: "include alternation", node: "Hong Kong 02", include: []string{"HK|Hong"}, want: true},
		{name: "include miss", node: "SG-01", include: []string{"HK|Hong"}, want: false},
		{name: "any include matches", node: "JP-01", include: []string{"HK", "JP"}, want: true},
		{name: "exclude wins over include", node: "HK-01 [expired]", include: []string{"HK"}, exclude: []string{"expired"}, want: false},
		{name: "exclude with empty include", node: "US-01 x0.1", exclude: []string{`x0\.\d`}, want: false},
		{name: "case insensitive", node: "hk-lite", include: []string{"HK"}, want: true},
		{name: "percent encoded name", node: "%F0%9F%87%AD%F0%9F%87%B0%20%E9%A6%99%E6%B8%AF", include: []string{"香港"}, want: true},
		{name: "broken escape falls back to raw", node: "HK%zz", include: []string{"HK%zz"}, want: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := Matches(tc.node, tc.include, tc.exclude)
			if err != nil {
				t.Fatalf("Matches() error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Matches(%q, %v, %v) = %v, want %v", tc.node, tc.include, tc.exclude, got, tc.want)
			}
		})
	}
}

func TestMatches_ExcludeAlwaysWins(t *testing.T) {
	t.Parallel()

	names := []string{"HK-01", "SG-02", "US premium", "香港 01"}
	includes := [][]string{nil, {".*"}, {"HK", "SG", "US", "香港"}}
	for _, name := range names {
		for _, include := range includes {
			got, err := Matches(name, include, []string{".*"})
			if err != nil {
				t.Fatalf("Matches() error: %v", err)
			}
			if got {
				t.Fatalf("expected %q rejected by catch-all exclude with include %v", name, include)
			}
		}
	}
}

func TestValidatePatterns(t *testing.T) {
	t.Parallel()

	if err := ValidatePatterns([]string{"HK|Hong"}, []string{"expired"}); err != nil {
		t.Fatalf("expected valid patterns, got %v", err)
	}
	if err := ValidatePatterns([]string{"("}, nil); err == nil {
		t.Fatalf("expected error for invalid include")
	}
}
