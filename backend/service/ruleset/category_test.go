package ruleset

import (
	"testing"

	"lattice/backend/domain"
)

func TestCanonicalCategory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"geosite:netflix", "Netflix"},
		{"netflix-geosite", "Netflix"},
		{"geosite:category-games", "Games"},
		{"category-games-geosite", "Games"},
		{"geoip:cn", "Mainland China"},
		{"cn-geoip", "Mainland China"},
		{"geosite:geolocation-!cn", "Non-Mainland-China"},
		{"cn", "Mainland China"},
		{"my-custom-list", "my-custom"},
		{"ads", "ads"},
		{"a:b:c", "a:b:c"},
		{"geosite:", "geosite:"},
		{"-", "-"},
		{"", "unknown"},
		{"   ", "unknown"},
	}
	for _, tc := range cases {
		if got := CanonicalCategory(tc.in); got != tc.want {
			t.Fatalf("CanonicalCategory(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCanonicalCategory_ColonAndDashFormsAgree(t *testing.T) {
	t.Parallel()

	for _, category := range []string{"netflix", "openai", "category-ads-all", "some-unknown"} {
		colon := CanonicalCategory("geosite:" + category)
		dash := CanonicalCategory(category + "-geosite")
		if colon != dash {
			t.Fatalf("expected %q == %q for category %s", colon, dash, category)
		}
	}
}

func TestDedupKey(t *testing.T) {
	t.Parallel()

	if DedupKey("geosite:Netflix", domain.RuleSetGeoSite) != DedupKey("netflix-geosite", domain.RuleSetGeoSite) {
		t.Fatalf("expected same key for colon and dash forms")
	}
	if DedupKey("geosite:netflix", domain.RuleSetGeoSite) == DedupKey("geosite:netflix", domain.RuleSetGeoIP) {
		t.Fatalf("expected type to be part of the key")
	}
}
