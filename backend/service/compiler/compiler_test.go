package compiler

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"lattice/backend/domain"
	"lattice/backend/repository"
)

var t0 = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func baseInput() Input {
	return Input{
		Nodes: []domain.Node{
			{ID: "hk1", Name: "HK-01", Health: domain.HealthSample{Status: domain.HealthOnline, LatencyMS: domain.LatencyPtr(80), CheckedAt: t0}},
			{ID: "hk2", Name: "HK-02", Health: domain.HealthSample{Status: domain.HealthOnline, LatencyMS: domain.LatencyPtr(40), CheckedAt: t0}},
			{ID: "sg1", Name: "SG-01", Health: domain.HealthSample{Status: domain.HealthOnline, LatencyMS: domain.LatencyPtr(10), CheckedAt: t0}},
		},
		Groups: []domain.NodeGroup{
			{ID: "g-hk", Tag: "hk", Name: "Hong Kong", Mode: domain.NodeGroupModeURLTest, IncludePatterns: []string{"HK|Hong"}, Active: true},
			{ID: "g-jp", Tag: "jp", Name: "Japan", Mode: domain.NodeGroupModeSelect, IncludePatterns: []string{"JP"}, Active: true},
			{ID: "g-old", Tag: "legacy", Name: "Legacy", Mode: domain.NodeGroupModeSelect, Active: false},
		},
		RuleSets: []domain.RuleSet{
			{ID: "r-netflix", Name: "geosite:netflix", Type: domain.RuleSetGeoSite, Outbound: "hk", Enabled: true,
				Source: domain.RemoteSource{URL: "https://example.com/netflix.srs"}, UpdatedAt: t0},
			{ID: "r-lan", Name: "lan", Type: domain.RuleSetIPIsPrivate, Outbound: domain.OutboundDirect, Enabled: true, UpdatedAt: t0},
			{ID: "r-off", Name: "disabled", Type: domain.RuleSetDomain, Outbound: "missing-but-disabled", Enabled: false,
				Source: domain.InlineSource{Entries: []string{"example.org"}}, UpdatedAt: t0},
		},
		DNS: domain.DNSSettings{
			Domestic: domain.DNSUpstream{Address: "223.5.5.5", Transport: domain.DNSTransportUDP},
			Foreign:  domain.DNSUpstream{Address: "https://1.1.1.1/dns-query", Transport: domain.DNSTransportDoH},
		},
		InboundMode: domain.InboundMixed,
	}
}

func TestCompile_HappyPath(t *testing.T) {
	t.Parallel()

	cfg, err := Compile(baseInput())
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(cfg.Groups) != 2 {
		t.Fatalf("expected only active groups, got %+v", cfg.Groups)
	}
	hk, ok := cfg.Group("hk")
	if !ok || hk.Preferred != "hk2" || len(hk.Members) != 2 {
		t.Fatalf("unexpected hk group: %+v", hk)
	}
	if len(cfg.Rules) != 2 || cfg.Rules[0].ID != "r-netflix" || cfg.Rules[1].ID != "r-lan" {
		t.Fatalf("expected enabled rules in input order, got %+v", cfg.Rules)
	}
	if cfg.Rules[0].Category != "Netflix" {
		t.Fatalf("expected canonical category, got %q", cfg.Rules[0].Category)
	}
	if len(cfg.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %+v", cfg.Warnings)
	}
	if len(cfg.Fingerprint) != 64 {
		t.Fatalf("expected sha256 fingerprint, got %q", cfg.Fingerprint)
	}
	if !strings.Contains(cfg.Explain(), "rules=2") {
		t.Fatalf("unexpected explain output: %s", cfg.Explain())
	}
}

func TestCompile_MissingTagIsReferenceError(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.RuleSets = append(in.RuleSets, domain.RuleSet{
		ID: "r-missing", Name: "geosite:openai", Type: domain.RuleSetGeoSite, Outbound: "missing-tag", Enabled: true,
		Source: domain.RemoteSource{URL: "https://example.com/openai.srs"},
	})

	cfg, err := Compile(in)
	if cfg != nil {
		t.Fatalf("expected no config on reference error")
	}
	var ref *ReferenceError
	if !errors.As(err, &ref) {
		t.Fatalf("expected ReferenceError, got %v", err)
	}
	if !errors.Is(err, repository.ErrReference) {
		t.Fatalf("expected ErrReference in chain")
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		t.Fatalf("expected no ValidationError, got %v", verr)
	}
}

func TestCompile_InactiveGroupReferenceIsFatal(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.RuleSets[1].Outbound = "legacy"

	_, err := Compile(in)
	var ref *ReferenceError
	if !errors.As(err, &ref) || !strings.Contains(ref.Error(), "not active") {
		t.Fatalf("expected ReferenceError for inactive group, got %v", err)
	}
}

func TestCompile_DedupKeepsMostRecent(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.RuleSets = []domain.RuleSet{
		{ID: "old", Name: "geosite:netflix", Type: domain.RuleSetGeoSite, Outbound: "hk", Enabled: true,
			Source: domain.RemoteSource{URL: "https://example.com/a.srs"}, UpdatedAt: t0},
		{ID: "new", Name: "netflix-geosite", Type: domain.RuleSetGeoSite, Outbound: domain.OutboundProxySelect, Enabled: true,
			Source: domain.RemoteSource{URL: "https://example.com/b.srs"}, UpdatedAt: t0.Add(time.Hour)},
		{ID: "ip", Name: "geoip:netflix", Type: domain.RuleSetGeoIP, Outbound: "hk", Enabled: true,
			Source: domain.RemoteSource{URL: "https://example.com/c.srs"}, UpdatedAt: t0},
	}

	cfg, err := Compile(in)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(cfg.Rules) != 2 || cfg.Rules[0].ID != "new" || cfg.Rules[1].ID != "ip" {
		t.Fatalf("expected [new ip], got %+v", cfg.Rules)
	}
	if len(cfg.Warnings) != 1 || cfg.Warnings[0].Kind != WarningDedup || cfg.Warnings[0].Subject != "old" {
		t.Fatalf("expected one dedup warning for old, got %+v", cfg.Warnings)
	}
}

func TestCompile_DedupTieKeepsFirst(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.RuleSets = []domain.RuleSet{
		{ID: "first", Name: "geosite:netflix", Type: domain.RuleSetGeoSite, Outbound: "hk", Enabled: true,
			Source: domain.RemoteSource{URL: "https://example.com/a.srs"}, UpdatedAt: t0},
		{ID: "second", Name: "netflix-geosite", Type: domain.RuleSetGeoSite, Outbound: "hk", Enabled: true,
			Source: domain.RemoteSource{URL: "https://example.com/b.srs"}, UpdatedAt: t0},
	}
	cfg, err := Compile(in)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(cfg.Rules) != 1 || cfg.Rules[0].ID != "first" {
		t.Fatalf("expected first kept on tie, got %+v", cfg.Rules)
	}
}

func TestCompile_EmptyGroupWarning(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.RuleSets[0].Outbound = "jp"

	cfg, err := Compile(in)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	if len(cfg.Warnings) != 1 || cfg.Warnings[0].Kind != WarningResolution || cfg.Warnings[0].Subject != "r-netflix" {
		t.Fatalf("expected resolution warning, got %+v", cfg.Warnings)
	}
}

func TestCompile_ValidationErrors(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.Groups[1].IncludePatterns = []string{"JP("}
	in.DNS.Domestic = domain.DNSUpstream{Address: "https://dns.alidns.com/dns-query", Transport: domain.DNSTransportUDP}
	in.InboundMode = "wireguard"
	in.RuleSets[0].Outbound = "missing-tag"

	cfg, err := Compile(in)
	if cfg != nil {
		t.Fatalf("expected no config")
	}
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 3 {
		t.Fatalf("expected 3 problems (regex, dns, inbound), got %v", verr.Problems)
	}
	var ref *ReferenceError
	if !errors.As(err, &ref) {
		t.Fatalf("expected ReferenceError joined as well, got %v", err)
	}
}

func TestCompile_Deterministic(t *testing.T) {
	t.Parallel()

	in := baseInput()
	in.DNS.ClientSubnet = "114.114.114.7"
	a, err := Compile(in)
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	b, err := Compile(baseInputWithSubnet("114.114.114.7"))
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if !bytes.Equal(ja, jb) {
		t.Fatalf("expected byte-identical output:\n%s\n%s", ja, jb)
	}
	if a.DNS.ClientSubnet != "114.114.114.0/24" {
		t.Fatalf("expected normalized client subnet, got %q", a.DNS.ClientSubnet)
	}
}

func TestCompile_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	in := baseInput()
	before, _ := json.Marshal(in)
	if _, err := Compile(in); err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	after, _ := json.Marshal(in)
	if !bytes.Equal(before, after) {
		t.Fatalf("expected input unchanged")
	}
}

func baseInputWithSubnet(subnet string) Input {
	in := baseInput()
	in.DNS.ClientSubnet = subnet
	return in
}
