package compiler

import (
	"testing"

	"lattice/backend/domain"
)

func TestValidateDNS(t *testing.T) {
	t.Parallel()

	valid := []domain.DNSUpstream{
		{Address: "223.5.5.5", Transport: domain.DNSTransportUDP},
		{Address: "8.8.8.8:53", Transport: domain.DNSTransportTCP},
		{Address: "https://dns.google/dns-query", Transport: domain.DNSTransportDoH},
		{Address: "https://1.1.1.1:443/dns-query", Transport: domain.DNSTransportDoH},
	}
	for _, up := range valid {
		if _, err := ValidateDNS(domain.DNSSettings{Domestic: up, Foreign: up}); err != nil {
			t.Fatalf("expected %+v valid, got %v", up, err)
		}
	}

	invalid := []domain.DNSUpstream{
		{Address: "", Transport: domain.DNSTransportUDP},
		{Address: "dns.google", Transport: domain.DNSTransportUDP},
		{Address: "2001:4860:4860::8888", Transport: domain.DNSTransportUDP},
		{Address: "1.2.3.4:0", Transport: domain.DNSTransportTCP},
		{Address: "1.2.3", Transport: domain.DNSTransportTCP},
		{Address: "http://dns.google/dns-query", Transport: domain.DNSTransportDoH},
		{Address: "https://dns.google/resolve", Transport: domain.DNSTransportDoH},
		{Address: "https:///dns-query", Transport: domain.DNSTransportDoH},
		{Address: "223.5.5.5", Transport: domain.DNSTransportDoH},
		{Address: "223.5.5.5", Transport: "dot"},
	}
	good := domain.DNSUpstream{Address: "223.5.5.5", Transport: domain.DNSTransportUDP}
	for _, up := range invalid {
		if _, err := ValidateDNS(domain.DNSSettings{Domestic: up, Foreign: good}); err == nil {
			t.Fatalf("expected %+v invalid", up)
		}
	}
}

func TestValidateDNS_ClientSubnet(t *testing.T) {
	t.Parallel()

	up := domain.DNSUpstream{Address: "223.5.5.5", Transport: domain.DNSTransportUDP}
	cases := map[string]string{
		"1.2.3.4":       "1.2.3.0/24",
		"10.1.0.0/16":   "10.1.0.0/16",
		"2001:db8::1":   "2001:db8::/56",
		"2001:db8::/32": "2001:db8::/32",
	}
	for in, want := range cases {
		out, err := ValidateDNS(domain.DNSSettings{Domestic: up, Foreign: up, ClientSubnet: in})
		if err != nil {
			t.Fatalf("ClientSubnet %q: unexpected error %v", in, err)
		}
		if out.ClientSubnet != want {
			t.Fatalf("ClientSubnet %q: expected %q, got %q", in, want, out.ClientSubnet)
		}
	}

	if _, err := ValidateDNS(domain.DNSSettings{Domestic: up, Foreign: up, ClientSubnet: "not-an-ip"}); err == nil {
		t.Fatalf("expected invalid client subnet error")
	}
}
