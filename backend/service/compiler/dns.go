package compiler

import (
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strconv"
	"strings"

	"github.com/miekg/dns"

	"lattice/backend/domain"
	"lattice/backend/service/shared"
)

const dohPathSuffix = "/dns-query"

// CompiledDNS 校验后的 DNS 设置
type CompiledDNS struct {
	Domestic     CompiledUpstream `json:"domestic" yaml:"domestic"`
	Foreign      CompiledUpstream `json:"foreign" yaml:"foreign"`
	ClientSubnet string           `json:"clientSubnet,omitempty" yaml:"clientSubnet,omitempty"`
}

type CompiledUpstream struct {
	Transport domain.DNSTransport `json:"transport" yaml:"transport"`
	Address   string              `json:"address" yaml:"address"`
}

// ValidateDNS 校验 DNS 设置：udp/tcp 为点分 IPv4（可带端口），doh 为 https://.../dns-query。
// ClientSubnet 可选，必须能编码为 EDNS0 client-subnet 选项。
func ValidateDNS(settings domain.DNSSettings) (CompiledDNS, error) {
	var problems shared.Problems
	out := CompiledDNS{
		Domestic: validateUpstream("domestic", settings.Domestic, &problems),
		Foreign:  validateUpstream("foreign", settings.Foreign, &problems),
	}
	if subnet := strings.TrimSpace(settings.ClientSubnet); subnet != "" {
		normalized, err := normalizeClientSubnet(subnet)
		if err != nil {
			problems.Addf("dns client subnet %q: %v", subnet, err)
		}
		out.ClientSubnet = normalized
	}
	if err := problems.Validation(); err != nil {
		return CompiledDNS{}, err
	}
	return out, nil
}

func validateUpstream(name string, up domain.DNSUpstream, problems *shared.Problems) CompiledUpstream {
	addr := strings.TrimSpace(up.Address)
	out := CompiledUpstream{Transport: up.Transport, Address: addr}
	switch up.Transport {
	case domain.DNSTransportUDP, domain.DNSTransportTCP:
		normalized, err := normalizePlainAddress(addr)
		if err != nil {
			problems.Addf("dns %s upstream %q (%s): %v", name, addr, up.Transport, err)
			return out
		}
		out.Address = normalized
	case domain.DNSTransportDoH:
		if err := validateDoHAddress(addr); err != nil {
			problems.Addf("dns %s upstream %q (doh): %v", name, addr, err)
		}
	default:
		problems.Addf("dns %s upstream: unknown transport %q", name, up.Transport)
	}
	return out
}

// normalizePlainAddress 接受 a.b.c.d 或 a.b.c.d:port
func normalizePlainAddress(addr string) (string, error) {
	if addr == "" {
		return "", fmt.Errorf("address is required")
	}
	host, port := addr, ""
	if strings.Contains(addr, ":") {
		h, p, err := net.SplitHostPort(addr)
		if err != nil {
			return "", err
		}
		host, port = h, p
	}
	ip, err := netip.ParseAddr(host)
	if err != nil || !ip.Is4() {
		return "", fmt.Errorf("expected dotted-quad IPv4 address")
	}
	if port == "" {
		return ip.String(), nil
	}
	n, err := strconv.Atoi(port)
	if err != nil || n < 1 || n > 65535 {
		return "", fmt.Errorf("invalid port %q", port)
	}
	return net.JoinHostPort(ip.String(), strconv.Itoa(n)), nil
}

func validateDoHAddress(addr string) error {
	u, err := url.Parse(addr)
	if err != nil {
		return err
	}
	if u.Scheme != "https" {
		return fmt.Errorf("scheme must be https")
	}
	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("host is required")
	}
	if _, err := netip.ParseAddr(host); err != nil {
		if _, ok := dns.IsDomainName(host); !ok {
			return fmt.Errorf("invalid host %q", host)
		}
	}
	if !strings.HasSuffix(u.Path, dohPathSuffix) {
		return fmt.Errorf("path must end with %s", dohPathSuffix)
	}
	return nil
}

// normalizeClientSubnet 构造 EDNS0_SUBNET 并打包，确保下游可以直接使用
func normalizeClientSubnet(raw string) (string, error) {
	var prefix netip.Prefix
	if strings.Contains(raw, "/") {
		p, err := netip.ParsePrefix(raw)
		if err != nil {
			return "", err
		}
		prefix = p.Masked()
	} else {
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return "", err
		}
		bits := 24
		if addr.Is6() {
			bits = 56
		}
		prefix, err = addr.Prefix(bits)
		if err != nil {
			return "", err
		}
	}

	opt := &dns.EDNS0_SUBNET{
		Code:          dns.EDNS0SUBNET,
		SourceNetmask: uint8(prefix.Bits()),
		Address:       net.IP(prefix.Addr().AsSlice()),
	}
	if prefix.Addr().Is4() {
		opt.Family = 1
	} else {
		opt.Family = 2
	}
	// 选项本身不导出打包方法，放进 OPT 记录随报文一起编码校验
	msg := new(dns.Msg)
	msg.Extra = append(msg.Extra, &dns.OPT{
		Hdr:    dns.RR_Header{Name: ".", Rrtype: dns.TypeOPT},
		Option: []dns.EDNS0{opt},
	})
	if _, err := msg.Pack(); err != nil {
		return "", err
	}
	return prefix.String(), nil
}
