package ruleset

import (
	"net/netip"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/miekg/dns"
	"golang.org/x/net/idna"

	"lattice/backend/domain"
	"lattice/backend/service/shared"
)

// sniffProtocols 协议规则可识别的嗅探协议
var sniffProtocols = map[string]struct{}{
	"http": {}, "tls": {}, "quic": {}, "stun": {}, "dns": {},
	"bittorrent": {}, "dtls": {}, "ssh": {}, "rdp": {},
}

// domainMatchers 域名条目允许的匹配前缀（无前缀视为后缀匹配）
var domainMatchers = []string{"full:", "domain:", "keyword:", "regexp:"}

var tagPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

var idnaProfile = idna.New(idna.MapForLookup(), idna.Transitional(true), idna.StrictDomainName(false))

// Normalize 校验规则集并返回归一化后的副本（域名转 punycode 小写、端口区间统一为 a-b）。
// 任何问题都汇总到 ValidationError 中。
func Normalize(rs domain.RuleSet) (domain.RuleSet, error) {
	var problems shared.Problems

	rs.Name = strings.TrimSpace(rs.Name)
	rs.Outbound = strings.TrimSpace(rs.Outbound)
	if rs.Name == "" {
		problems.Addf("name is required")
	}
	if !rs.Type.Valid() {
		problems.Addf("unknown rule set type %q", rs.Type)
		return domain.RuleSet{}, problems.Validation()
	}
	switch {
	case rs.Outbound == "":
		problems.Addf("outbound is required")
	case domain.IsBuiltinOutbound(rs.Outbound):
	case !tagPattern.MatchString(rs.Outbound):
		problems.Addf("outbound %q is not a valid node group tag", rs.Outbound)
	}

	switch src := rs.Source.(type) {
	case nil:
		if rs.Type.Remote() {
			problems.Addf("%s rule set requires a source url", rs.Type)
		}
	case domain.RemoteSource:
		if !rs.Type.Remote() {
			problems.Addf("%s rule set cannot use a remote source", rs.Type)
			break
		}
		u := strings.TrimSpace(src.URL)
		if err := validateSourceURL(u); err != "" {
			problems.Addf("source url: %s", err)
		}
		rs.Source = domain.RemoteSource{URL: u}
	case domain.InlineSource:
		if rs.Type.Remote() {
			problems.Addf("%s rule set requires exactly one source url, got %d entries", rs.Type, len(src.Entries))
			break
		}
		if rs.Type == domain.RuleSetIPIsPrivate {
			if len(src.Entries) > 0 {
				problems.Addf("ip_is_private rule set carries no entries")
			}
			rs.Source = nil
			break
		}
		rs.Source = domain.InlineSource{Entries: normalizeEntries(rs.Type, src.Entries, &problems)}
	default:
		problems.Addf("unsupported source %T", src)
	}

	if err := problems.Validation(); err != nil {
		return domain.RuleSet{}, err
	}
	return rs, nil
}

func validateSourceURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return err.Error()
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "scheme must be http or https"
	}
	if u.Host == "" {
		return "host is required"
	}
	return ""
}

func normalizeEntries(t domain.RuleSetType, entries []string, problems *shared.Problems) []string {
	out := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		var (
			norm string
			msg  string
		)
		switch t {
		case domain.RuleSetDomain:
			norm, msg = normalizeDomainEntry(entry)
		case domain.RuleSetIP:
			norm, msg = normalizeIPEntry(entry)
		case domain.RuleSetPort:
			norm, msg = normalizePortEntry(entry)
		case domain.RuleSetProtocol:
			norm = strings.ToLower(entry)
			if _, ok := sniffProtocols[norm]; !ok {
				msg = "unknown protocol"
			}
		}
		if msg != "" {
			problems.Addf("%s entry %q: %s", t, entry, msg)
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}

func normalizeDomainEntry(entry string) (string, string) {
	prefix := ""
	for _, m := range domainMatchers {
		if strings.HasPrefix(strings.ToLower(entry), m) {
			prefix = m
			entry = entry[len(m):]
			break
		}
	}
	switch prefix {
	case "keyword:":
		if entry == "" {
			return "", "empty keyword"
		}
		return prefix + strings.ToLower(entry), ""
	case "regexp:":
		if _, err := regexp.Compile(entry); err != nil {
			return "", err.Error()
		}
		return prefix + entry, ""
	}

	host := strings.TrimPrefix(strings.TrimPrefix(entry, "+."), ".")
	ascii, err := idnaProfile.ToASCII(host)
	if err != nil {
		return "", err.Error()
	}
	ascii = strings.ToLower(ascii)
	if _, ok := dns.IsDomainName(ascii); !ok || !strings.Contains(ascii, ".") && prefix != "full:" {
		return "", "not a domain name"
	}
	return prefix + ascii, ""
}

func normalizeIPEntry(entry string) (string, string) {
	if strings.Contains(entry, "/") {
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return "", err.Error()
		}
		return prefix.Masked().String(), ""
	}
	addr, err := netip.ParseAddr(entry)
	if err != nil {
		return "", err.Error()
	}
	return netip.PrefixFrom(addr, addr.BitLen()).String(), ""
}

func normalizePortEntry(entry string) (string, string) {
	lo, hi, isRange := strings.Cut(strings.ReplaceAll(entry, ":", "-"), "-")
	start, err := parsePort(lo)
	if err != "" {
		return "", err
	}
	if !isRange {
		return strconv.Itoa(start), ""
	}
	end, err := parsePort(hi)
	if err != "" {
		return "", err
	}
	if start > end {
		return "", "range start greater than end"
	}
	return strconv.Itoa(start) + "-" + strconv.Itoa(end), ""
}

func parsePort(s string) (int, string) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, "port must be a number"
	}
	if n < 0 || n > 65535 {
		return 0, "port out of range"
	}
	return n, ""
}
