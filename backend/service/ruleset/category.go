package ruleset

import (
	"strings"

	"lattice/backend/domain"
)

// unknownCategory 空标识符的兜底分类（保证结果非空）
const unknownCategory = "unknown"

// categoryLabels 已知分类的展示名称（键为小写分类名）
var categoryLabels = map[string]string{
	"cn":                         "Mainland China",
	"geolocation-cn":             "Mainland China",
	"geolocation-!cn":            "Non-Mainland-China",
	"private":                    "Private Network",
	"category-ads":               "Ads",
	"category-ads-all":           "Ads",
	"category-games":             "Games",
	"category-games@cn":          "Games (China)",
	"category-porn":              "Adult",
	"category-social-media-!cn":  "Social Media",
	"category-dev":               "Developer",
	"category-media":             "Streaming Media",
	"category-scholar-!cn":       "Scholar",
	"category-ai-chat-!cn":       "AI Chat",
	"category-communication":     "Communication",
	"category-entertainment":     "Entertainment",
	"category-container":         "Container Registry",
	"category-public-tracker":    "BitTorrent Trackers",
	"category-speedtest":         "Speedtest",
	"category-cryptocurrency":    "Cryptocurrency",
	"category-anticensorship":    "Anti-Censorship",
	"category-bank-cn":           "Banks (China)",
	"category-ecommerce":         "E-Commerce",
	"category-education-cn":      "Education (China)",
	"category-httpdns-cn":        "HTTPDNS (China)",
	"category-netdisk-cn":        "Cloud Storage (China)",
	"category-remote-control":    "Remote Control",
	"category-public-tracker-cn": "BitTorrent Trackers (China)",
	"telegram":                   "Telegram",
	"netflix":                    "Netflix",
	"google":                     "Google",
	"youtube":                    "YouTube",
	"apple":                      "Apple",
	"microsoft":                  "Microsoft",
	"openai":                     "OpenAI",
	"github":                     "GitHub",
	"twitter":                    "Twitter",
	"facebook":                   "Facebook",
	"spotify":                    "Spotify",
	"disney":                     "Disney+",
	"steam":                      "Steam",
	"bilibili":                   "Bilibili",
	"tiktok":                     "TikTok",
}

// CanonicalCategory 把规则集标识归一为分类展示名：
//   - 恰好一个冒号（type:category）时取冒号后的部分；
//   - 否则含有连字符时，去掉最后一段（视为类型后缀）；
//   - 否则为标识本身。
//
// 结果再经已知分类表映射，未知分类原样返回。结果总是非空。
func CanonicalCategory(identifier string) string {
	id := strings.TrimSpace(identifier)
	category := categoryOf(id)
	if label, ok := categoryLabels[strings.ToLower(category)]; ok {
		return label
	}
	if category != "" {
		return category
	}
	if id != "" {
		return id
	}
	return unknownCategory
}

func categoryOf(id string) string {
	if strings.Count(id, ":") == 1 {
		_, after, _ := strings.Cut(id, ":")
		return strings.TrimSpace(after)
	}
	if i := strings.LastIndex(id, "-"); i >= 0 {
		return strings.TrimSpace(id[:i])
	}
	return id
}

// DedupKey 合并/去重使用的键：分类名不区分大小写，再加上类型
func DedupKey(name string, t domain.RuleSetType) string {
	return strings.ToLower(CanonicalCategory(name)) + "|" + string(t)
}
