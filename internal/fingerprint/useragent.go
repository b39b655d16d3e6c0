package fingerprint

import "regexp"

// Browser/OS/device classification. Regex sets belong in a compile-once
// registry with a named-variant tag: each pattern is compiled once at
// package init and tagged with the name it contributes to the parsed
// UAInfo.

type namedPattern struct {
	name string
	re   *regexp.Regexp
}

var browserPatterns = []namedPattern{
	{"Edge", regexp.MustCompile(`(?i)Edg(?:e|A|iOS)?/([\d.]+)`)},
	{"Opera", regexp.MustCompile(`(?i)OPR/([\d.]+)`)},
	{"Chrome", regexp.MustCompile(`(?i)Chrome/([\d.]+)`)},
	{"Firefox", regexp.MustCompile(`(?i)Firefox/([\d.]+)`)},
	{"Safari", regexp.MustCompile(`(?i)Version/([\d.]+).*Safari`)},
}

var osPatterns = []namedPattern{
	{"Windows", regexp.MustCompile(`(?i)Windows`)},
	{"macOS", regexp.MustCompile(`(?i)Mac OS X|Macintosh`)},
	{"Android", regexp.MustCompile(`(?i)Android`)},
	{"iOS", regexp.MustCompile(`(?i)iPhone|iPad|iPod`)},
	{"Linux", regexp.MustCompile(`(?i)Linux`)},
}

var botPattern = regexp.MustCompile(`(?i)bot|crawler|spider|scraper|headless|phantom|selenium|puppeteer|playwright|webdriver|` +
	`python-requests|python-urllib|curl|wget|go-http-client|okhttp|java/|libwww|apache-httpclient|axios|node-fetch|scrapy`)

var (
	mobilePattern = regexp.MustCompile(`(?i)Mobile`)
	tabletPattern = regexp.MustCompile(`(?i)Tablet|iPad`)
)

// UAInfo is the parsed result of a user-agent string.
type UAInfo struct {
	Browser      string
	MajorVersion int
	OS           string
	Device       string // "mobile" | "tablet" | "desktop"
	IsBot        bool
	Raw          string
}

// ParseUserAgent identifies browser+major version, OS, device class, and a
// bot flag from a raw User-Agent header value.
func ParseUserAgent(ua string) UAInfo {
	info := UAInfo{Browser: "unknown", OS: "unknown", Device: "desktop", Raw: ua}
	if ua == "" {
		return info
	}

	if botPattern.MatchString(ua) {
		info.IsBot = true
	}

	for _, p := range browserPatterns {
		if m := p.re.FindStringSubmatch(ua); m != nil {
			info.Browser = p.name
			info.MajorVersion = majorVersion(m[1])
			break
		}
	}

	for _, p := range osPatterns {
		if p.re.MatchString(ua) {
			info.OS = p.name
			break
		}
	}

	switch {
	case tabletPattern.MatchString(ua):
		info.Device = "tablet"
	case mobilePattern.MatchString(ua):
		info.Device = "mobile"
	default:
		info.Device = "desktop"
	}

	return info
}

func majorVersion(v string) int {
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			break
		}
		n = n*10 + int(c-'0')
	}
	return n
}
