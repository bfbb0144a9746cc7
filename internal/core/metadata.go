package core

import (
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/seckatie/arkive/internal/errors"
	"golang.org/x/net/idna"
)

// Metadata is the presentable description of a bookmarked URL.
type Metadata struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	Image         string `json:"image"`
	Favicon       string `json:"favicon"`
	Domain        string `json:"domain"`
	DominantColor string `json:"dominant_color"`
}

// Merge returns m with every non-empty field of override applied.
func (m Metadata) Merge(override Metadata) Metadata {
	if override.Title != "" {
		m.Title = override.Title
	}
	if override.Description != "" {
		m.Description = override.Description
	}
	if override.Image != "" {
		m.Image = override.Image
	}
	if override.Favicon != "" {
		m.Favicon = override.Favicon
	}
	if override.Domain != "" {
		m.Domain = override.Domain
	}
	if override.DominantColor != "" {
		m.DominantColor = override.DominantColor
	}
	return m
}

var knownTitles = map[string]string{
	"github.com":        "GitHub",
	"react.dev":         "React",
	"nextjs.org":        "Next.js",
	"vercel.com":        "Vercel",
	"google.com":        "Google",
	"youtube.com":       "YouTube",
	"twitter.com":       "Twitter",
	"facebook.com":      "Facebook",
	"linkedin.com":      "LinkedIn",
	"stackoverflow.com": "Stack Overflow",
	"medium.com":        "Medium",
	"dev.to":            "DEV Community",
	"reddit.com":        "Reddit",
	"npmjs.com":         "npm",
}

var knownDescriptions = map[string]string{
	"github.com":        "Code repository and development platform",
	"react.dev":         "JavaScript library for building user interfaces",
	"nextjs.org":        "The React Framework for Production",
	"vercel.com":        "Platform for frontend developers",
	"google.com":        "Search engine and online services",
	"youtube.com":       "Video sharing platform",
	"twitter.com":       "Social networking service",
	"linkedin.com":      "Professional networking platform",
	"stackoverflow.com": "Q&A platform for developers",
	"medium.com":        "Publishing platform for writers",
	"dev.to":            "Community for developers",
	"reddit.com":        "Social news and discussion website",
	"npmjs.com":         "Package registry for JavaScript",
}

// Normalize trims raw, adds an https scheme when none of http/https is
// present and checks that the result parses with a host. Scheme and host
// are lowercased; path, query and fragment are kept as typed.
func Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.InvalidURL("URL is required")
	}
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", errors.ErrInvalidURL.WithCause(err)
	}
	if u.Hostname() == "" {
		return "", errors.InvalidURL(fmt.Sprintf("invalid URL: missing host in %q", raw))
	}
	return lowerAuthority(s), nil
}

// lowerAuthority lowercases the scheme and host of s, which must start
// with "<scheme>://". Userinfo keeps its case.
func lowerAuthority(s string) string {
	sep := strings.Index(s, "://")
	scheme, rest := strings.ToLower(s[:sep]), s[sep+3:]
	end := strings.IndexAny(rest, "/?#")
	if end < 0 {
		end = len(rest)
	}
	authority := rest[:end]
	at := strings.LastIndex(authority, "@") + 1
	return scheme + "://" + authority[:at] + strings.ToLower(authority[at:]) + rest[end:]
}

// Deriver derives metadata using a configurable favicon service.
type Deriver struct {
	FaviconURL string
}

// DeriveMetadata derives metadata with the default favicon service.
func DeriveMetadata(rawURL string) Metadata {
	return Deriver{FaviconURL: DefaultFaviconURL}.Derive(rawURL)
}

// Derive builds metadata from the URL alone. It never fails: input that
// does not parse yields a neutral placeholder titled with the input.
func (d Deriver) Derive(rawURL string) Metadata {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return Metadata{
			Title:         rawURL,
			Domain:        UnknownDomain,
			DominantColor: NeutralColor,
		}
	}

	domain := Domain(u.Hostname())
	favicon := d.FaviconURL
	if favicon == "" {
		favicon = DefaultFaviconURL
	}
	return Metadata{
		Title:         deriveTitle(u, domain),
		Description:   deriveDescription(domain),
		Favicon:       fmt.Sprintf(favicon, url.QueryEscape(domain)),
		Domain:        domain,
		DominantColor: DominantColor(domain),
	}
}

// Domain lowercases host, converts it to its ASCII form and strips a
// leading "www.".
func Domain(host string) string {
	h := strings.ToLower(host)
	if ascii, err := idna.Lookup.ToASCII(h); err == nil && ascii != "" {
		h = ascii
	}
	return strings.TrimPrefix(h, "www.")
}

func deriveTitle(u *url.URL, domain string) string {
	last := lastSegment(u.Path)

	if label, ok := knownTitles[domain]; ok {
		if last != "" {
			if cleaned := cleanSegment(last); jsLength(cleaned) > 2 {
				return label + " - " + capitalize(cleaned)
			}
		}
		return label
	}

	if last != "" {
		if cleaned := cleanSegment(last); jsLength(cleaned) > 3 {
			return capitalize(cleaned)
		}
	}

	root, _, _ := strings.Cut(domain, ".")
	return capitalize(root)
}

func deriveDescription(domain string) string {
	if d, ok := knownDescriptions[domain]; ok {
		return d
	}
	return "Visit " + domain + " to learn more"
}

func lastSegment(path string) string {
	parts := strings.Split(path, "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

// cleanSegment drops a trailing file extension and turns dash and
// underscore separators into spaces.
func cleanSegment(seg string) string {
	if i := strings.LastIndex(seg, "."); i >= 0 && i < len(seg)-1 {
		seg = seg[:i]
	}
	return strings.NewReplacer("-", " ", "_", " ").Replace(seg)
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// jsLength counts UTF-16 code units.
func jsLength(s string) int {
	return len(utf16.Encode([]rune(s)))
}

// DominantColor maps domain to a stable HSL color. The hash walks UTF-16
// code units with hash = c + ((hash << 5) - hash), where the shift
// operates on the 32-bit two's complement value of hash, so every client
// computing the same recurrence agrees on the color.
func DominantColor(domain string) string {
	var hash int64
	for _, c := range utf16.Encode([]rune(domain)) {
		shifted := int64(int32(uint32(hash) << 5))
		hash = int64(c) + shifted - hash
	}
	hue := abs(hash % 360)
	sat := 65 + abs(hash%15)
	light := 55 + abs(hash%10)
	return fmt.Sprintf("hsl(%d, %d%%, %d%%)", hue, sat, light)
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
