package playlist

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// DefaultHTTPSProxy is the indirection endpoint plain-http URLs are routed
// through so that browsers never fetch mixed content.
const DefaultHTTPSProxy = "https://proxy.catalog-sync.app/?url="

const maxLineSize = 1024 * 1024

var (
	tvgIDRegex      = regexp.MustCompile(`tvg-id="([^"]*)"`)
	tvgNameRegex    = regexp.MustCompile(`tvg-name="([^"]*)"`)
	tvgLogoRegex    = regexp.MustCompile(`tvg-logo="([^"]*)"`)
	groupTitleRegex = regexp.MustCompile(`group-title="([^"]*)"`)
	attrRegex       = regexp.MustCompile(`[A-Za-z0-9_-]+="[^"]*"`)
)

// Parser turns M3U text into classified entries.
// A Parser holds no per-parse state and may be shared.
type Parser struct {
	proxy  string
	logger *slog.Logger
}

// NewParser creates a parser. proxy is the prefix plain-http URLs are
// rewritten to; an empty proxy disables rewriting.
func NewParser(proxy string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{proxy: proxy, logger: logger}
}

// ParseString parses a whole playlist held in memory.
func (p *Parser) ParseString(text string) ([]*Entry, error) {
	return p.Parse(strings.NewReader(text))
}

// Parse reads a playlist and returns one entry per #EXTINF line that is
// followed by a valid http(s) URL. Malformed entries are skipped and logged;
// only read failures are returned as errors.
func (p *Parser) Parse(r io.Reader) ([]*Entry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var (
		entries []*Entry
		pending *Entry
		lineNum int
	)

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXTINF") {
			if pending != nil {
				p.logger.Debug("discarding entry without url", "line", lineNum-1, "title", pending.Title)
			}
			pending = p.parseExtinf(line)
			continue
		}

		if strings.HasPrefix(line, "#") || pending == nil {
			continue
		}

		if !hasHTTPScheme(line) {
			continue
		}

		if err := validateStreamURL(line); err != nil {
			p.logger.Warn("skipping playlist entry", "line", lineNum, "title", pending.Title, "error", err)
			pending = nil
			continue
		}

		pending.URL = p.secure(line)
		pending.Type = Classify(pending.Title, pending.GroupTitle)
		entries = append(entries, pending)
		pending = nil
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read playlist: %w", err)
	}

	if entries == nil {
		entries = []*Entry{}
	}
	return entries, nil
}

// parseExtinf builds a pending entry from an #EXTINF directive.
func (p *Parser) parseExtinf(line string) *Entry {
	e := NewEntry(extractTitle(line), "")
	e.TvgID = extractAttr(tvgIDRegex, line)
	e.TvgName = extractAttr(tvgNameRegex, line)
	e.GroupTitle = extractAttr(groupTitleRegex, line)
	if logo := extractAttr(tvgLogoRegex, line); logo != "" {
		e.TvgLogo = p.secure(logo)
	}
	return e
}

// secure routes plain-http URLs through the HTTPS proxy.
func (p *Parser) secure(raw string) string {
	if p.proxy == "" || !strings.HasPrefix(strings.ToLower(raw), "http://") {
		return raw
	}
	return p.proxy + url.QueryEscape(raw)
}

func extractAttr(re *regexp.Regexp, line string) string {
	matches := re.FindStringSubmatch(line)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

// extractTitle returns the text after the first unquoted comma that follows
// the last key="value" attribute. Both "#EXTINF:-1 attrs,Title" and
// "#EXTINF:-1,attrs ,Title" yield Title.
func extractTitle(line string) string {
	start := 0
	if attrs := attrRegex.FindAllStringIndex(line, -1); len(attrs) > 0 {
		start = attrs[len(attrs)-1][1]
	}
	inQuotes := false
	for i := start; i < len(line); i++ {
		switch line[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				return strings.TrimSpace(line[i+1:])
			}
		}
	}
	return ""
}

func hasHTTPScheme(line string) bool {
	lower := strings.ToLower(line)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func validateStreamURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStreamURL, err)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidStreamURL)
	}
	return nil
}
