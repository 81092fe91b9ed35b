package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/config"
)

// GroundingUnavailable is returned when the web answer API cannot be used.
const GroundingUnavailable = "Unable to retrieve information from web sources at this time."

const webAnswerLabel = "**Web Search Answer:**"

var ErrGroundingUnavailable = errors.New("grounding unavailable")

const groundingSystemPrompt = `You are a helpful AI assistant that provides accurate, well-researched answers using web sources.

CITATION REQUIREMENTS (MANDATORY):
1. Use numbered citations [1], [2], [3] immediately after each claim or fact.
   Multiple sources for one claim: [1][2].
2. Always end your response with a "Sources:" section with one line per source:
   [1] [Title or Domain Name](full_url)
3. Display text should be the website name or article title, 2-5 words.
4. Number citations sequentially and reuse a number when facts share a source.

Be factual and concise, and avoid speculation.`

// GroundingOptions configures a Grounding tool. A zero Timeout leaves the
// HTTP client without one.
type GroundingOptions struct {
	Endpoint string
	Model    string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client
	Logger   *zap.Logger
}

// GroundingOptionsFromConfig resolves the API key from the configured
// environment variable.
func GroundingOptionsFromConfig(cfg config.GroundingConfig) GroundingOptions {
	return GroundingOptions{
		Endpoint: cfg.Endpoint,
		Model:    cfg.Model,
		APIKey:   os.Getenv(cfg.APIKeyEnv),
		Timeout:  cfg.Timeout,
	}
}

// Grounding answers questions from the web through a Perplexity-compatible
// chat-completions API.
type Grounding struct {
	endpoint string
	model    string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

func NewGrounding(opts GroundingOptions) *Grounding {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Grounding{
		endpoint: opts.Endpoint,
		model:    opts.Model,
		apiKey:   opts.APIKey,
		client:   client,
		logger:   opts.Logger,
	}
}

func (g *Grounding) Name() string { return "grounding" }

func (g *Grounding) Description() string {
	return "Search the web for an answer with cited sources. " +
		"Only call this after rag has reported that no relevant documents were found."
}

// GroundingAnswer is a normalized web answer.
type GroundingAnswer struct {
	Answer  string `json:"answer"`
	Sources []Link `json:"sources"`
	Model   string `json:"model,omitempty"`
}

// Format renders the answer followed by numbered markdown sources.
func (a *GroundingAnswer) Format() string {
	var sb strings.Builder
	sb.WriteString(webAnswerLabel)
	sb.WriteString("\n\n")
	sb.WriteString(strings.TrimSpace(a.Answer))
	if len(a.Sources) > 0 {
		sb.WriteString("\n\n")
		sb.WriteString(sourcesLabel)
		for i, s := range a.Sources {
			fmt.Fprintf(&sb, "\n[%d] %s", i+1, s.Markdown())
		}
	}
	return sb.String()
}

type webRequest struct {
	Model       string       `json:"model"`
	Messages    []webMessage `json:"messages"`
	Temperature float64      `json:"temperature"`
	Stream      bool         `json:"stream"`
}

type webMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type webResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string   `json:"content"`
			Citations []string `json:"citations"`
		} `json:"message"`
	} `json:"choices"`
	Citations []string `json:"citations"`
}

// Answer calls the web answer API and normalizes its citations. Every
// failure wraps ErrGroundingUnavailable.
func (g *Grounding) Answer(ctx context.Context, query string) (*GroundingAnswer, error) {
	if g.apiKey == "" {
		return nil, fmt.Errorf("%w: API key not configured", ErrGroundingUnavailable)
	}

	body, err := json.Marshal(webRequest{
		Model: g.model,
		Messages: []webMessage{
			{Role: "system", Content: groundingSystemPrompt},
			{Role: "user", Content: query},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGroundingUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGroundingUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGroundingUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGroundingUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrGroundingUnavailable, resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed webResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed response: %v", ErrGroundingUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: response has no choices", ErrGroundingUnavailable)
	}

	content := parsed.Choices[0].Message.Content
	raw := parsed.Citations
	if len(raw) == 0 {
		raw = parsed.Choices[0].Message.Citations
	}

	answer := &GroundingAnswer{Model: parsed.Model}
	if body, sources, ok := SplitSources(content); ok {
		answer.Answer = body
		answer.Sources = sources
	} else {
		answer.Answer = strings.TrimSpace(content)
		answer.Sources = NormalizeCitations(raw)
	}
	return answer, nil
}

// Run is the tool entry point. It never fails: any problem yields
// GroundingUnavailable.
func (g *Grounding) Run(ctx context.Context, query string) (out string) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("grounding tool panic", zap.Any("panic", rec))
			out = GroundingUnavailable
		}
	}()

	g.logger.Info("grounding query", zap.String("query", query))
	answer, err := g.Answer(ctx, query)
	if err != nil {
		g.logger.Warn("grounding failed", zap.Error(err))
		return GroundingUnavailable
	}
	g.logger.Info("grounded answer received", zap.Int("sources", len(answer.Sources)))
	return answer.Format()
}

var (
	sourcesHeading = regexp.MustCompile(`(?im)^[ \t]*(?:#{1,6}[ \t]*)?(?:\*\*)?sources:?(?:\*\*)?:?[ \t]*$`)
	markdownLink   = regexp.MustCompile(`^\[([^\]]+)\]\((\S+)\)$`)
	listPrefix     = regexp.MustCompile(`^(?:[-*•][ \t]*)?(?:\[\d+\][ \t]*|\d+[.)][ \t]*)?`)
	urlPattern     = regexp.MustCompile(`https?://[^\s)\]]+`)
)

// SplitSources lifts a trailing sources section out of a response body.
// It reports false unless the section holds at least one markdown link.
func SplitSources(content string) (body string, sources []Link, ok bool) {
	locs := sourcesHeading.FindAllStringIndex(content, -1)
	if len(locs) == 0 {
		return "", nil, false
	}
	last := locs[len(locs)-1]
	tail := content[last[1]:]

	links := ExtractLinks(tail)
	if len(links) == 0 {
		return "", nil, false
	}
	return strings.TrimSpace(content[:last[0]]), links, true
}

// NormalizeCitations converts raw citations to links, dropping entries
// without a URL.
func NormalizeCitations(raw []string) []Link {
	var out []Link
	for _, c := range raw {
		if l, ok := NormalizeCitation(c); ok {
			out = append(out, l)
		}
	}
	return out
}

// NormalizeCitation recognizes, in order: a markdown link, "title|url",
// "title - url", a bare URL, and text containing a URL.
func NormalizeCitation(raw string) (Link, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimSpace(listPrefix.ReplaceAllString(s, ""))
	if s == "" {
		return Link{}, false
	}

	if m := markdownLink.FindStringSubmatch(s); m != nil {
		return Link{Title: strings.TrimSpace(m[1]), URL: m[2]}, true
	}

	if i := strings.LastIndex(s, "|"); i >= 0 {
		title, u := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
		if isURL(u) {
			return Link{Title: orDomain(title, u), URL: u}, true
		}
	}

	if i := strings.LastIndex(s, " - "); i >= 0 {
		title, u := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+3:])
		if isURL(u) {
			return Link{Title: orDomain(title, u), URL: u}, true
		}
	}

	if isURL(s) {
		return Link{Title: domainTitle(s), URL: s}, true
	}

	if u := urlPattern.FindString(s); u != "" {
		title := strings.Join(strings.Fields(strings.Replace(s, u, "", 1)), " ")
		title = strings.Trim(title, " -:|()[]")
		return Link{Title: orDomain(title, u), URL: u}, true
	}

	return Link{}, false
}

func isURL(s string) bool {
	return (strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")) &&
		!strings.ContainsAny(s, " \t\n")
}

func orDomain(title, u string) string {
	if title != "" {
		return title
	}
	return domainTitle(u)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
