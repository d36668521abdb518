// Package parser splits a model response into a short title and the post body.
package parser

import (
	"encoding/json"
	"strings"
)

const (
	TitleMarker   = "TITULO_GERADO:"
	ContentMarker = "CONTEUDO_GERADO:"

	// DefaultTitle is used whenever no title can be recovered from the response.
	DefaultTitle = "Novo Post"
)

// Status tells the caller how the result was obtained.
type Status string

const (
	StatusStructured Status = "structured"
	StatusMarkers    Status = "markers"
	StatusFallback   Status = "fallback"
	StatusMalformed  Status = "malformed"
)

type Result struct {
	Title  string
	Body   string
	Status Status
}

// Ambiguous reports whether the title had to be defaulted.
func (r Result) Ambiguous() bool {
	return r.Status == StatusFallback || r.Status == StatusMalformed
}

// Parse applies the marker contract. Both markers must be present with the title marker
// first; anything else keeps raw as the body under DefaultTitle.
func Parse(raw string) Result {
	ti := strings.Index(raw, TitleMarker)
	ci := strings.Index(raw, ContentMarker)
	if ti < 0 || ci < 0 {
		return Result{Title: DefaultTitle, Body: raw, Status: StatusFallback}
	}
	if ti > ci {
		return Result{Title: DefaultTitle, Body: raw, Status: StatusMalformed}
	}

	header, body, _ := strings.Cut(raw, ContentMarker)
	_, header, _ = strings.Cut(header, TitleMarker)

	title := cleanTitle(header)
	if title == "" {
		title = DefaultTitle
	}
	return Result{Title: title, Body: strings.TrimSpace(body), Status: StatusMarkers}
}

type structuredPost struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ParseStructured decodes the {title, body} JSON requested through a response schema and
// falls back to Parse when the payload is not usable.
func ParseStructured(raw string) Result {
	payload := strings.TrimSpace(raw)
	payload = strings.TrimPrefix(payload, "```json")
	payload = strings.TrimPrefix(payload, "```")
	payload = strings.TrimSuffix(payload, "```")

	var p structuredPost
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &p); err != nil {
		return Parse(raw)
	}
	body := strings.TrimSpace(p.Body)
	if body == "" {
		return Parse(raw)
	}
	title := cleanTitle(p.Title)
	if title == "" {
		title = DefaultTitle
	}
	return Result{Title: title, Body: body, Status: StatusStructured}
}

func cleanTitle(s string) string {
	s = strings.ReplaceAll(s, "*", "")
	return strings.TrimSpace(s)
}
