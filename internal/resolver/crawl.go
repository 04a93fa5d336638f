package resolver

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/medcode-cli/internal/knowledge"
	"github.com/sells-group/medcode-cli/internal/resilience"
	"github.com/sells-group/medcode-cli/pkg/jina"
)

// Crawl resolves CPT codes by reading a public code page through the Jina
// reader and pulling the descriptor out of the markdown. When the page has no
// recognizable descriptor it falls back to a web search. Pacing is applied
// by the cache and spaces whole Fetch calls: the read and the search inside
// one Fetch go out back to back.
type Crawl struct {
	client      jina.Client
	urlTemplate string
	searchSite  string
	guard       *resilience.Guard
}

// NewCrawl creates a crawl resolver. urlTemplate holds one %s for the code.
// searchSite restricts the fallback search and may be empty.
func NewCrawl(client jina.Client, urlTemplate, searchSite string, guard *resilience.Guard) *Crawl {
	return &Crawl{client: client, urlTemplate: urlTemplate, searchSite: searchSite, guard: guard}
}

// Descriptions shorter than this are headings or navigation, not prose.
const minDescriptionLen = 12

// Fetch implements knowledge.Resolver.
func (r *Crawl) Fetch(ctx context.Context, code string) (string, error) {
	match := newDescriptorMatcher(code)
	pageURL := fmt.Sprintf(r.urlTemplate, code)
	page, err := call(ctx, r.guard, "read", func(ctx context.Context) (*jina.ReadResponse, error) {
		return r.client.Read(ctx, pageURL)
	})
	if err == nil {
		if desc, ok := match.extract(page.Data.Content); ok {
			return desc, nil
		}
		zap.L().Debug("resolver: no descriptor on page, trying search",
			zap.String("code", code), zap.String("url", pageURL))
	} else {
		zap.L().Warn("resolver: page read failed, trying search",
			zap.String("code", code), zap.Error(err))
	}

	var opts []jina.SearchOption
	if r.searchSite != "" {
		opts = append(opts, jina.WithSiteFilter(r.searchSite))
	}
	results, serr := call(ctx, r.guard, "search", func(ctx context.Context) (*jina.SearchResponse, error) {
		return r.client.Search(ctx, "CPT code "+code+" description", opts...)
	})
	if serr != nil {
		if err != nil {
			return "", eris.Wrapf(errors.Join(err, serr), "resolver: crawl %s", code)
		}
		return "", eris.Wrapf(serr, "resolver: crawl search %s", code)
	}
	for _, hit := range results.Data {
		for _, text := range []string{hit.Description, hit.Content, hit.Title} {
			if desc, ok := match.extract(text); ok {
				return desc, nil
			}
		}
	}
	return "", eris.Wrapf(knowledge.ErrNotFound, "resolver: no descriptor found for CPT %s", code)
}

func call[T any](ctx context.Context, g *resilience.Guard, op string, fn func(context.Context) (T, error)) (T, error) {
	wrapped := func(ctx context.Context) (T, error) {
		v, err := fn(ctx)
		var apiErr *jina.APIError
		if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
			return v, resilience.NewTransientError(err, apiErr.StatusCode)
		}
		return v, err
	}
	if g == nil {
		return wrapped(ctx)
	}
	return resilience.Call(ctx, g, "jina", op, wrapped)
}

var (
	// "Description: ..." or "Official descriptor: ..." on one line, or the
	// label on its own line followed by the text.
	labeledDesc  = regexp.MustCompile(`(?im)^\W*(?:official\s+|long\s+)?descript(?:ion|or)s?\W*?:?\s*\n?\s*([^\n#|]{12,400})`)
	markdownLink = regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`)
	emphasis     = regexp.MustCompile(`[*_` + "`" + `]+`)
)

// ExtractDescription pulls a descriptor for code out of page text. It looks
// for a line that starts with the code followed by a separator and prose,
// then for a labeled description field. Returns false when neither is
// present.
func ExtractDescription(text, code string) (string, bool) {
	return newDescriptorMatcher(code).extract(text)
}

// descriptorMatcher holds the code-line pattern for one code so it is
// compiled once per Fetch rather than once per candidate text.
type descriptorMatcher struct {
	code     string
	codeLine *regexp.Regexp
}

func newDescriptorMatcher(code string) descriptorMatcher {
	return descriptorMatcher{
		code:     code,
		codeLine: regexp.MustCompile(`(?m)^[#>\-\s]*(?i:cpt\W*(?:code)?\s*)?` + regexp.QuoteMeta(code) + `\s*[:\-–—,|]\s*([^\n|]+)`),
	}
}

func (d descriptorMatcher) extract(text string) (string, bool) {
	text = markdownLink.ReplaceAllString(text, "$1")
	text = emphasis.ReplaceAllString(text, "")

	if m := d.codeLine.FindStringSubmatch(text); m != nil {
		if desc := clean(m[1]); len(desc) >= minDescriptionLen {
			return desc, true
		}
	}
	if !strings.Contains(text, d.code) {
		return "", false
	}
	if m := labeledDesc.FindStringSubmatch(text); m != nil {
		if desc := clean(m[1]); len(desc) >= minDescriptionLen {
			return desc, true
		}
	}
	return "", false
}

func clean(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimRight(s, " .;")
}
