package fetch

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"
)

const (
	posterResultSelector = ".ipc-metadata-list-summary-item__t"
	posterImageSelector  = "img.ipc-image"
)

var (
	yearMatcher      = regexp.MustCompile(`(?:^|\D)((?:19|20)\d{2})(?:\D|$)`)
	titleYearMatcher = regexp.MustCompile(`[(\[]?\b(?:19|20)\d{2}\b[)\]]?`)
)

type (
	posterCandidate struct {
		title      string
		href       string
		year       int
		similarity float64
	}

	// PosterSource finds poster artwork for a title by scraping a film
	// database search page, and then the page of the best matching result.
	PosterSource struct {
		config Config
		http   *httpClient
	}
)

func NewPosterSource(config Config) *PosterSource {
	return &PosterSource{config: config, http: newHTTPClient(config)}
}

// FindPoster returns the URL of the poster image for the title provided. When the
// title contains a year, results released in that year are preferred.
func (source *PosterSource) FindPoster(ctx context.Context, title string) (string, error) {
	year := ExtractYear(title)
	query := strings.Join(strings.Fields(titleYearMatcher.ReplaceAllString(title, "")), " ")

	body, err := source.http.getBody(ctx, fmt.Sprintf(source.config.PosterSearchURL, url.QueryEscape(query)))
	if err != nil {
		return "", err
	}

	candidates, err := parsePosterResults(body)
	if err != nil {
		return "", err
	}
	best := bestCandidate(candidates, query, year)
	if best == nil {
		return "", &NotFoundError{title}
	}

	page, err := source.http.getBody(ctx, source.resolve(best.href))
	if err != nil {
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page))
	if err != nil {
		return "", &MalformedResponseError{err.Error()}
	}

	src, ok := doc.Find(posterImageSelector).First().Attr("src")
	if !ok || src == "" {
		return "", &NotFoundError{title + " (poster image)"}
	}

	return source.resolve(src), nil
}

func (source *PosterSource) resolve(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}

	return strings.TrimSuffix(source.config.PosterBaseURL, "/") + "/" + strings.TrimPrefix(href, "/")
}

func parsePosterResults(body []byte) ([]posterCandidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &MalformedResponseError{err.Error()}
	}

	candidates := make([]posterCandidate, 0)
	doc.Find(posterResultSelector).Each(func(_ int, sel *goquery.Selection) {
		link := sel
		if !sel.Is("a") {
			link = sel.Find("a").First()
		}

		href, ok := link.Attr("href")
		if !ok {
			return
		}

		// The release year is rendered in the list item alongside the title
		container := sel.Closest("li")
		candidates = append(candidates, posterCandidate{
			title: strings.TrimSpace(link.Text()),
			href:  href,
			year:  ExtractYear(container.Text()),
		})
	})

	return candidates, nil
}

// bestCandidate ranks the candidates by similarity to the query, preferring
// candidates whose year matches when a year is known.
func bestCandidate(candidates []posterCandidate, query string, year int) *posterCandidate {
	if len(candidates) == 0 {
		return nil
	}

	metric := &metrics.Hamming{CaseSensitive: false}
	for i := range candidates {
		candidates[i].similarity = strutil.Similarity(candidates[i].title, query, metric)
		if year != 0 && candidates[i].year == year {
			candidates[i].similarity += 1
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].similarity > candidates[j].similarity })
	return &candidates[0]
}

// ExtractYear returns the first plausible year (1900-2099) found in the
// text, or zero if there is none.
func ExtractYear(text string) int {
	match := yearMatcher.FindStringSubmatch(text)
	if match == nil {
		return 0
	}

	v, _ := strconv.Atoi(match[1])
	return v
}
