// Package linkedin crawls the job board's guest search API. The guest
// surface needs no authentication: a search request returns an HTML fragment
// of job cards, and each card's numeric ID resolves to a detail fragment.
package linkedin

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/PuerkitoBio/goquery"

	"github.com/fairyhunter13/findajob/internal/domain"
	"github.com/fairyhunter13/findajob/pkg/textx"
)

const (
	defaultSearchURL = "https://www.linkedin.com/jobs-guest/jobs/api/seeMoreJobPostings/search"
	defaultJobURL    = "https://www.linkedin.com/jobs-guest/jobs/api/jobPosting/"

	// Guest endpoints only answer browser-looking requests.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; WOW64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/109.0.0.0 Safari/537.36"

	// Posted within the last 24 hours.
	timeFilter = "r86400"

	sourceName = "linkedin"

	defaultMaxJobs = 20

	// minDelay is the courtesy pause between consecutive requests to the
	// board. Never set below one second.
	minDelay = time.Second
)

// Config tunes the spider. Zero values fall back to the production endpoints
// and a 30s transport timeout.
type Config struct {
	HTTPClient *http.Client
	SearchURL  string
	JobURL     string
	Delay      time.Duration
}

// Spider implements domain.Crawler against the guest API.
type Spider struct {
	hc        *http.Client
	searchURL string
	jobURL    string
	delay     time.Duration
	fetched   bool
}

// New builds a Spider.
func New(cfg Config) *Spider {
	s := &Spider{
		hc:        cfg.HTTPClient,
		searchURL: cfg.SearchURL,
		jobURL:    cfg.JobURL,
		delay:     cfg.Delay,
	}
	if s.hc == nil {
		s.hc = &http.Client{Timeout: 30 * time.Second}
	}
	if s.searchURL == "" {
		s.searchURL = defaultSearchURL
	}
	if s.jobURL == "" {
		s.jobURL = defaultJobURL
	}
	if s.delay <= 0 {
		s.delay = minDelay
	}
	return s
}

// Crawl pages through the search results and emits one RawJob per unique job
// card, in discovery order, until maxJobs records are out or the board stops
// returning cards. Per-job extraction failures are logged and skipped; search
// failures abort the crawl.
func (s *Spider) Crawl(ctx domain.Context, cfg domain.SpiderConfig, emit func(domain.RawJob) error) error {
	maxJobs := cfg.MaxJobs
	if maxJobs < 0 {
		maxJobs = defaultMaxJobs
	}

	seen := make(map[string]struct{})
	emitted := 0
	offset := 0

	for emitted < maxJobs {
		ids, err := s.searchPage(ctx, cfg, offset)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			slog.Info("end of search results",
				slog.String("keywords", cfg.Keywords),
				slog.Int("emitted", emitted))
			return nil
		}
		offset += len(ids)

		for _, id := range ids {
			if emitted >= maxJobs {
				return nil
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			job, err := s.fetchJob(ctx, id)
			if err != nil {
				slog.Warn("job extraction failed, skipping",
					slog.String("job_id", id),
					slog.Any("error", err))
				continue
			}
			if job.JobID == "" || job.JobTitle == "" {
				slog.Warn("job missing critical fields, skipping", slog.String("job_id", id))
				continue
			}
			if err := emit(job); err != nil {
				return err
			}
			emitted++
		}
	}
	return nil
}

// searchPage fetches one page of job cards and returns the job IDs in page
// order. An empty page signals end-of-results.
func (s *Spider) searchPage(ctx domain.Context, cfg domain.SpiderConfig, offset int) ([]string, error) {
	params := url.Values{}
	params.Set("keywords", cfg.Keywords)
	params.Set("location", cfg.Location)
	params.Set("f_TPR", timeFilter)
	params.Set("f_E", strconv.Itoa(cfg.Seniority))
	params.Set("start", strconv.Itoa(offset))

	body, err := s.get(ctx, s.searchURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("%w: search page at offset %d: %v", domain.ErrCrawler, offset, err)
	}
	if strings.TrimSpace(string(body)) == "" {
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("%w: parse search page: %v", domain.ErrCrawler, err)
	}

	var ids []string
	doc.Find("div.base-card").Each(func(_ int, card *goquery.Selection) {
		urn, ok := card.Attr("data-entity-urn")
		if !ok {
			return
		}
		// data-entity-urn="urn:li:jobPosting:3544610012"
		parts := strings.Split(urn, ":")
		if id := parts[len(parts)-1]; id != "" {
			ids = append(ids, id)
		}
	})
	return ids, nil
}

// fetchJob pulls and parses one detail fragment.
func (s *Spider) fetchJob(ctx domain.Context, id string) (domain.RawJob, error) {
	body, err := s.get(ctx, s.jobURL+id)
	if err != nil {
		return domain.RawJob{}, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(body)))
	if err != nil {
		return domain.RawJob{}, err
	}
	return parseJob(id, doc), nil
}

func parseJob(id string, doc *goquery.Document) domain.RawJob {
	title := textx.Normalize(doc.Find("h2").First().Text())
	jobURL, _ := doc.Find("a.topcard__link").First().Attr("href")
	org := doc.Find("a.topcard__org-name-link").First()
	employerURL, _ := org.Attr("href")

	descHTML, _ := doc.Find("div.show-more-less-html__markup").First().Html()

	criteria := make([]string, 0, 4)
	doc.Find("li.description__job-criteria-item span.description__job-criteria-text").Each(func(_ int, sel *goquery.Selection) {
		criteria = append(criteria, sel.Text())
	})
	criterion := func(i int) string {
		if i < len(criteria) {
			return textx.OrNA(criteria[i])
		}
		return textx.NotAvailable
	}

	return domain.RawJob{
		JobID:          id,
		JobTitle:       title,
		JobURL:         textx.Normalize(jobURL),
		JobLocation:    textx.OrNA(doc.Find("span.topcard__flavor--bullet").First().Text()),
		Employer:       textx.OrNA(org.Text()),
		EmployerURL:    textx.Normalize(employerURL),
		JobDescription: strings.TrimSpace(textx.SanitizeText(descHTML)),
		SeniorityLevel: criterion(0),
		EmploymentType: criterion(1),
		JobFunction:    criterion(2),
		Industries:     criterion(3),
		Source:         sourceName,
	}
}

// get performs one GET with the courtesy delay and browser headers. At most
// one request is outstanding at a time per Spider.
func (s *Spider) get(ctx domain.Context, rawURL string) ([]byte, error) {
	if s.fetched {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	s.fetched = true

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

var _ domain.Crawler = (*Spider)(nil)
