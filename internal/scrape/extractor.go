// Package scrape parses rendered CalCareers result pages: listing extraction,
// result-count banner parsing, and pagination window discovery. Everything
// here works on an HTML snapshot; no I/O.
package scrape

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"

	"github.com/calwatch/calwatch/internal/models"
)

var (
	jobControlPattern  = regexp.MustCompile(`(?i)JobControlId=(\d+)`)
	resultCountPattern = regexp.MustCompile(`(?i)([\d,]+)\s+job\(?s?\)?\s+found`)
)

// fieldLabels maps the labels rendered next to each listing to record fields.
// Declared once so label matching never scatters into ad-hoc string checks.
var fieldLabels = []struct {
	label  string
	assign func(r *models.JobRecord, value string)
}{
	{"Working Title:", func(r *models.JobRecord, v string) { r.WorkingTitle = v }},
	{"Department:", func(r *models.JobRecord, v string) { r.Department = v }},
	{"Location:", func(r *models.JobRecord, v string) { r.Location = v }},
	{"Salary Range:", func(r *models.JobRecord, v string) { r.SalaryRange = v }},
	{"Telework:", func(r *models.JobRecord, v string) { r.Telework = v }},
	{"Work Type/Schedule:", func(r *models.JobRecord, v string) { r.WorkTypeSchedule = v }},
	{"Publish Date:", func(r *models.JobRecord, v string) { r.PublishDate = v }},
	{"Filing Deadline:", func(r *models.JobRecord, v string) { r.FilingDeadline = v }},
}

// Extractor turns a result page's markup into structured job records.
type Extractor struct {
	maxAncestorHops int
	logger          arbor.ILogger
}

// NewExtractor creates an extractor. maxAncestorHops bounds the upward DOM
// walk from a detail anchor to its listing container.
func NewExtractor(maxAncestorHops int, logger arbor.ILogger) *Extractor {
	if maxAncestorHops <= 0 {
		maxAncestorHops = 10
	}
	return &Extractor{maxAncestorHops: maxAncestorHops, logger: logger}
}

// Extract returns the job records found on the page, at most one per job
// control. Records missing their listing container are still emitted with
// sentinel fields; only the job control identifier is mandatory.
func (e *Extractor) Extract(html string) ([]*models.JobRecord, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	var records []*models.JobRecord
	seen := make(map[string]struct{})

	doc.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		m := jobControlPattern.FindStringSubmatch(href)
		if m == nil {
			return
		}
		jobControl := m[1]
		if _, dup := seen[jobControl]; dup {
			return
		}
		seen[jobControl] = struct{}{}

		record := models.NewJobRecord(jobControl)
		record.JobPostingURL = href
		if title := strings.TrimSpace(anchor.Text()); title != "" {
			record.LinkTitle = title
		}

		if container := e.ancestorWithLabels(anchor); container != nil {
			extractContainerFields(container.Text(), record)
		} else {
			e.logger.Debug().
				Str("job_control", jobControl).
				Msg("No labeled container found for listing, emitting with defaults")
		}

		records = append(records, record)
	})

	return records, nil
}

// HasListings reports whether the page contains any job detail anchors. Used
// to probe whether a pager jump landed on real content.
func HasListings(html string) bool {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return false
	}
	found := false
	doc.Find("a[href]").EachWithBreak(func(_ int, anchor *goquery.Selection) bool {
		href, _ := anchor.Attr("href")
		if jobControlPattern.MatchString(href) {
			found = true
			return false
		}
		return true
	})
	return found
}

// ParseResultCount extracts the advertised total from the "N job(s) found"
// banner. Returns 0 when the banner is absent or unreadable; the caller
// treats that as coverage-unknown, not an error.
func ParseResultCount(pageText string) int {
	m := resultCountPattern.FindStringSubmatch(pageText)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(m[1], ",", ""))
	if err != nil {
		return 0
	}
	return n
}

// ancestorWithLabels walks up from the anchor until it finds a container whose
// text carries at least one known field label, bounded by maxAncestorHops.
func (e *Extractor) ancestorWithLabels(anchor *goquery.Selection) *goquery.Selection {
	node := anchor.Parent()
	for hop := 0; hop < e.maxAncestorHops && node.Length() > 0; hop++ {
		text := node.Text()
		for _, fl := range fieldLabels {
			if strings.Contains(text, fl.label) {
				return node
			}
		}
		node = node.Parent()
	}
	return nil
}

// extractContainerFields fills record fields from the container's text using
// label-anchored matching. A field's value runs from its label to the next
// known label or line break, preserved verbatim apart from edge whitespace.
func extractContainerFields(text string, record *models.JobRecord) {
	for _, fl := range fieldLabels {
		start := strings.Index(text, fl.label)
		if start < 0 {
			continue
		}
		rest := text[start+len(fl.label):]

		end := len(rest)
		if nl := strings.IndexByte(rest, '\n'); nl >= 0 && nl < end {
			end = nl
		}
		for _, other := range fieldLabels {
			if other.label == fl.label {
				continue
			}
			if idx := strings.Index(rest, other.label); idx >= 0 && idx < end {
				end = idx
			}
		}

		if value := strings.TrimSpace(rest[:end]); value != "" {
			fl.assign(record, value)
		}
	}
}
