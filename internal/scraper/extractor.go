package scraper

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
)

// ListingEntry is one raw product entry extracted from a bestseller page.
// Brand and ImageURL are optional enrichments; listing pages only carry the
// image, manual imports may supply both.
type ListingEntry struct {
	ASIN         string  `json:"asin"`
	Title        string  `json:"title"`
	Rank         int     `json:"rank"`
	Price        float64 `json:"price"`
	Rating       float64 `json:"rating"`
	ReviewsCount int     `json:"reviews_count"`
	Brand        string  `json:"brand,omitempty"`
	ImageURL     string  `json:"image_url,omitempty"`
}

// ListingResult carries the extracted entries plus the number of listing
// nodes matched. NodesFound == 0 signals a structural page change and is
// surfaced as data, not as an error.
type ListingResult struct {
	Entries    []ListingEntry
	NodesFound int
}

// UnknownTitle is the sentinel used when neither title selector yields text.
const UnknownTitle = "unknown title"

var (
	asinPattern  = regexp.MustCompile(`/dp/([A-Za-z0-9]{10})(?:[/?]|$)`)
	ratingLead   = regexp.MustCompile(`^([0-9]+(?:[.,][0-9]+)?)`)
	currencyRune = regexp.MustCompile(`[^\d.,\-]`)
)

// Listing node selectors: the primary matches the current faceout markup,
// the fallback the older grid markup.
const (
	listingNodeSelector         = "div.p13n-sc-uncoverable-faceout"
	listingNodeFallbackSelector = "div.zg-grid-general-faceout"
)

// ParseListing parses one bestseller listing document into ordered entries.
// Nodes without a resolvable product code are skipped; per-field extraction
// misses fall back to defined defaults and are logged, never fatal.
func ParseListing(r io.Reader) (*ListingResult, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse listing document: %w", err)
	}

	nodes := doc.Find(listingNodeSelector)
	if nodes.Length() == 0 {
		nodes = doc.Find(listingNodeFallbackSelector)
	}

	result := &ListingResult{NodesFound: nodes.Length()}
	nodes.Each(func(i int, node *goquery.Selection) {
		asin := extractASIN(node)
		if asin == "" {
			logrus.Warnf("Listing node %d has no parseable product link, skipping", i)
			return
		}

		title := firstText(node,
			"._cDEzb_p13n-sc-css-line-clamp-3_g3dy1",
			".p13n-sc-truncate")
		if title == "" {
			logrus.Warnf("No title found for %s, using placeholder", asin)
			title = UnknownTitle
		}

		rankText := firstText(node, ".zg-bdg-text", ".zg-badge-text")
		if rankText == "" {
			logrus.Warnf("No rank found for %s, defaulting to 0", asin)
		}

		priceText := firstText(node, "._cDEzb_p13n-sc-price_3mJ9Z", ".p13n-sc-price")
		if priceText == "" {
			logrus.Warnf("No price found for %s, defaulting to 0.00", asin)
		}

		ratingText := firstText(node, "i.a-icon-star-small span.a-icon-alt", "span.a-icon-alt")
		if ratingText == "" {
			logrus.Warnf("No rating found for %s, defaulting to 0.0", asin)
		}

		reviewsText := firstText(node, "span.a-size-small", "div.a-icon-row a.a-size-small")
		if reviewsText == "" {
			logrus.Warnf("No review count found for %s, defaulting to 0", asin)
		}

		result.Entries = append(result.Entries, ListingEntry{
			ASIN:         asin,
			Title:        title,
			Rank:         parseRank(rankText),
			Price:        parsePrice(priceText),
			Rating:       parseRating(ratingText),
			ReviewsCount: parseReviews(reviewsText),
			ImageURL:     node.Find("img").First().AttrOr("src", ""),
		})
	})

	return result, nil
}

// ParseFirstListedDate extracts the first-listed date from a product detail
// page. A missing or unparseable field returns nil; enrichment is optional.
func ParseFirstListedDate(r io.Reader) *time.Time {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil
	}

	raw := ""
	doc.Find("#detailBullets_feature_div li").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		label := strings.ToLower(strings.TrimSpace(sel.Find("span.a-text-bold").Text()))
		if !strings.Contains(label, "date first available") {
			return true
		}
		raw = strings.TrimSpace(sel.Find("span span").Last().Text())
		return false
	})

	if raw == "" {
		doc.Find("#productDetails_detailBullets_sections1 tr").EachWithBreak(func(i int, sel *goquery.Selection) bool {
			header := strings.ToLower(strings.TrimSpace(sel.Find("th").Text()))
			if !strings.Contains(header, "date first available") {
				return true
			}
			raw = strings.TrimSpace(sel.Find("td").Text())
			return false
		})
	}

	if raw == "" {
		return nil
	}

	parsed, err := time.Parse("January 2, 2006", normalizeSpace(raw))
	if err != nil {
		logrus.Warnf("Unparseable first-listed date %q", raw)
		return nil
	}
	return &parsed
}

func extractASIN(node *goquery.Selection) string {
	asin := ""
	node.Find("a[href]").EachWithBreak(func(i int, link *goquery.Selection) bool {
		href := link.AttrOr("href", "")
		if match := asinPattern.FindStringSubmatch(href); match != nil {
			asin = strings.ToUpper(match[1])
			return false
		}
		return true
	})
	return asin
}

// firstText returns the trimmed text of the primary selector, falling back
// to the secondary selector when the primary yields nothing.
func firstText(node *goquery.Selection, primary, fallback string) string {
	if text := normalizeSpace(node.Find(primary).First().Text()); text != "" {
		return text
	}
	return normalizeSpace(node.Find(fallback).First().Text())
}

// parseRank strips a leading '#' and thousands separators and parses the
// remainder as an integer. Anything non-numeric yields 0.
func parseRank(s string) int {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	s = strings.ReplaceAll(s, ",", "")
	rank, err := strconv.Atoi(s)
	if err != nil || rank < 0 {
		return 0
	}
	return rank
}

// parsePrice strips the currency symbol and thousands separators and parses
// a locale-aware decimal. When both '.' and ',' appear, the rightmost one is
// the decimal separator. Failure yields 0.00.
func parsePrice(s string) float64 {
	s = currencyRune.ReplaceAllString(strings.TrimSpace(s), "")
	if s == "" {
		return 0
	}

	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")
	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// A trailing comma with exactly two digits after it is a decimal
		// mark; any other comma separates thousands.
		if len(s)-lastComma-1 == 2 {
			s = s[:lastComma] + "." + s[lastComma+1:]
		}
		s = strings.ReplaceAll(s, ",", "")
	}

	price, err := strconv.ParseFloat(s, 64)
	if err != nil || price < 0 {
		return 0
	}
	return price
}

// parseRating extracts the leading float from free text such as
// "4.5 out of 5 stars". Failure yields 0.0.
func parseRating(s string) float64 {
	match := ratingLead.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return 0
	}
	rating, err := strconv.ParseFloat(strings.Replace(match[1], ",", ".", 1), 64)
	if err != nil {
		return 0
	}
	return rating
}

// parseReviews strips thousands separators and parses an integer.
// Failure yields 0.
func parseReviews(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	count, err := strconv.Atoi(s)
	if err != nil || count < 0 {
		return 0
	}
	return count
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(strings.TrimSpace(s)), " ")
}
