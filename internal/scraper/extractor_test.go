package scraper

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingPage = `<html><body><div id="gridItemRoot">
<div class="p13n-sc-uncoverable-faceout">
  <a class="a-link-normal" href="/dp/B0GADGET01/ref=zg_bs_electronics"><span>link</span></a>
  <span class="zg-bdg-text">#1</span>
  <div class="_cDEzb_p13n-sc-css-line-clamp-3_g3dy1">Wireless Earbuds Pro</div>
  <span class="_cDEzb_p13n-sc-price_3mJ9Z">$29.99</span>
  <i class="a-icon-star-small"><span class="a-icon-alt">4.5 out of 5 stars</span></i>
  <span class="a-size-small">12,345</span>
  <img src="https://images.example.com/earbuds.jpg">
</div>
<div class="p13n-sc-uncoverable-faceout">
  <a class="a-link-normal" href="/dp/b0gadget02"><span>link</span></a>
  <span class="zg-badge-text">#2</span>
  <div class="p13n-sc-truncate">USB-C Charger</div>
  <span class="p13n-sc-price">$19.99</span>
  <span class="a-icon-alt">4.7 out of 5 stars</span>
  <span class="a-size-small">2,001</span>
</div>
<div class="p13n-sc-uncoverable-faceout">
  <a class="a-link-normal" href="/gp/help/customer"><span>no product link</span></a>
  <span class="zg-bdg-text">#3</span>
</div>
<div class="p13n-sc-uncoverable-faceout">
  <a class="a-link-normal" href="/dp/B0GADGET04"><span>link</span></a>
</div>
</div></body></html>`

const fallbackNodePage = `<html><body>
<div class="zg-grid-general-faceout">
  <a href="/dp/B0LEGACY01"><span>link</span></a>
  <span class="zg-badge-text">#7</span>
  <div class="p13n-sc-truncate">Legacy Layout Gadget</div>
</div>
</body></html>`

func TestParseListing(t *testing.T) {
	result, err := ParseListing(strings.NewReader(listingPage))
	require.NoError(t, err)

	assert.Equal(t, 4, result.NodesFound)
	// The node without a product link is skipped, the rest survive in order.
	require.Len(t, result.Entries, 3)

	first := result.Entries[0]
	assert.Equal(t, "B0GADGET01", first.ASIN)
	assert.Equal(t, "Wireless Earbuds Pro", first.Title)
	assert.Equal(t, 1, first.Rank)
	assert.InDelta(t, 29.99, first.Price, 0.001)
	assert.InDelta(t, 4.5, first.Rating, 0.001)
	assert.Equal(t, 12345, first.ReviewsCount)
	assert.Equal(t, "https://images.example.com/earbuds.jpg", first.ImageURL)

	second := result.Entries[1]
	assert.Equal(t, "B0GADGET02", second.ASIN, "product code is normalized to upper case")
	assert.Equal(t, "USB-C Charger", second.Title)
	assert.Equal(t, 2, second.Rank)
	assert.InDelta(t, 19.99, second.Price, 0.001)
	assert.InDelta(t, 4.7, second.Rating, 0.001)
	assert.Equal(t, 2001, second.ReviewsCount)
}

func TestParseListingDefaults(t *testing.T) {
	result, err := ParseListing(strings.NewReader(listingPage))
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)

	// The bare node only carries a product link; every other field falls
	// back to its default instead of failing the parse.
	bare := result.Entries[2]
	assert.Equal(t, "B0GADGET04", bare.ASIN)
	assert.Equal(t, UnknownTitle, bare.Title)
	assert.Equal(t, 0, bare.Rank)
	assert.Equal(t, 0.0, bare.Price)
	assert.Equal(t, 0.0, bare.Rating)
	assert.Equal(t, 0, bare.ReviewsCount)
	assert.Equal(t, "", bare.ImageURL)
}

func TestParseListingFallbackSelectors(t *testing.T) {
	result, err := ParseListing(strings.NewReader(fallbackNodePage))
	require.NoError(t, err)

	assert.Equal(t, 1, result.NodesFound)
	require.Len(t, result.Entries, 1)
	assert.Equal(t, "B0LEGACY01", result.Entries[0].ASIN)
	assert.Equal(t, "Legacy Layout Gadget", result.Entries[0].Title)
	assert.Equal(t, 7, result.Entries[0].Rank)
}

func TestParseListingNoNodes(t *testing.T) {
	result, err := ParseListing(strings.NewReader(`<html><body><div class="search-results"></div></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, 0, result.NodesFound)
	assert.Empty(t, result.Entries)
}

func TestParseRank(t *testing.T) {
	testCases := []struct {
		in       string
		expected int
	}{
		{"#3", 3},
		{"#1,024", 1024},
		{"17", 17},
		{" #8 ", 8},
		{"", 0},
		{"N/A", 0},
		{"#-5", 0},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, parseRank(tc.in), "input %q", tc.in)
	}
}

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		in       string
		expected float64
	}{
		{"$29.99", 29.99},
		{"$1,234.56", 1234.56},
		{"€1.234,56", 1234.56},
		{"19,99 €", 19.99},
		{"£1,234", 1234},
		{"", 0},
		{"See options", 0},
	}
	for _, tc := range testCases {
		assert.InDelta(t, tc.expected, parsePrice(tc.in), 0.001, "input %q", tc.in)
	}
}

func TestParseRating(t *testing.T) {
	testCases := []struct {
		in       string
		expected float64
	}{
		{"4.5 out of 5 stars", 4.5},
		{"4,7 von 5 Sternen", 4.7},
		{"5", 5},
		{"", 0},
		{"out of 5", 0},
	}
	for _, tc := range testCases {
		assert.InDelta(t, tc.expected, parseRating(tc.in), 0.001, "input %q", tc.in)
	}
}

func TestParseReviews(t *testing.T) {
	testCases := []struct {
		in       string
		expected int
	}{
		{"12,345", 12345},
		{"87", 87},
		{"", 0},
		{"no reviews", 0},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.expected, parseReviews(tc.in), "input %q", tc.in)
	}
}

func TestExtractASINPatterns(t *testing.T) {
	testCases := []struct {
		href     string
		expected string
	}{
		{"/dp/B0GADGET01/ref=zg_bs", "B0GADGET01"},
		{"/dp/B0GADGET01?th=1", "B0GADGET01"},
		{"/dp/B0GADGET01", "B0GADGET01"},
		{"/dp/b0gadget01", "B0GADGET01"},
		{"/dp/SHORT", ""},
		{"/dp/B0GADGET011", ""},
		{"/gp/help/customer", ""},
	}
	for _, tc := range testCases {
		html := `<div><a href="` + tc.href + `">x</a></div>`
		result, err := ParseListing(strings.NewReader(`<html><body><div class="p13n-sc-uncoverable-faceout">` + html + `</div></body></html>`))
		require.NoError(t, err)
		if tc.expected == "" {
			assert.Empty(t, result.Entries, "href %q", tc.href)
		} else {
			require.Len(t, result.Entries, 1, "href %q", tc.href)
			assert.Equal(t, tc.expected, result.Entries[0].ASIN, "href %q", tc.href)
		}
	}
}

func TestParseFirstListedDateBullets(t *testing.T) {
	page := `<html><body><div id="detailBullets_feature_div"><ul>
	<li><span class="a-list-item"><span class="a-text-bold">Package Dimensions :</span> <span>10 x 10 cm</span></span></li>
	<li><span class="a-list-item"><span class="a-text-bold">Date First Available :</span> <span>March 5, 2024</span></span></li>
	</ul></div></body></html>`

	listed := ParseFirstListedDate(strings.NewReader(page))
	require.NotNil(t, listed)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), listed.UTC())
}

func TestParseFirstListedDateTable(t *testing.T) {
	page := `<html><body><table id="productDetails_detailBullets_sections1">
	<tr><th>ASIN</th><td>B0GADGET01</td></tr>
	<tr><th>Date First Available</th><td> January 12, 2023 </td></tr>
	</table></body></html>`

	listed := ParseFirstListedDate(strings.NewReader(page))
	require.NotNil(t, listed)
	assert.Equal(t, time.Date(2023, 1, 12, 0, 0, 0, 0, time.UTC), listed.UTC())
}

func TestParseFirstListedDateMissingOrMalformed(t *testing.T) {
	assert.Nil(t, ParseFirstListedDate(strings.NewReader(`<html><body><p>nothing here</p></body></html>`)))

	malformed := `<html><body><div id="detailBullets_feature_div"><ul>
	<li><span class="a-list-item"><span class="a-text-bold">Date First Available :</span> <span>sometime in 2024</span></span></li>
	</ul></div></body></html>`
	assert.Nil(t, ParseFirstListedDate(strings.NewReader(malformed)))
}
