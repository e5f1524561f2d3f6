package scraper

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"time"

	"rankpulse/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

// defaultUserAgents is a fixed pool of realistic client identity strings.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
}

// ThrottlePolicy selects a request identity and a courtesy delay before each
// outbound request. The random source and sleep function are injectable so
// the policy stays deterministic under test. The delay is a fixed per-request
// courtesy pause, not an adaptive backoff.
type ThrottlePolicy struct {
	userAgents []string
	minDelay   time.Duration
	maxDelay   time.Duration
	rng        *rand.Rand
	sleep      func(context.Context, time.Duration) error
}

// NewThrottlePolicy creates a policy drawing delays uniformly from
// [minDelay, maxDelay].
func NewThrottlePolicy(minDelay, maxDelay time.Duration) *ThrottlePolicy {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &ThrottlePolicy{
		userAgents: defaultUserAgents,
		minDelay:   minDelay,
		maxDelay:   maxDelay,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:      sleepContext,
	}
}

// UserAgent returns a pseudo-random entry from the identity pool.
func (p *ThrottlePolicy) UserAgent() string {
	return p.userAgents[p.rng.Intn(len(p.userAgents))]
}

// Delay draws the next courtesy delay.
func (p *ThrottlePolicy) Delay() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	return p.minDelay + time.Duration(p.rng.Int63n(int64(p.maxDelay-p.minDelay)+1))
}

// Wait blocks for the courtesy delay, honoring cancellation.
func (p *ThrottlePolicy) Wait(ctx context.Context) error {
	return p.sleep(ctx, p.Delay())
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Fetcher wraps outbound listing-site requests with the throttle policy.
// Transport failures and non-2xx statuses propagate unchanged; retrying a
// whole ingestion attempt is the external scheduler's call.
type Fetcher struct {
	client  *resty.Client
	policy  *ThrottlePolicy
	baseURL string
}

// NewFetcher creates a fetcher rooted at baseURL.
func NewFetcher(baseURL string, policy *ThrottlePolicy) *Fetcher {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(0).
		SetHeader("Accept-Language", "en-US,en;q=0.9")

	return &Fetcher{
		client:  client,
		policy:  policy,
		baseURL: baseURL,
	}
}

func listingPath(listingType models.ListingType) string {
	switch listingType {
	case models.ListingNewReleases:
		return "new-releases"
	case models.ListingMoversAndShakers:
		return "movers-and-shakers"
	default:
		return "bestsellers"
	}
}

// FetchListing retrieves the listing page for a category's external id.
func (f *Fetcher) FetchListing(ctx context.Context, externalCategoryID string, listingType models.ListingType) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/gp/%s/%s", f.baseURL, listingPath(listingType), url.PathEscape(externalCategoryID))
	return f.get(ctx, endpoint)
}

// FetchProductPage retrieves a product's own detail page.
func (f *Fetcher) FetchProductPage(ctx context.Context, asin string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/dp/%s", f.baseURL, url.PathEscape(asin))
	return f.get(ctx, endpoint)
}

func (f *Fetcher) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := f.policy.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := f.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", f.policy.UserAgent()).
		Get(endpoint)
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("request to %s returned status %d", endpoint, resp.StatusCode())
	}

	logrus.Debugf("Fetched %s (%d bytes)", endpoint, len(resp.Body()))
	return resp.Body(), nil
}
