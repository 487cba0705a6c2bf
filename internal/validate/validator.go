package validate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/triage/internal/logging"
	"github.com/ppiankov/triage/internal/model"
	"github.com/ppiankov/triage/internal/util"
	"github.com/ppiankov/triage/internal/worker"
)

const validateMaxRetries = 3

// validateSleepFunc is the sleep function used between retries (injectable for tests)
var validateSleepFunc = time.Sleep

// LinkChecker checks facility monitoring links concurrently
type LinkChecker struct {
	httpClient *http.Client
	maxWorkers int
	userAgent  string
	staleAfter time.Duration
	tiers      *TierClassifier
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	logger     *zap.Logger
}

// NewLinkChecker creates a checker from the link configuration
func NewLinkChecker(cfg model.LinkCheckConfig, logger *zap.Logger) *LinkChecker {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = model.DefaultConfig().Links.UserAgent
	}

	proxyFunc := util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)

	c := &LinkChecker{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				Proxy: proxyFunc,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("stopped after 3 redirects")
				}
				return nil
			},
		},
		maxWorkers: cfg.Workers,
		userAgent:  cfg.UserAgent,
		staleAfter: cfg.StaleAfter,
		tiers:      NewTierClassifier(&cfg),
		limiter:    worker.NewLimiter(2, 2, 10*time.Minute),
		logger:     logging.OrNop(logger),
	}
	if cfg.RespectRobots {
		c.robots = util.NewRobotsChecker(cfg.UserAgent, cfg.Timeout, proxyFunc)
	}
	return c
}

// Check requests the monitoring link of every facility that has one. Results
// follow the order of facilities; facilities without a link are skipped.
func (c *LinkChecker) Check(ctx context.Context, facilities []model.Facility) []model.LinkResult {
	var linked []model.Facility
	for _, f := range facilities {
		if strings.TrimSpace(f.MonitoringLink) != "" {
			linked = append(linked, f)
		}
	}
	if len(linked) == 0 {
		return []model.LinkResult{}
	}

	results := make([]model.LinkResult, len(linked))

	var g errgroup.Group
	g.SetLimit(c.maxWorkers)

	for i, f := range linked {
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = c.baseResult(f)
				results[i].Error = "context cancelled"
				return nil
			}
			results[i] = c.checkWithRetry(ctx, f)
			return nil
		})
	}

	_ = g.Wait()

	for _, r := range results {
		if !r.IsAccessible {
			c.logger.Warn("monitoring link unreachable",
				zap.String("facility", r.Facility),
				zap.String("url", r.URL),
				zap.Int("status", r.StatusCode),
				zap.String("error", r.Error))
		}
	}
	return results
}

func (c *LinkChecker) baseResult(f model.Facility) model.LinkResult {
	link := strings.TrimSpace(f.MonitoringLink)
	return model.LinkResult{
		Facility: f.Name,
		City:     f.City,
		URL:      link,
		Tier:     c.tiers.Classify(link),
	}
}

// checkSingle checks one link with a HEAD request
func (c *LinkChecker) checkSingle(ctx context.Context, f model.Facility) model.LinkResult {
	result := c.baseResult(f)

	if c.robots != nil {
		allowed, delay, err := c.robots.CanFetch(ctx, result.URL)
		if err != nil {
			result.Error = fmt.Sprintf("robots: %v", err)
			result.IsDead = true
			return result
		}
		if !allowed {
			result.Disallowed = true
			result.Error = "disallowed by robots.txt"
			return result
		}
		if host, err := worker.HostKey(result.URL); err == nil && delay > 0 {
			c.limiter.SetRate(host, float64(time.Second)/float64(delay), 1)
		}
	}

	if err := c.limiter.WaitURL(ctx, result.URL); err != nil {
		result.Error = fmt.Sprintf("rate limit: %v", err)
		return result
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, result.URL, nil)
	if err != nil {
		result.Error = fmt.Sprintf("create request: %v", err)
		result.IsDead = true
		return result
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.IsDead = true
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode

	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		result.IsAccessible = true
	} else if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		result.IsDead = true
	}

	if final := resp.Request.URL.String(); final != result.URL {
		result.RedirectURL = final
	}

	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		if t, err := http.ParseTime(lastModified); err == nil {
			result.LastModified = &t
			if c.staleAfter > 0 && time.Since(t) > c.staleAfter {
				result.IsStale = true
			}
		}
	}

	return result
}

// checkWithRetry retries transient failures with exponential backoff
func (c *LinkChecker) checkWithRetry(ctx context.Context, f model.Facility) model.LinkResult {
	var result model.LinkResult
	for attempt := 0; attempt < validateMaxRetries; attempt++ {
		result = c.checkSingle(ctx, f)
		if !isRetryableResult(result) {
			return result
		}
		if attempt < validateMaxRetries-1 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			validateSleepFunc(backoff)
		}
	}
	return result
}

// isRetryableResult returns true for results that indicate transient failures
func isRetryableResult(result model.LinkResult) bool {
	if result.StatusCode >= 500 && result.StatusCode < 600 {
		return true
	}
	if result.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return result.Error != "" && isRetryableNetworkError(result.Error)
}

// isRetryableNetworkError checks error strings for transient network failures
func isRetryableNetworkError(errMsg string) bool {
	s := strings.ToLower(errMsg)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
