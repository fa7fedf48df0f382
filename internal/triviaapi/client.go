// Package triviaapi adapts the-trivia-api.com style question banks to the
// game's QuestionSource contract.
package triviaapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/victornm/livetrivia/internal/domain"
	"github.com/victornm/livetrivia/internal/errors"
)

const (
	defaultPageSize = 10
	defaultTimeout  = 10 * time.Second
)

type Config struct {
	BaseURL string
	// PageSize is how many questions one upstream request asks for.
	PageSize int
	// HTTPClient overrides the client used for upstream requests.
	HTTPClient *http.Client
}

type Client struct {
	baseURL  string
	pageSize int
	http     *http.Client
}

func NewClient(c Config) *Client {
	if c.PageSize <= 0 {
		c.PageSize = defaultPageSize
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{
		baseURL:  c.BaseURL,
		pageSize: c.PageSize,
		http:     c.HTTPClient,
	}
}

// GetQuestions pages the upstream bank until n multiple-choice, non-niche
// questions have been collected, discarding anything else.
func (c *Client) GetQuestions(ctx context.Context, n int) ([]domain.TriviaQuestion, error) {
	out := make([]domain.TriviaQuestion, 0, n)

	for len(out) < n {
		page, err := c.fetchPage(ctx)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return nil, errors.New(errors.CodeUnavailable,
				errors.WithMessagef("trivia api returned an empty page"))
		}

		for _, q := range page {
			if q.Type != "Multiple Choice" || q.IsNiche {
				continue
			}

			out = append(out, q)
			if len(out) == n {
				break
			}
		}
	}

	return out, nil
}

func (c *Client) fetchPage(ctx context.Context) ([]domain.TriviaQuestion, error) {
	url := fmt.Sprintf("%s?limit=%d", c.baseURL, c.pageSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.New(errors.CodeUnavailable, errors.WithCause(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.CodeUnavailable,
			errors.WithMessagef("trivia api: unexpected status %d", resp.StatusCode))
	}

	var page []domain.TriviaQuestion
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}

	return page, nil
}
