package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"meetcore/internal/core/domain"
	"meetcore/internal/core/ports"
	"meetcore/pkg/cache"
	"meetcore/pkg/circuitbreaker"
	cerr "meetcore/pkg/errors"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Config tunes the meeting API client.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	RetryCount     int
	RetryWaitTime  time.Duration
	AuthToken      string
	BreakerEnabled bool
}

func DefaultConfig() Config {
	return Config{
		BaseURL:        "http://localhost:5000/api",
		Timeout:        10 * time.Second,
		RetryCount:     2,
		RetryWaitTime:  500 * time.Millisecond,
		BreakerEnabled: true,
	}
}

// Client talks to the meeting REST collaborator. Reads run behind a
// circuit breaker so a dead backend fails fast instead of stalling the
// event loop's callers; writes are advisory and retried by resty.
type Client struct {
	http    *resty.Client
	breaker *circuitbreaker.CircuitBreaker
	cache   *cache.Cache
	logger  *zap.SugaredLogger
}

// metadataTTL bounds how stale an advisory read may be.
const metadataTTL = 5 * time.Second

var _ ports.MeetingAPI = (*Client)(nil)

func NewClient(cfg Config, logger *zap.SugaredLogger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWaitTime).
		SetHeader("Accept", "application/json")

	if cfg.AuthToken != "" {
		httpClient.SetAuthToken(cfg.AuthToken)
	}

	var breaker *circuitbreaker.CircuitBreaker
	if cfg.BreakerEnabled {
		breaker = circuitbreaker.New(circuitbreaker.DefaultConfig())
		breaker.OnStateChange(func(from, to circuitbreaker.State) {
			logger.Warnw("meeting api breaker state change", "from", from.String(), "to", to.String())
		})
	}

	return &Client{
		http:    httpClient,
		breaker: breaker,
		cache:   cache.NewCache(metadataTTL),
		logger:  logger,
	}
}

func (c *Client) Validate(ctx context.Context, meetingID domain.SessionID) error {
	return c.guarded(ctx, func() error {
		resp, err := c.http.R().SetContext(ctx).
			Get(fmt.Sprintf("/meetings/%s/validate", meetingID))
		if err != nil {
			return cerr.NewTransport("validating meeting", err)
		}
		switch resp.StatusCode() {
		case http.StatusOK:
			return nil
		case http.StatusNotFound, http.StatusGone:
			return cerr.NewInvalidSession(fmt.Sprintf("meeting %s does not exist or has ended", meetingID))
		default:
			return fmt.Errorf("validate returned %d", resp.StatusCode())
		}
	})
}

func (c *Client) GetMeeting(ctx context.Context, meetingID domain.SessionID) (*ports.MeetingRecord, error) {
	cacheKey := "meeting:" + string(meetingID)
	if cached, ok := c.cache.Get(cacheKey); ok {
		record := cached.(ports.MeetingRecord)
		return &record, nil
	}

	var record ports.MeetingRecord
	err := c.guarded(ctx, func() error {
		resp, err := c.http.R().SetContext(ctx).
			SetResult(&record).
			Get(fmt.Sprintf("/meetings/%s", meetingID))
		if err != nil {
			return cerr.NewTransport("fetching meeting", err)
		}
		if resp.StatusCode() == http.StatusNotFound {
			return cerr.NewNotFound("meeting")
		}
		if resp.IsError() {
			return fmt.Errorf("get meeting returned %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.cache.Set(cacheKey, record)
	return &record, nil
}

func (c *Client) Join(ctx context.Context, meetingID domain.SessionID, userID, userName string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"userId": userID, "userName": userName}).
		Post(fmt.Sprintf("/meetings/%s/join", meetingID))
	if err != nil {
		return cerr.NewTransport("recording join", err)
	}
	if resp.IsError() {
		return fmt.Errorf("join returned %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) Leave(ctx context.Context, meetingID domain.SessionID, userID string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"userId": userID}).
		Post(fmt.Sprintf("/meetings/%s/leave", meetingID))
	if err != nil {
		return cerr.NewTransport("recording leave", err)
	}
	if resp.IsError() {
		return fmt.Errorf("leave returned %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) End(ctx context.Context, meetingID domain.SessionID, userID string) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(map[string]string{"userId": userID}).
		Post(fmt.Sprintf("/meetings/%s/end", meetingID))
	if err != nil {
		return cerr.NewTransport("recording end", err)
	}
	if resp.StatusCode() == http.StatusForbidden {
		return domain.ErrNotHost
	}
	if resp.IsError() {
		return fmt.Errorf("end returned %d", resp.StatusCode())
	}
	return nil
}

func (c *Client) Participants(ctx context.Context, meetingID domain.SessionID) ([]ports.ParticipantRecord, error) {
	var records []ports.ParticipantRecord
	err := c.guarded(ctx, func() error {
		resp, err := c.http.R().SetContext(ctx).
			SetResult(&records).
			Get(fmt.Sprintf("/meetings/%s/participants", meetingID))
		if err != nil {
			return cerr.NewTransport("fetching participants", err)
		}
		if resp.IsError() {
			return fmt.Errorf("participants returned %d", resp.StatusCode())
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (c *Client) UpdateStatus(ctx context.Context, meetingID domain.SessionID, userID string, update ports.StatusUpdate) error {
	resp, err := c.http.R().SetContext(ctx).
		SetBody(update).
		Patch(fmt.Sprintf("/meetings/%s/participants/%s/status", meetingID, userID))
	if err != nil {
		return cerr.NewTransport("updating status", err)
	}
	if resp.IsError() {
		return fmt.Errorf("status update returned %d", resp.StatusCode())
	}
	return nil
}

// guarded routes read traffic through the circuit breaker when enabled.
func (c *Client) guarded(ctx context.Context, fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(ctx, fn)
}
