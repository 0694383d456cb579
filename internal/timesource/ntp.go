package timesource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/beevik/ntp"
)

// Syncer measures how far the local clock is from true time.
type Syncer interface {
	Offset(ctx context.Context) (time.Duration, error)
}

// NTPSyncer asks each server in turn and returns the first valid offset.
type NTPSyncer struct {
	Servers []string
	Timeout time.Duration

	query func(host string, opt ntp.QueryOptions) (*ntp.Response, error)
}

func NewNTPSyncer(servers []string, timeout time.Duration) *NTPSyncer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &NTPSyncer{Servers: servers, Timeout: timeout, query: ntp.QueryWithOptions}
}

func (s *NTPSyncer) Offset(ctx context.Context) (time.Duration, error) {
	if len(s.Servers) == 0 {
		return 0, ErrNoServers
	}
	var errs []error
	for _, host := range s.Servers {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		resp, err := s.query(host, ntp.QueryOptions{Timeout: s.Timeout})
		if err == nil {
			err = resp.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", host, err))
			continue
		}
		return resp.ClockOffset, nil
	}
	return 0, errors.Join(errs...)
}
