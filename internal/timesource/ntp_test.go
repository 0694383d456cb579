package timesource

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/beevik/ntp"
)

func TestNTPSyncerFallsBackToNextServer(t *testing.T) {
	t.Parallel()
	now := time.Now()
	var asked []string
	s := NewNTPSyncer([]string{"a.example", "b.example"}, time.Second)
	s.query = func(host string, opt ntp.QueryOptions) (*ntp.Response, error) {
		asked = append(asked, host)
		if opt.Timeout != time.Second {
			t.Errorf("timeout = %s", opt.Timeout)
		}
		if host == "a.example" {
			return nil, errors.New("i/o timeout")
		}
		return &ntp.Response{
			Time:          now,
			ReferenceTime: now.Add(-time.Minute),
			Stratum:       2,
			ClockOffset:   3 * time.Second,
		}, nil
	}

	off, err := s.Offset(context.Background())
	if err != nil {
		t.Fatalf("Offset: %v", err)
	}
	if off != 3*time.Second {
		t.Fatalf("offset = %s", off)
	}
	if len(asked) != 2 {
		t.Fatalf("asked = %v", asked)
	}
}

func TestNTPSyncerErrors(t *testing.T) {
	t.Parallel()
	if _, err := NewNTPSyncer(nil, 0).Offset(context.Background()); !errors.Is(err, ErrNoServers) {
		t.Fatalf("no servers = %v", err)
	}

	s := NewNTPSyncer([]string{"a.example", "b.example"}, 0)
	s.query = func(host string, _ ntp.QueryOptions) (*ntp.Response, error) {
		// Stratum 0 is a kiss-of-death reply and fails validation.
		return &ntp.Response{Stratum: 0}, nil
	}
	_, err := s.Offset(context.Background())
	if err == nil || !strings.Contains(err.Error(), "a.example") || !strings.Contains(err.Error(), "b.example") {
		t.Fatalf("err = %v, want both hosts named", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Offset(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("cancelled = %v", err)
	}
}
