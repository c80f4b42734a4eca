package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"splicer/internal/services"
)

func TestRetryPolicyBackoff(t *testing.T) {
	p := services.RetryPolicy{BaseDelay: time.Second, MaxDelay: 5 * time.Second}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := p.Backoff(i + 1); got != w {
			t.Fatalf("Backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestRetryPolicyDo(t *testing.T) {
	cases := []struct {
		name      string
		errs      []error
		wantCalls int
		wantSleep int
		wantErr   error
	}{
		{"succeeds after transient", []error{services.ErrTransient, nil}, 2, 1, nil},
		{"stops on permanent", []error{services.ErrConfiguration, nil}, 1, 0, services.ErrConfiguration},
		{"exhausts budget", []error{services.ErrProviderUnavailable, services.ErrProviderUnavailable, services.ErrProviderUnavailable}, 3, 2, services.ErrProviderUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var sleeps []time.Duration
			p := services.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, Sleeper: func(d time.Duration) { sleeps = append(sleeps, d) }}
			calls := 0
			err := p.Do(context.Background(), "op", func(attempt int) error {
				calls++
				if attempt != calls {
					t.Fatalf("attempt %d reported on call %d", attempt, calls)
				}
				return tc.errs[calls-1]
			})
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
			if calls != tc.wantCalls || len(sleeps) != tc.wantSleep {
				t.Fatalf("calls=%d sleeps=%d, want %d and %d", calls, len(sleeps), tc.wantCalls, tc.wantSleep)
			}
		})
	}
}

func TestRetryPolicyCustomPredicate(t *testing.T) {
	boom := errors.New("boom")
	p := services.RetryPolicy{Attempts: 2, ShouldRetry: func(err error) bool { return errors.Is(err, boom) }}
	calls := 0
	err := p.Do(context.Background(), "op", func(int) error { calls++; return boom })
	if calls != 2 || !errors.Is(err, boom) {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}

func TestClassifyHTTP(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{200, nil},
		{408, services.ErrProviderUnavailable},
		{429, services.ErrProviderUnavailable},
		{503, services.ErrProviderUnavailable},
		{400, services.ErrConfiguration},
		{401, services.ErrConfiguration},
	}
	for _, tc := range cases {
		got := services.ClassifyHTTP("x", tc.status, nil)
		if tc.want == nil && got != nil {
			t.Fatalf("status %d: unexpected %v", tc.status, got)
		}
		if tc.want != nil && !errors.Is(got, tc.want) {
			t.Fatalf("status %d: got %v, want %v", tc.status, got, tc.want)
		}
	}
}
