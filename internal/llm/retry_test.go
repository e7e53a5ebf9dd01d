package llm

import (
	"testing"
	"time"
)

func TestBackoffDelay(t *testing.T) {
	config := RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

	t.Run("exact exponential sequence", func(t *testing.T) {
		want := []time.Duration{
			1 * time.Second,
			2 * time.Second,
			4 * time.Second,
			8 * time.Second,
		}
		for attempt, expected := range want {
			if got := BackoffDelay(attempt, config); got != expected {
				t.Errorf("Attempt %d: expected %v, got %v", attempt, expected, got)
			}
		}
	})

	t.Run("capped at max delay", func(t *testing.T) {
		if got := BackoffDelay(10, config); got != config.MaxDelay {
			t.Errorf("Expected cap %v, got %v", config.MaxDelay, got)
		}
	})

	t.Run("negative attempt clamps to base", func(t *testing.T) {
		if got := BackoffDelay(-1, config); got != config.BaseDelay {
			t.Errorf("Expected base delay, got %v", got)
		}
	})
}

func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()
	if config.MaxRetries != 3 {
		t.Errorf("Expected 3 retries, got %d", config.MaxRetries)
	}
	if config.BaseDelay != time.Second {
		t.Errorf("Expected 1s base delay, got %v", config.BaseDelay)
	}
}
