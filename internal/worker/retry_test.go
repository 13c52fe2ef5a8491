package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/antonkozlov/imgmatch/internal/common"
)

func TestBackoffGrowsExponentiallyAndCaps(t *testing.T) {
	p := retryPolicy{Limit: 5, InitialBackoff: time.Second, MaxBackoff: 10 * time.Second}

	assert.Equal(t, 1*time.Second, p.Backoff(0))
	assert.Equal(t, 2*time.Second, p.Backoff(1))
	assert.Equal(t, 4*time.Second, p.Backoff(2))
	assert.Equal(t, 8*time.Second, p.Backoff(3))
	assert.Equal(t, 10*time.Second, p.Backoff(4))
	assert.Equal(t, 10*time.Second, p.Backoff(10))
}

func TestRetryPolicyFromConfigDefaults(t *testing.T) {
	p := retryPolicyFromConfig(common.WorkerConfig{RetryLimit: 3})
	assert.Equal(t, 3, p.Limit)
	assert.Equal(t, time.Second, p.InitialBackoff)
	assert.GreaterOrEqual(t, p.MaxBackoff, p.InitialBackoff)
}
