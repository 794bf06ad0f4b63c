package lockout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p := Policy{MaxAttempts: 3, Window: 15 * time.Minute, Duration: 10 * time.Minute}

	future := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	tests := []struct {
		name    string
		until   *time.Time
		count   int
		want    Decision
		wantEnd time.Time
	}{
		{name: "clean account", count: 0, want: Allow},
		{name: "below threshold", count: 2, want: Allow},
		{name: "threshold reached", count: 3, want: LockNow, wantEnd: now.Add(10 * time.Minute)},
		{name: "above threshold", count: 9, want: LockNow, wantEnd: now.Add(10 * time.Minute)},
		{name: "active lock ignores count", until: &future, count: 0, want: Locked, wantEnd: future},
		{name: "expired lock falls through", until: &past, count: 1, want: Allow},
		{name: "expired lock with threshold", until: &past, count: 3, want: LockNow, wantEnd: now.Add(10 * time.Minute)},
		{name: "lock ending now is over", until: &now, count: 0, want: Allow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := p.Evaluate(tt.until, now, tt.count)
			assert.Equal(t, tt.want, v.Decision)
			assert.True(t, tt.wantEnd.Equal(v.Until), "until = %s, want %s", v.Until, tt.wantEnd)
		})
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	p := Policy{Window: 15 * time.Minute}
	assert.Equal(t, now.Add(-15*time.Minute), p.WindowStart(now))
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "allow", Allow.String())
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "lock_now", LockNow.String())
	assert.Equal(t, "unknown", Decision(7).String())
}
