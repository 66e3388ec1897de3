package observe

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/richesreach/recall/policy"
)

type countingObserver struct {
	starts, attempts, successes, failures int
}

func (c *countingObserver) OnStart(context.Context, policy.Key, policy.Policy)   { c.starts++ }
func (c *countingObserver) OnAttempt(context.Context, policy.Key, AttemptRecord) { c.attempts++ }
func (c *countingObserver) OnSuccess(context.Context, policy.Key, Timeline)      { c.successes++ }
func (c *countingObserver) OnFailure(context.Context, policy.Key, Timeline)      { c.failures++ }

func TestMultiObserver_FansOut(t *testing.T) {
	a, b := &countingObserver{}, &countingObserver{}
	m := MultiObserver{Observers: []Observer{a, nil, b}}

	ctx := context.Background()
	key := policy.ParseKey("svc.op")
	m.OnStart(ctx, key, policy.Policy{})
	m.OnAttempt(ctx, key, AttemptRecord{})
	m.OnAttempt(ctx, key, AttemptRecord{})
	m.OnSuccess(ctx, key, Timeline{})
	m.OnFailure(ctx, key, Timeline{})

	for _, o := range []*countingObserver{a, b} {
		assert.Equal(t, 1, o.starts)
		assert.Equal(t, 2, o.attempts)
		assert.Equal(t, 1, o.successes)
		assert.Equal(t, 1, o.failures)
	}
}

func TestTimelineCapture(t *testing.T) {
	ctx, capture := RecordTimeline(context.Background())
	require.Nil(t, capture.Timeline())

	got, ok := CaptureFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, capture, got)

	tl := &Timeline{CallID: "abc"}
	StoreCapture(got, tl)
	require.NotNil(t, capture.Timeline())
	assert.Equal(t, "abc", capture.Timeline().CallID)
}

func TestWithoutCapture_Disables(t *testing.T) {
	ctx, _ := RecordTimeline(context.Background())
	inner := WithoutCapture(ctx)

	_, ok := CaptureFromContext(inner)
	assert.False(t, ok)
}

func TestCaptureFromContext_Absent(t *testing.T) {
	_, ok := CaptureFromContext(context.Background())
	assert.False(t, ok)
}

func TestTimeline_Duration(t *testing.T) {
	start := time.Unix(100, 0)
	tl := Timeline{Start: start, End: start.Add(3 * time.Second)}
	assert.Equal(t, 3*time.Second, tl.Duration())
}

func TestSlogObserver_FailureLogsWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := SlogObserver{Logger: logger}

	key := policy.ParseKey("briefs.Complete")
	obs.OnStart(context.Background(), key, policy.DefaultPolicyFor(key))
	obs.OnAttempt(context.Background(), key, AttemptRecord{Attempt: 0, Err: errors.New("boom")})
	obs.OnFailure(context.Background(), key, Timeline{CallID: "id-1", FinalErr: errors.New("boom")})

	out := buf.String()
	assert.Contains(t, out, "call failed")
	assert.Contains(t, out, "briefs.Complete")
	assert.Contains(t, out, "level=WARN")
}
