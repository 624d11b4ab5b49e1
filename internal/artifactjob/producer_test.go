package artifactjob_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credexam/certification-api/internal/artifactjob"
	"github.com/credexam/certification-api/internal/queue"
	"github.com/credexam/certification-api/internal/types"
)

type fakeQueuer struct {
	enqueued []any
	err      error
}

func (f *fakeQueuer) Enqueue(_ context.Context, message any) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, message)
	return nil
}

func (f *fakeQueuer) Dequeue(
	_ context.Context,
	_ time.Duration,
	_ queue.MessageHandler,
) error {
	return errors.New("not implemented")
}

func TestEnqueue(t *testing.T) {
	resultID := "0195a2b4-1111-7222-8333-444455556666"
	userID := "0195a2b4-aaaa-7bbb-8ccc-dddd11112222"

	t.Run("Accepted", func(t *testing.T) {
		queuer := &fakeQueuer{}
		producer := artifactjob.NewProducer(queuer)

		ok := producer.Enqueue(
			t.Context(),
			resultID,
			userID,
			types.ArtifactTypeEvaluationReport,
			nil,
		)

		assert.True(t, ok, "durable submission should report success")
		require.Len(t, queuer.enqueued, 1)

		message, isMessage := queuer.enqueued[0].(types.ArtifactJobMessage)
		require.True(t, isMessage, "should enqueue the job message struct")
		assert.Equal(t, resultID, message.ResultID)
		assert.Equal(t, userID, message.UserID)
		assert.Equal(t, types.ArtifactTypeEvaluationReport, message.Type)
		assert.Nil(t, message.CallbackURL)
		assert.WithinDuration(t, time.Now().UTC(), message.QueuedAt, time.Minute)
	})

	t.Run("QueueUnreachable", func(t *testing.T) {
		queuer := &fakeQueuer{err: errors.New("expected error")}
		producer := artifactjob.NewProducer(queuer)

		ok := producer.Enqueue(
			t.Context(),
			resultID,
			userID,
			types.ArtifactTypeCertificate,
			nil,
		)

		assert.False(t, ok, "queue trouble is a false, never a panic or error")
	})

	t.Run("NoQueueConfigured", func(t *testing.T) {
		producer := artifactjob.NewProducer(nil)

		ok := producer.Enqueue(
			t.Context(),
			resultID,
			userID,
			types.ArtifactTypeCertificate,
			nil,
		)

		assert.False(t, ok, "callers fall back to synchronous generation")
	})
}
