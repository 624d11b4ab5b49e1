package queue_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/azure/azurite"

	"github.com/credexam/certification-api/internal/queue"
)

var queueName = "artifacts"

type message struct {
	Foo string `json:"foo"`
}

type handlerFunc func(ctx context.Context, message []byte) error

func (f handlerFunc) Handle(ctx context.Context, message []byte) error {
	return f(ctx, message)
}

func TestAzure(t *testing.T) {
	ctx := t.Context()

	azuriteContainer, err := azurite.Run(
		ctx,
		"mcr.microsoft.com/azure-storage/azurite:latest",
		azurite.WithInMemoryPersistence(256),
	)
	require.NoError(t, err, "failed to make azurite container")
	defer func() {
		require.NoError(t, testcontainers.TerminateContainer(azuriteContainer))
	}()

	cred, err := azqueue.NewSharedKeyCredential(azurite.AccountName, azurite.AccountKey)
	require.NoError(t, err, "failed to get creds")

	serviceURL, err := azuriteContainer.QueueServiceURL(ctx)
	require.NoError(t, err, "failed to get serviceURL")
	serviceURL = fmt.Sprintf("%s/%s", serviceURL, azurite.AccountName)

	azclient, err := azqueue.NewServiceClientWithSharedKeyCredential(
		serviceURL,
		cred,
		nil,
	)
	require.NoError(t, err, "failed to make azure queue client")

	queueclient := azclient.NewQueueClient(queueName)
	_, err = queueclient.Create(ctx, nil)
	require.NoError(t, err, "failed to make queue")

	queuer, err := queue.NewAzureQueuer(
		azurite.AccountName,
		azurite.AccountKey,
		serviceURL,
		queueName,
		5,
	)
	require.NoError(t, err, "failed to construct queuer")

	t.Run("Enqueue", func(t *testing.T) {
		expected := message{Foo: "foo"}
		require.NoError(t, queuer.Enqueue(ctx, expected), "failed to queue message")

		dequeued, dqErr := queueclient.DequeueMessage(
			ctx,
			nil,
		)
		require.NoError(t, dqErr, "failed to dequeue message")

		assert.Len(t, dequeued.Messages, 1, "should remove 1 message")

		rawMessage := *dequeued.Messages[0].MessageText
		decoded, err := base64.StdEncoding.DecodeString(rawMessage)
		require.NoError(t, err, "message should be base64 on the wire")

		actual := message{}
		err = json.Unmarshal(decoded, &actual)
		require.NoError(t, err, "failed to unmarshal message")

		assert.Equal(t, expected, actual, "messages should match")
	})

	t.Run("Dequeue", func(t *testing.T) {
		t.Run("Empty", func(t *testing.T) {
			// Should not find something to dequeue before the context cancels
			calls := 0
			handler := handlerFunc(func(_ context.Context, _ []byte) error {
				calls++
				return nil
			})

			cctx, cancel := context.WithTimeout(ctx, time.Second)
			defer cancel()

			require.Error(
				t,
				queuer.Dequeue(cctx, time.Minute, handler),
				"failed to handle a dequeue",
			)
			assert.Zero(t, calls, "handler must not run on an empty queue")
		})

		t.Run("Something", func(t *testing.T) {
			msg := "abc"
			encoded := base64.StdEncoding.EncodeToString([]byte(msg))
			_, err = queueclient.EnqueueMessage(ctx, encoded, nil)
			require.NoError(t, err, "enqueing message")

			var got []byte
			handler := handlerFunc(func(_ context.Context, m []byte) error {
				got = m
				return nil
			})

			err := queuer.Dequeue(ctx, time.Minute, handler)
			require.NoError(t, err, "failed to dequeue message")
			assert.Equal(t, []byte(msg), got, "handler should see the decoded payload")
		})

		t.Run("Poison", func(t *testing.T) {
			encoded := base64.StdEncoding.EncodeToString([]byte("bad"))
			_, err = queueclient.EnqueueMessage(ctx, encoded, nil)
			require.NoError(t, err, "enqueing message")

			handler := handlerFunc(func(_ context.Context, _ []byte) error {
				return queue.WrapPoisonError(fmt.Errorf("structurally invalid"))
			})

			err := queuer.Dequeue(ctx, time.Minute, handler)
			require.NoError(t, err, "poisoned message should be consumed without error")

			props, err := queueclient.GetProperties(ctx, nil)
			require.NoError(t, err)
			assert.Zero(
				t,
				*props.ApproximateMessagesCount,
				"poisoned message must not be requeued",
			)
		})
	})
}
