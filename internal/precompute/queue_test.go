package precompute

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryQueue_SendReceiveBatch(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()
	require.NoError(t, q.Send(ctx, "a"))
	require.NoError(t, q.Send(ctx, "b"))
	require.NoError(t, q.Send(ctx, "c"))

	msgs, err := q.Receive(ctx, 2, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "a", msgs[0].Body)
	assert.Equal(t, "b", msgs[1].Body)
	assert.NotEmpty(t, msgs[0].ReceiptHandle)
	assert.Equal(t, 1, q.Len())
}

func TestMemoryQueue_ReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)
	start := time.Now()
	msgs, err := q.Receive(context.Background(), 1, 1)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestMemoryQueue_SendBlocksUntilContextDone(t *testing.T) {
	q := NewMemoryQueue(1)
	require.NoError(t, q.Send(context.Background(), "fill"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Send(ctx, "overflow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type mockSQS struct {
	sent       []string
	deleted    []string
	receiveOut *sqs.ReceiveMessageOutput
	sendErr    error
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = append(m.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (m *mockSQS) ReceiveMessage(_ context.Context, in *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if m.receiveOut == nil {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	return m.receiveOut, nil
}

func (m *mockSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.deleted = append(m.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue_RoundTrip(t *testing.T) {
	client := &mockSQS{receiveOut: &sqs.ReceiveMessageOutput{Messages: []sqstypes.Message{
		{MessageId: aws.String("m-1"), Body: aws.String(`{"job_id":"j"}`), ReceiptHandle: aws.String("rh-1")},
	}}}
	q := NewSQSQueue(client, "https://sqs.local/precompute")
	ctx := context.Background()

	require.NoError(t, q.Send(ctx, "payload"))
	assert.Equal(t, []string{"payload"}, client.sent)

	msgs, err := q.Receive(ctx, 5, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "rh-1", msgs[0].ReceiptHandle)

	require.NoError(t, q.Delete(ctx, "rh-1"))
	require.NoError(t, q.Delete(ctx, ""))
	assert.Equal(t, []string{"rh-1"}, client.deleted)
}

func TestSQSQueue_SendError(t *testing.T) {
	q := NewSQSQueue(&mockSQS{sendErr: errors.New("throttled")}, "url")
	err := q.Send(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestDecodePayloadRejectsMissingIDs(t *testing.T) {
	_, err := decodePayload(`{"job_id":"j"}`)
	assert.Error(t, err)
	_, err = decodePayload(`not json`)
	assert.Error(t, err)

	p, err := decodePayload(`{"job_id":"j","organizer_id":"o","days_ahead":3}`)
	require.NoError(t, err)
	assert.Equal(t, jobPayload{JobID: "j", OrganizerID: "o", DaysAhead: 3}, p)
}
