package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	in  *sns.PublishInput
	err error
}

func (f *fakePublisher) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	return &sns.PublishOutput{}, f.err
}

func TestSendSMS_PublishesTransactional(t *testing.T) {
	pub := &fakePublisher{}
	s := &Sender{client: pub, senderID: "MedConnect"}

	require.NoError(t, s.SendSMS(context.Background(), "+14155550100", "code 123456"))
	assert.Equal(t, "+14155550100", *pub.in.PhoneNumber)
	assert.Equal(t, "code 123456", *pub.in.Message)
	assert.Equal(t, "Transactional", *pub.in.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue)
}

func TestSendSMS_PropagatesError(t *testing.T) {
	s := &Sender{client: &fakePublisher{err: errors.New("opted out")}}
	assert.Error(t, s.SendSMS(context.Background(), "+14155550100", "x"))
}
