package ses

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeAPI struct {
	input *ses.SendRawEmailInput
	err   error
}

func (f *fakeAPI) SendRawEmail(_ context.Context, params *ses.SendRawEmailInput, _ ...func(*ses.Options)) (*ses.SendRawEmailOutput, error) {
	f.input = params
	return &ses.SendRawEmailOutput{}, f.err
}

func TestDialerSendsRawMessage(t *testing.T) {
	api := new(fakeAPI)
	d := NewDialerWithAPI(api)

	msg := gomail.NewMessage()
	msg.SetHeader("From", "newsletter@quantonganh.com")
	msg.SetHeader("To", "foo@gmail.com")
	msg.SetHeader("Subject", "Hello")
	msg.SetBody("text/plain", "First post")

	s, err := d.Dial()
	require.NoError(t, err)
	require.NoError(t, gomail.Send(s, msg))
	require.NoError(t, s.Close())

	require.NotNil(t, api.input)
	assert.Equal(t, "newsletter@quantonganh.com", *api.input.Source)
	assert.Equal(t, []string{"foo@gmail.com"}, api.input.Destinations)
	assert.Contains(t, string(api.input.RawMessage.Data), "Subject: Hello")
}

func TestDialerPropagatesErrors(t *testing.T) {
	d := NewDialerWithAPI(&fakeAPI{err: errors.New("MessageRejected")})

	msg := gomail.NewMessage()
	msg.SetHeader("From", "newsletter@quantonganh.com")
	msg.SetHeader("To", "foo@gmail.com")

	err := gomail.Send(d, msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MessageRejected")
}
