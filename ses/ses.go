// Package ses delivers mail through Amazon SES.
package ses

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/pkg/errors"
	"gopkg.in/gomail.v2"
)

const sendTimeout = 10 * time.Second

// API is the subset of the SES client used to send mail
type API interface {
	SendRawEmail(ctx context.Context, params *ses.SendRawEmailInput, optFns ...func(*ses.Options)) (*ses.SendRawEmailOutput, error)
}

// Dialer sends raw MIME messages through SES. The sender address must be
// verified with Amazon SES.
type Dialer struct {
	api API
}

// NewDialer returns a dialer using the default AWS credential chain
func NewDialer(ctx context.Context, region string) (*Dialer, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}

	return NewDialerWithAPI(ses.NewFromConfig(cfg)), nil
}

// NewDialerWithAPI returns a dialer sending through api
func NewDialerWithAPI(api API) *Dialer {
	return &Dialer{api: api}
}

// Dial returns a sender; SES needs no connection so it never fails
func (d *Dialer) Dial() (gomail.SendCloser, error) {
	return d, nil
}

// Send submits msg as a raw email
func (d *Dialer) Send(from string, to []string, msg io.WriterTo) error {
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		return errors.Wrap(err, "write message")
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	_, err := d.api.SendRawEmail(ctx, &ses.SendRawEmailInput{
		Source:       aws.String(from),
		Destinations: to,
		RawMessage: &types.RawMessage{
			Data: buf.Bytes(),
		},
	})
	if err != nil {
		return errors.Wrapf(err, "ses send to %v", to)
	}

	return nil
}

// Close is a no-op
func (d *Dialer) Close() error {
	return nil
}
