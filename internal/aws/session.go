package aws

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/athena"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"go.uber.org/zap"
)

type Option func(*Clients)

func WithLogger(l *zap.Logger) Option {
	return func(c *Clients) {
		c.logger = l
	}
}

func WithRegion(region string) Option {
	return func(c *Clients) {
		c.Region = region
	}
}

func WithEndpoint(endpoint string) Option {
	return func(c *Clients) {
		c.Endpoint = endpoint
	}
}

func WithForcePathStyle(forcePathStyle bool) Option {
	return func(c *Clients) {
		c.ForcePathStyle = forcePathStyle
	}
}

// Clients builds AWS service clients from one shared session.
type Clients struct {
	logger  *zap.Logger
	session *session.Session

	Region         string
	Endpoint       string
	ForcePathStyle bool
}

func New(opts ...Option) (*Clients, error) {
	c := &Clients{
		logger: zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}

	awsConfig := &aws.Config{
		S3ForcePathStyle: aws.Bool(c.ForcePathStyle),
	}
	if c.Region != "" {
		awsConfig.Region = aws.String(c.Region)
	}
	if c.Endpoint != "" {
		awsConfig.Endpoint = aws.String(c.Endpoint)
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *awsConfig,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}
	c.session = sess
	c.Region = aws.StringValue(sess.Config.Region)

	c.logger.Debug("aws session created",
		zap.String("region", c.Region),
		zap.String("endpoint", c.Endpoint),
	)
	return c, nil
}

// Athena returns a query service client in the session's region.
func (c *Clients) Athena() *athena.Athena {
	return athena.New(c.session)
}

// S3 returns an object store client. An empty region uses the session's region.
func (c *Clients) S3(region string) s3iface.S3API {
	if region == "" {
		return s3.New(c.session)
	}
	return s3.New(c.session, aws.NewConfig().WithRegion(region))
}
