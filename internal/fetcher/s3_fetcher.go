package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

var _ Fetcher = &S3Fetcher{}

type S3Fetcher struct {
	url        *url.URL
	BucketName string
	Prefix     string
	Client     s3iface.S3API
}

// NewS3Fetcher parses a s3://bucket/prefix?region=…&endpoint=…&scheme=…&profile=… URL.
func NewS3Fetcher(u *url.URL) (*S3Fetcher, error) {
	scheme := u.Query().Get("scheme")
	profile := u.Query().Get("profile")
	region := u.Query().Get("region")
	endpoint := u.Query().Get("endpoint")
	bucketName := u.Host
	creds := credentials.NewChainCredentials(
		[]credentials.Provider{
			&credentials.EnvProvider{},
			&credentials.SharedCredentialsProvider{},
		})

	var disableSSL bool
	switch scheme {
	case "http":
		disableSSL = true
	case "https", "":
		disableSSL = false
	default:
		return nil, fmt.Errorf("unsupported scheme %s", scheme)
	}

	sess, err := session.NewSessionWithOptions(session.Options{
		// Specify profile to load for the session's config
		Profile: profile,

		// Provide SDK Config options, such as Region.
		Config: aws.Config{
			Region:           aws.String(region),
			Endpoint:         &endpoint,
			Credentials:      creds,
			DisableSSL:       aws.Bool(disableSSL),
			S3ForcePathStyle: aws.Bool(true),
		},
	})
	if err != nil {
		return nil, err
	}

	return &S3Fetcher{
		url:        u,
		BucketName: bucketName,
		Prefix:     strings.Trim(u.Path, "/"),
		Client:     s3.New(sess),
	}, nil
}

func (c *S3Fetcher) objectKey(key string) string {
	if c.Prefix == "" {
		return key
	}
	return c.Prefix + "/" + key
}

func (c *S3Fetcher) Download(ctx context.Context, key string, w io.Writer) error {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.BucketName),
		Key:    aws.String(c.objectKey(key)),
	}

	obj, err := c.Client.GetObjectWithContext(ctx, input)
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == s3.ErrCodeNoSuchKey {
			return notFound(key)
		}
		return err
	}

	return copyBody(ctx, w, obj.Body)
}

// URL returns the fetcher URI
func (c *S3Fetcher) URL() string {
	return c.url.String()
}
