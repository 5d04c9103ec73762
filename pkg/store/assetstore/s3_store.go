package assetstore

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
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/flokli/assetcache/pkg/util"
)

var _ AssetStore = &S3Store{}

// S3Store keeps assets as objects in an S3 bucket.
// S3 has no create-if-absent primitive, a HeadObject probe guards non-overwrite
// uploads. This only excludes writers of the same process reliably.
type S3Store struct {
	client        s3iface.S3API
	uploader      *s3manager.Uploader
	bucketName    string
	prefix        string
	publicBaseURL string

	reservations *reservations
	exclusion
}

// NewS3Store returns a store writing to the given bucket.
// Object names are the key, prefixed with prefix.
// If publicBaseURL is non-empty, PublicURL returns URLs below it.
func NewS3Store(client s3iface.S3API, bucketName, prefix, publicBaseURL string) *S3Store {
	return &S3Store{
		client:        client,
		uploader:      s3manager.NewUploaderWithClient(client),
		bucketName:    bucketName,
		prefix:        strings.Trim(prefix, "/"),
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
		reservations:  newReservations(),
		exclusion:     newExclusion(),
	}
}

// NewS3StoreFromURL parses a s3://bucket/prefix?region=…&endpoint=…&scheme=…&profile=… URL.
func NewS3StoreFromURL(u *url.URL, publicBaseURL string) (*S3Store, error) {
	scheme := u.Query().Get("scheme")
	profile := u.Query().Get("profile")
	region := u.Query().Get("region")
	endpoint := u.Query().Get("endpoint")
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
		Profile: profile,
		Config: aws.Config{
			Region:           aws.String(region),
			Endpoint:         aws.String(endpoint),
			Credentials:      creds,
			DisableSSL:       aws.Bool(disableSSL),
			S3ForcePathStyle: aws.Bool(true),
		},
	})
	if err != nil {
		return nil, err
	}

	return NewS3Store(s3.New(sess), u.Host, strings.TrimPrefix(u.Path, "/"), publicBaseURL), nil
}

func (s *S3Store) Close() error {
	return nil
}

// objectKey composes the key with the prefix.
// Keys are opaque, they're appended verbatim, so "a//b" and "../x" stay distinct objects.
func (s *S3Store) objectKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}

// size returns the size of the object, or ErrNotFound.
func (s *S3Store) size(ctx context.Context, key string) (int64, error) {
	out, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return 0, notFound(key)
		}
		return 0, err
	}
	return aws.Int64Value(out.ContentLength), nil
}

// checkAbsent reserves key and probes the bucket for it.
// The returned func drops the reservation.
func (s *S3Store) checkAbsent(ctx context.Context, key string) (func(), error) {
	if !s.reservations.tryReserve(key) {
		return nil, alreadyExists(key)
	}
	release := func() { s.reservations.release(key) }

	_, err := s.size(ctx, key)
	if err == nil {
		release()
		return nil, alreadyExists(key)
	}
	if !errors.Is(err, ErrNotFound) {
		release()
		return nil, err
	}
	return release, nil
}

func (s *S3Store) Upload(ctx context.Context, key string, r io.Reader, overwrite bool) error {
	if err := checkUpload(key, r); err != nil {
		return err
	}

	if !overwrite {
		release, err := s.checkAbsent(ctx, key)
		if err != nil {
			return err
		}
		defer release()
	}

	unlock, err := s.lockWrite(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	// multipart uploads only become visible once completed
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
		Body:   util.ContextReader(ctx, r),
	})
	return err
}

func (s *S3Store) Download(ctx context.Context, key string, w io.Writer, br BytesRange) error {
	if err := checkDownload(key, w); err != nil {
		return err
	}

	size, err := s.size(ctx, key)
	if err != nil {
		return err
	}
	offset, n, err := br.Resolve(size)
	if err != nil {
		return err
	}

	unlock, err := s.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if n == 0 {
		return nil
	}

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	}
	if offset != 0 || n != size {
		input.Range = aws.String(NewBytesRange(offset, n).HTTPHeader())
	}

	obj, err := s.client.GetObjectWithContext(ctx, input)
	if err != nil {
		if isS3NotFound(err) {
			return notFound(key)
		}
		return err
	}
	defer obj.Body.Close()

	_, err = io.CopyN(w, util.ContextReader(ctx, obj.Body), n)
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}

// Copy copies the object inside the bucket.
func (s *S3Store) Copy(ctx context.Context, sourceKey, targetKey string) error {
	if err := checkKey(sourceKey); err != nil {
		return err
	}
	if err := checkKey(targetKey); err != nil {
		return err
	}

	if _, err := s.size(ctx, sourceKey); err != nil {
		return err
	}

	unlockRead, err := s.lockRead(ctx)
	if err != nil {
		return err
	}
	defer unlockRead()

	release, err := s.checkAbsent(ctx, targetKey)
	if err != nil {
		return err
	}
	defer release()

	unlockWrite, err := s.lockWrite(ctx)
	if err != nil {
		return err
	}
	defer unlockWrite()

	_, err = s.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucketName),
		CopySource: aws.String(url.PathEscape(s.bucketName + "/" + s.objectKey(sourceKey))),
		Key:        aws.String(s.objectKey(targetKey)),
	})
	if isS3NotFound(err) {
		return notFound(sourceKey)
	}
	return err
}

// Delete removes the object. S3 doesn't complain about missing objects.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if key == "" {
		// nothing can be stored under the empty key
		return nil
	}
	_, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(s.objectKey(key)),
	})
	return err
}

// PublicURL returns the URL of the object below the configured base URL.
func (s *S3Store) PublicURL(key string) (string, bool) {
	if s.publicBaseURL == "" || key == "" {
		return "", false
	}
	objectKey := s.objectKey(key)
	for _, segment := range strings.Split(objectKey, "/") {
		// URL clients resolve dot segments, the URL would point elsewhere
		if segment == "." || segment == ".." {
			return "", false
		}
	}
	u := url.URL{Path: objectKey}
	return s.publicBaseURL + "/" + u.EscapedPath(), true
}
