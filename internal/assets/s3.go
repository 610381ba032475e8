package assets

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/scottdmilner/pipebot/internal/config"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store keeps assets as objects under a key prefix in an S3-compatible bucket.
type S3Store struct {
	client        S3API
	bucket        string
	prefix        string
	publicBaseURL string
}

// NewS3Store creates a store over an existing client.
func NewS3Store(client S3API, bucket, prefix, publicBaseURL string) *S3Store {
	if prefix == "" {
		prefix = DefaultNamespace
	}
	return &S3Store{
		client:        client,
		bucket:        bucket,
		prefix:        strings.Trim(prefix, "/"),
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// NewS3StoreFromConfig builds an S3 client from the assets config section.
// Static credentials are used when both keys are set; otherwise the default
// AWS credential chain applies.
func NewS3StoreFromConfig(ctx context.Context, ac config.AssetsConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(ac.S3.Region),
	}
	if ac.S3.AccessKeyID != "" && ac.S3.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(ac.S3.AccessKeyID, ac.S3.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if ac.S3.Endpoint != "" {
			o.BaseEndpoint = aws.String(ac.S3.Endpoint)
		}
		o.UsePathStyle = ac.S3.ForcePathStyle
	})

	return NewS3Store(client, ac.S3.Bucket, ac.Namespace, ac.S3.PublicBaseURL), nil
}

func (s *S3Store) key(path string) string {
	return s.prefix + "/" + path
}

// Exists issues a HEAD for the object.
func (s *S3Store) Exists(ctx context.Context, path string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(path)),
	})
	if err == nil {
		return true, nil
	}
	if isAPIError(err, "NotFound", "NoSuchKey") {
		return false, nil
	}
	return false, fmt.Errorf("head object %s: %w", s.key(path), err)
}

// Create puts the object only if no object exists at the key. Objects carry
// no commit message, so message is unused.
func (s *S3Store) Create(ctx context.Context, path string, content []byte, _ string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(path)),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String(http.DetectContentType(content)),
		IfNoneMatch:   aws.String("*"),
	})
	if err == nil {
		return nil
	}
	if isAPIError(err, "PreconditionFailed") {
		return ErrExists
	}
	err = fmt.Errorf("put object %s: %w", s.key(path), err)
	if !isAPIError(err, "ConditionalRequestConflict") {
		return err
	}

	// A conflict means a concurrent write raced ours; it may not have landed.
	exists, headErr := s.Exists(ctx, path)
	if headErr != nil {
		return fmt.Errorf("%w (re-check failed: %v)", err, headErr)
	}
	if exists {
		return ErrExists
	}
	return err
}

// URL joins the public base URL and the object key.
func (s *S3Store) URL(path string) string {
	return s.publicBaseURL + "/" + s.key(path)
}

func isAPIError(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
