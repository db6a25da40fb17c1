package anchor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/roach88/tether/internal/model"
)

// S3Config configures an S3Anchor.
type S3Config struct {
	Bucket   string
	Region   string
	Endpoint string // S3-compatible services such as MinIO
	// Static credentials. Empty means the default AWS credential chain.
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
	// GatewayURL, when set, is joined with the object key to form receipt
	// URLs. Otherwise receipts use s3://bucket/key.
	GatewayURL string
}

// s3API is the subset of *s3.Client the anchor uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// S3Anchor stores blobs as objects named <prefix><cid>.
type S3Anchor struct {
	client s3API
	cfg    S3Config
}

var _ Anchor = (*S3Anchor)(nil)

// NewS3 builds an S3 client from cfg.
func NewS3(ctx context.Context, cfg S3Config) (*S3Anchor, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 anchor: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}
	return newS3Anchor(s3.NewFromConfig(awsCfg, s3Opts...), cfg), nil
}

func newS3Anchor(client s3API, cfg S3Config) *S3Anchor {
	return &S3Anchor{client: client, cfg: cfg}
}

func (a *S3Anchor) key(cid string) string {
	return a.cfg.Prefix + cid
}

func (a *S3Anchor) url(cid string) string {
	if a.cfg.GatewayURL != "" {
		return strings.TrimSuffix(a.cfg.GatewayURL, "/") + "/" + a.key(cid)
	}
	return "s3://" + a.cfg.Bucket + "/" + a.key(cid)
}

// Put uploads data under its content id.
func (a *S3Anchor) Put(ctx context.Context, data []byte) (Receipt, error) {
	cid := model.ContentID(data)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.cfg.Bucket),
		Key:         aws.String(a.key(cid)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("s3 put object: %w", err)
	}
	return Receipt{CID: cid, URL: a.url(cid), Size: len(data)}, nil
}

// Get downloads and verifies the blob for cid.
func (a *S3Anchor) Get(ctx context.Context, cid string) ([]byte, error) {
	if err := checkCID("s3 get object", cid); err != nil {
		return nil, err
	}

	resp, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(a.key(cid)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read body: %w", err)
	}
	if err := verify(cid, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Has reports whether the object for cid exists.
func (a *S3Anchor) Has(ctx context.Context, cid string) (bool, error) {
	if err := checkCID("s3 head object", cid); err != nil {
		return false, err
	}

	_, err := a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.cfg.Bucket),
		Key:    aws.String(a.key(cid)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3 head object: %w", err)
	}
	return true, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (a *S3Anchor) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	var nf *s3types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &nf)
}
