package store

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/exp/mmap"
)

// FileSource reads block objects from a local directory through
// read-only memory maps. ReadObject returns a copy of the whole object;
// the mapping is released before it returns.
type FileSource struct {
	dir string
}

// NewFileSource returns a source rooted at dir
func NewFileSource(dir string) *FileSource {
	return &FileSource{dir: dir}
}

func (f *FileSource) ReadObject(ctx context.Context, name string) ([]byte, error) {
	if !filepath.IsLocal(name) {
		return nil, unavailable("open "+name, fmt.Errorf("object name escapes %s", f.dir))
	}
	if err := ctx.Err(); err != nil {
		return nil, unavailable("open "+name, err)
	}

	r, err := mmap.Open(filepath.Join(f.dir, name))
	if err != nil {
		return nil, unavailable("open "+name, err)
	}
	defer r.Close()

	buf := make([]byte, r.Len())
	if _, err := r.ReadAt(buf, 0); err != nil && err != io.EOF {
		return nil, unavailable("read "+name, err)
	}
	return buf, nil
}

func (f *FileSource) Close() error { return nil }

// s3API is the part of the S3 client a S3Source needs
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Options locates a block layout in a bucket
type S3Options struct {
	Bucket string
	Prefix string
	Region string
	// Endpoint overrides the S3 endpoint, e.g. for MinIO.
	Endpoint     string
	UsePathStyle bool
	// Static credentials; empty uses the default provider chain.
	AccessKeyID     string
	SecretAccessKey string
}

// S3Source reads block objects from S3
type S3Source struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Source builds an S3 client from the default AWS configuration
func NewS3Source(ctx context.Context, opts S3Options) (*S3Source, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, unavailable("load aws config", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return newS3SourceWithClient(client, opts.Bucket, opts.Prefix), nil
}

func newS3SourceWithClient(client s3API, bucket, prefix string) *S3Source {
	return &S3Source{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Source) ReadObject(ctx context.Context, name string) ([]byte, error) {
	key := path.Join(s.prefix, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, unavailable(fmt.Sprintf("get s3://%s/%s", s.bucket, key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, unavailable(fmt.Sprintf("read s3://%s/%s", s.bucket, key), err)
	}
	return data, nil
}

func (s *S3Source) Close() error { return nil }

var (
	_ BlockSource = (*FileSource)(nil)
	_ BlockSource = (*S3Source)(nil)
)
