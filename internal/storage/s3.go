package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Params configures the S3 client. Endpoint may point to any S3
// compatible service like MinIO.
type S3Params struct {
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
}

func NewS3Client(ctx context.Context, params S3Params) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(params.Region),
	}
	if params.Endpoint != "" {
		opts = append(opts, config.WithBaseEndpoint(params.Endpoint))
	}
	if params.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return client, nil
}

// Bucket reads and writes objects of one bucket.
type Bucket struct {
	client *s3.Client
	name   string
}

func NewBucket(client *s3.Client, name string) *Bucket {
	return &Bucket{client: client, name: name}
}

func (b *Bucket) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.name),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("object %s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get object from S3: %w", err)
	}
	defer result.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, result.Body); err != nil {
		return nil, fmt.Errorf("failed to read object contents: %w", err)
	}
	return buf.Bytes(), nil
}

func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.name),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object to S3: %w", err)
	}
	return nil
}

// DeletePrefix removes every object below prefix.
func (b *Bucket) DeletePrefix(ctx context.Context, prefix string) error {
	listInput := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.name),
		Prefix: aws.String(prefix),
	}

	for {
		listOutput, err := b.client.ListObjectsV2(ctx, listInput)
		if err != nil {
			return fmt.Errorf("failed to list objects in folder %s: %w", prefix, err)
		}
		if len(listOutput.Contents) == 0 {
			break
		}

		var objectsToDelete []types.ObjectIdentifier
		for _, obj := range listOutput.Contents {
			objectsToDelete = append(objectsToDelete, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = b.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(b.name),
			Delete: &types.Delete{
				Objects: objectsToDelete,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to delete objects in folder %s: %w", prefix, err)
		}

		if listOutput.IsTruncated == nil || !*listOutput.IsTruncated {
			break
		}
		listInput.ContinuationToken = listOutput.NextContinuationToken
	}

	return nil
}
