package s3

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/sync/singleflight"

	"github.com/OFFIS-RIT/graphrag/pkg/loader"
)

// S3Source loads documents from an S3 bucket. It uses the AWS SDK v2 for
// Go and works with S3 compatible storage like MinIO.
type S3Source struct {
	bucket string
	client *s3.Client

	cache   map[string][]byte
	cacheMu sync.RWMutex
	group   singleflight.Group
}

// NewS3Source creates a source reading from bucket.
func NewS3Source(bucket string, client *s3.Client) *S3Source {
	return &S3Source{
		bucket: bucket,
		client: client,
		cache:  make(map[string][]byte),
	}
}

// Fetch retrieves the object at ref.Path. Results are cached.
func (l *S3Source) Fetch(ctx context.Context, ref loader.DocumentRef) ([]byte, error) {
	cacheKey := loader.CacheKey(ref)

	l.cacheMu.RLock()
	if cached, ok := l.cache[cacheKey]; ok {
		l.cacheMu.RUnlock()
		return cached, nil
	}
	l.cacheMu.RUnlock()

	result, err, _ := l.group.Do(cacheKey, func() (any, error) {
		out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(ref.Path),
		})
		if err != nil {
			return nil, err
		}
		defer out.Body.Close()

		buf := new(bytes.Buffer)
		if _, err := io.Copy(buf, out.Body); err != nil {
			return nil, err
		}
		byts := buf.Bytes()

		l.cacheMu.Lock()
		l.cache[cacheKey] = byts
		l.cacheMu.Unlock()

		return byts, nil
	})
	if err != nil {
		return nil, err
	}

	return result.([]byte), nil
}

// Prefix lists every supported object below prefix.
func (l *S3Source) Prefix(ctx context.Context, prefix string) ([]loader.DocumentRef, error) {
	var refs []loader.DocumentRef
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(prefix),
	}

	for {
		out, err := l.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, err
		}
		for _, obj := range out.Contents {
			if obj.Key == nil {
				continue
			}
			format, ok := loader.FormatFromPath(*obj.Key)
			if !ok {
				continue
			}
			refs = append(refs, loader.DocumentRef{
				ID:     loader.DocumentID(*obj.Key),
				Path:   *obj.Key,
				Format: format,
				Source: l,
			})
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		input.ContinuationToken = out.NextContinuationToken
	}

	return refs, nil
}
