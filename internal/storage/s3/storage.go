// Package s3 implements storage.Backend for AWS S3 and S3-compatible stores.
package s3

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/coursewire/coursewire/internal/storage"
)

const (
	// partialPrefix is the key prefix for upload chunks
	partialPrefix = ".partial/"

	// uploadPartSize is the part size for multipart uploads (5MB minimum)
	uploadPartSize = 5 * 1024 * 1024
)

// Config holds configuration for S3 storage.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // custom endpoint for MinIO or other S3-compatible services
	AccessKeyID     string
	SecretAccessKey string
	PathStyle       bool // path-style addressing (required for MinIO)
}

// Storage implements storage.Backend against one S3 bucket.
type Storage struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
}

// New creates a Storage with the given configuration.
func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket name is required")
	}

	var optFuncs []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFuncs = append(optFuncs, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		optFuncs = append(optFuncs, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFuncs...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})

	return &Storage{
		client:   client,
		uploader: uploader,
		bucket:   cfg.Bucket,
	}, nil
}

func chunkKey(sessionID string, chunkNum int) string {
	return path.Join(partialPrefix+sessionID, fmt.Sprintf("chunk_%06d", chunkNum))
}

// SaveChunk stores one chunk as an object under the partial prefix.
func (s *Storage) SaveChunk(ctx context.Context, sessionID string, chunkNum int, data io.Reader, size int64) error {
	key := chunkKey(sessionID, chunkNum)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return storage.NewError("SaveChunk", key, err)
	}
	return nil
}

// ChunkExists reports presence and size via HeadObject.
func (s *Storage) ChunkExists(ctx context.Context, sessionID string, chunkNum int) (bool, int64, error) {
	key := chunkKey(sessionID, chunkNum)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, 0, nil
		}
		return false, 0, storage.NewError("ChunkExists", key, err)
	}
	return true, aws.ToInt64(head.ContentLength), nil
}

// GetChunk opens a stored chunk for reading.
func (s *Storage) GetChunk(ctx context.Context, sessionID string, chunkNum int) (io.ReadCloser, error) {
	key := chunkKey(sessionID, chunkNum)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, storage.NewError("GetChunk", key, err)
	}
	return out.Body, nil
}

// DeleteChunks lists and deletes every object under the session's prefix.
func (s *Storage) DeleteChunks(ctx context.Context, sessionID string) error {
	prefix := partialPrefix + sessionID + "/"

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return storage.NewError("DeleteChunks", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}
		_, err = s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return storage.NewError("DeleteChunks", prefix, err)
		}
	}

	return nil
}

// AssembleChunks streams the chunks, in order, through a pipe into a
// multipart upload of the destination object, hashing along the way.
func (s *Storage) AssembleChunks(ctx context.Context, sessionID string, totalChunks int, destName string) (string, int64, error) {
	hasher := sha256.New()
	pr, pw := io.Pipe()

	var written int64
	copyErr := make(chan error, 1)
	go func() {
		defer pw.Close()
		for i := 0; i < totalChunks; i++ {
			chunk, err := s.GetChunk(ctx, sessionID, i)
			if err != nil {
				copyErr <- err
				pw.CloseWithError(err)
				return
			}
			n, err := io.Copy(io.MultiWriter(pw, hasher), chunk)
			chunk.Close()
			if err != nil {
				copyErr <- err
				pw.CloseWithError(err)
				return
			}
			written += n
		}
		copyErr <- nil
	}()

	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(destName),
		Body:   pr,
	})
	if cerr := <-copyErr; cerr != nil {
		return "", 0, storage.NewError("AssembleChunks", destName, cerr)
	}
	if err != nil {
		return "", 0, storage.NewError("AssembleChunks", destName, err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), written, nil
}

// Retrieve opens a stored object for reading.
func (s *Storage) Retrieve(ctx context.Context, name string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, storage.NewError("Retrieve", name, err)
	}
	return out.Body, nil
}

// Store writes an object directly.
func (s *Storage) Store(ctx context.Context, name string, data io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
		Body:   data,
	})
	if err != nil {
		return storage.NewError("Store", name, err)
	}
	return nil
}

// Delete removes a stored object.
func (s *Storage) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return storage.NewError("Delete", name, err)
	}
	return nil
}
