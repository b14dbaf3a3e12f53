// Package storage uploads produced clips to an S3-compatible bucket.
package storage

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Atyanta/VideoFaceDLFromYt/internal/types"
)

// Options locates the bucket.
type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
}

type objectPutter interface {
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Uploader copies clip files into the bucket, keyed like the local output tree.
type Uploader struct {
	client objectPutter
	bucket string
}

// New connects to the endpoint and creates the bucket if it is missing.
func New(ctx context.Context, opts Options) (*Uploader, error) {
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	if err := ensureBucket(ctx, client, opts.Bucket); err != nil {
		return nil, err
	}
	return &Uploader{client: client, bucket: opts.Bucket}, nil
}

func ensureBucket(ctx context.Context, client *minio.Client, bucket string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
	}
	return nil
}

// ObjectKey mirrors the local layout: {person}/{video_id}_cropped.mp4.
func ObjectKey(rec types.ClipRecord) string {
	return path.Join(rec.PersonName, rec.VideoID+"_cropped.mp4")
}

// Metadata is attached to every uploaded object.
func Metadata(rec types.ClipRecord) map[string]string {
	return map[string]string{
		"video-id":    rec.VideoID,
		"person-name": rec.PersonName,
		"start-frame": strconv.Itoa(rec.StartFrame),
		"end-frame":   strconv.Itoa(rec.EndFrame),
		"gender":      rec.Gender,
		"country":     rec.Country,
		"racial":      rec.Racial,
		"age":         rec.Age,
	}
}

// Upload puts the clip at clipPath under ObjectKey(rec) and returns the key.
func (u *Uploader) Upload(ctx context.Context, rec types.ClipRecord, clipPath string) (string, error) {
	key := ObjectKey(rec)
	_, err := u.client.FPutObject(ctx, u.bucket, key, clipPath, minio.PutObjectOptions{
		ContentType:  "video/mp4",
		UserMetadata: Metadata(rec),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}

// Record implements the pipeline sink contract.
func (u *Uploader) Record(ctx context.Context, rec types.ClipRecord, clipPath string) error {
	_, err := u.Upload(ctx, rec, clipPath)
	return err
}

func (u *Uploader) Name() string { return "object storage" }
