package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Storage implements Store for S3-compatible object storage. Objects are
// keyed "<class>/<name>".
type S3Storage struct {
	Client     *minio.Client
	BucketName string
	PublicURL  string
	logger     *slog.Logger
}

func NewS3Storage(ctx context.Context, endpoint, accessKey, secretKey, bucket, region, publicURL string, useSSL bool, logger *slog.Logger) (*S3Storage, error) {
	// Strip scheme if present
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")

	var creds *credentials.Credentials
	if accessKey == "" || secretKey == "" {
		// Use IAM role credentials if keys are not provided
		creds = credentials.NewIAM("")
	} else {
		creds = credentials.NewStaticV4(accessKey, secretKey, "")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	return &S3Storage{
		Client:     client,
		BucketName: bucket,
		PublicURL:  s3PublicURL(publicURL, endpoint, bucket, useSSL),
		logger:     logger,
	}, nil
}

func s3PublicURL(publicURL, endpoint, bucket string, useSSL bool) string {
	if publicURL == "" {
		protocol := "http"
		if useSSL {
			protocol = "https"
		}
		publicURL = fmt.Sprintf("%s://%s.%s", protocol, bucket, endpoint)
	}
	return strings.TrimSuffix(publicURL, "/")
}

// objectKey builds the bucket key for a reference; only its base name is kept.
func objectKey(class AssetClass, ref string) string {
	name := baseName(ref)
	if name == "" {
		return ""
	}
	return string(class) + "/" + name
}

func (s3 *S3Storage) SaveImage(ctx context.Context, class AssetClass, src io.Reader) (string, error) {
	key := objectKey(class, NewAssetName())

	var buf bytes.Buffer
	if err := Normalize(src, &buf); err != nil {
		s3.logger.Error("IMAGE_PROCESSING_ERROR", "path", key, "error", err)
		return "", err
	}

	_, err := s3.Client.PutObject(ctx, s3.BucketName, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{
		ContentType: "image/webp",
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s", s3.PublicURL, key), nil
}

func (s3 *S3Storage) Delete(ctx context.Context, class AssetClass, ref string) error {
	if IsDefaultAsset(ref) {
		return nil
	}
	key := objectKey(class, ref)
	if key == "" {
		return fmt.Errorf("unusable asset reference %q", ref)
	}
	return s3.Client.RemoveObject(ctx, s3.BucketName, key, minio.RemoveObjectOptions{})
}
