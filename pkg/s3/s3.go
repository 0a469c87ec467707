package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"
	"github.com/google/uuid"
)

var ErrEmptyObject = errors.New("refusing to upload an empty object")

// ItfS3 stores blobs under a fresh random key and returns a public URL.
type ItfS3 interface {
	Upload(ctx context.Context, data []byte, prefix string, contentType string) (string, error)
}

type s3Client struct {
	uploader      s3manageriface.UploaderAPI
	bucketName    string
	publicBaseURL string
}

func New() (ItfS3, error) {
	sess, err := newSession()
	if err != nil {
		return nil, err
	}

	bucket := os.Getenv("AWS_BUCKET_NAME")
	if bucket == "" {
		return nil, errors.New("AWS_BUCKET_NAME is required")
	}

	return NewWithUploader(s3manager.NewUploader(sess), bucket, os.Getenv("AWS_PUBLIC_BASE_URL")), nil
}

func NewWithUploader(uploader s3manageriface.UploaderAPI, bucket, publicBaseURL string) ItfS3 {
	return &s3Client{
		uploader:      uploader,
		bucketName:    bucket,
		publicBaseURL: strings.TrimSuffix(publicBaseURL, "/"),
	}
}

func (s *s3Client) Upload(ctx context.Context, data []byte, prefix string, contentType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyObject
	}

	key := objectKey(prefix, contentType)

	output, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		ACL:         aws.String(s3.ObjectCannedACLPublicRead),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	if s.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s", s.publicBaseURL, key), nil
	}

	return output.Location, nil
}

func objectKey(prefix, contentType string) string {
	ext := ".bin"
	switch contentType {
	case "image/jpeg":
		ext = ".jpg"
	case "image/png":
		ext = ".png"
	}

	name := uuid.NewString() + ext
	if prefix == "" {
		return name
	}
	return strings.Trim(prefix, "/") + "/" + name
}

func newSession() (*session.Session, error) {
	return session.NewSession(&aws.Config{
		Region: aws.String(os.Getenv("AWS_REGION")),
		Credentials: credentials.NewStaticCredentials(
			os.Getenv("AWS_ACCESS_KEY_ID"),
			os.Getenv("AWS_SECRET_ACCESS_KEY"),
			"",
		),
	})
}
