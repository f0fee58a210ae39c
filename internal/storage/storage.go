// Package storage は写真・アバター画像のオブジェクトストレージを提供する。
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/google/uuid"
)

// ObjectStorage はアップロード機能のインターフェース。
// アップロード成功時は公開URLを返す。
type ObjectStorage interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Config はS3ストレージの設定。
type Config struct {
	Bucket string
	Region string
	// PublicBaseURL は公開URL構築のベース（CloudFront等）。
	// 空の場合はS3の標準URLを使用する。
	PublicBaseURL string
}

// S3Storage はAmazon S3によるObjectStorageの実装。
type S3Storage struct {
	uploader *s3manager.Uploader
	config   Config
}

// NewS3Storage はS3Storageを生成する。
// 認証情報はSDKの標準チェーン（環境変数、IAMロール）から解決される。
func NewS3Storage(config Config) (*S3Storage, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return &S3Storage{
		uploader: s3manager.NewUploader(sess),
		config:   config,
	}, nil
}

// Upload はオブジェクトをアップロードし、公開URLを返す。
func (s *S3Storage) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	_, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.config.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	if s.config.PublicBaseURL != "" {
		return strings.TrimSuffix(s.config.PublicBaseURL, "/") + "/" + key, nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.config.Bucket, s.config.Region, key), nil
}

// ObjectKey は衝突しないオブジェクトキーを生成する。
// 元のファイル名は拡張子のみ引き継ぐ（ファイル名にユーザー入力を残さない）。
func ObjectKey(prefix, filename string) string {
	ext := strings.ToLower(path.Ext(filename))
	return fmt.Sprintf("%s/%s%s", prefix, uuid.New().String(), ext)
}

// compile-time interface check
var _ ObjectStorage = (*S3Storage)(nil)
