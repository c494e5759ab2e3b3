// Package storage はS3互換オブジェクトストレージへのアクセスを提供する。
package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectStore はオブジェクトストレージのインターフェース。
type ObjectStore interface {
	// Put は指定キーにオブジェクトをpublic-readでアップロードする。
	// 同一キーの既存オブジェクトは上書きされる。
	Put(ctx context.Context, key string, body []byte, contentType string) error

	// PublicURL は指定キーの公開URLを返す。
	PublicURL(key string) string
}

// Options はS3Storeの接続設定。
// BaseEndpointを指定するとMinIO等のS3互換ストレージに接続できる。
type Options struct {
	Bucket        string
	Region        string
	BaseEndpoint  string
	AccessKey     string
	SecretKey     string
	PublicBaseURL string
}

// S3Store はaws-sdk-go-v2を使用したObjectStoreの実装。
type S3Store struct {
	client        *s3.Client
	bucket        string
	publicBaseURL string
}

// NewS3Store はS3Storeを生成する。
// AccessKey/SecretKeyが空の場合はSDKのデフォルト認証チェーンを使用する。
func NewS3Store(ctx context.Context, opts Options) (*S3Store, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(opts.BaseEndpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:        client,
		bucket:        opts.Bucket,
		publicBaseURL: strings.TrimSuffix(opts.PublicBaseURL, "/"),
	}, nil
}

// Put は指定キーにオブジェクトをpublic-readでアップロードする。
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
		ACL:         types.ObjectCannedACLPublicRead,
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}

	return nil
}

// PublicURL は指定キーの公開URLを返す。
func (s *S3Store) PublicURL(key string) string {
	return s.publicBaseURL + "/" + key
}

// compile-time interface check
var _ ObjectStore = (*S3Store)(nil)
