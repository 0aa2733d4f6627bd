// Пакет blobstore — клиент S3-совместимого хранилища снимков.
//
// Ключи хранилища и подписанные URL выдаются только сервером;
// долгоживущие ключи доступа никогда не покидают процесс.
package blobstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config — параметры подключения к хранилищу.
type Config struct {
	// Endpoint — адрес S3-совместимого хранилища (пустой — AWS)
	Endpoint string
	// Region — регион
	Region string
	// Bucket — имя bucket
	Bucket string
	// AccessKey, SecretKey — ключи доступа
	AccessKey string
	SecretKey string
	// UsePathStyle — path-style адресация (MinIO и совместимые)
	UsePathStyle bool
	// PresignTTL — время жизни подписанных URL
	PresignTTL time.Duration
}

// objectAPI — подмножество операций S3-клиента, используемое Client.
// Выделено в интерфейс для подмены в тестах.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// presignAPI — операции подписи URL.
type presignAPI interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Client — клиент хранилища снимков.
type Client struct {
	api          objectAPI
	presigner    presignAPI
	bucket       string
	endpoint     string
	region       string
	usePathStyle bool
	presignTTL   time.Duration
	logger       *slog.Logger
}

// New создаёт клиент хранилища со статическими ключами доступа.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	awsConfig, err := awscfg.LoadDefaultConfig(ctx,
		awscfg.WithRegion(cfg.Region),
		awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("blobstore: загрузка конфигурации AWS: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &Client{
		api:          s3Client,
		presigner:    s3.NewPresignClient(s3Client),
		bucket:       cfg.Bucket,
		endpoint:     strings.TrimRight(cfg.Endpoint, "/"),
		region:       cfg.Region,
		usePathStyle: cfg.UsePathStyle,
		presignTTL:   cfg.PresignTTL,
		logger:       logger.With(slog.String("component", "blobstore")),
	}, nil
}

// Upload загружает снимок одним put-object и возвращает публичный URL
// (не подписанный).
func (c *Client) Upload(ctx context.Context, key, contentType string, body io.Reader, size int64) (string, error) {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", fmt.Errorf("blobstore: загрузка %s: %w", key, err)
	}

	c.logger.Debug("снимок загружен",
		slog.String("key", key),
		slog.Int64("size", size),
	)
	return c.PublicURL(key), nil
}

// PresignPut выдаёт подписанный URL для прямой загрузки снимка клиентом.
// Клиент получает короткоживущий URL вместо ключей доступа.
func (c *Client) PresignPut(ctx context.Context, key, contentType string) (string, time.Duration, error) {
	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, func(o *s3.PresignOptions) { o.Expires = c.presignTTL })
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: подпись PUT %s: %w", key, err)
	}
	return req.URL, c.presignTTL, nil
}

// SignedGetURL выдаёт подписанный URL для чтения снимка.
func (c *Client) SignedGetURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = c.presignTTL
	}
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", fmt.Errorf("blobstore: подпись GET %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete удаляет объект. Используется сборщиком мусора.
func (c *Client) Delete(ctx context.Context, key string) error {
	_, err := c.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("blobstore: удаление %s: %w", key, err)
	}
	return nil
}

// PublicURL строит публичный URL объекта по ключу.
func (c *Client) PublicURL(key string) string {
	if c.endpoint != "" {
		if c.usePathStyle {
			return fmt.Sprintf("%s/%s/%s", c.endpoint, c.bucket, key)
		}
		return fmt.Sprintf("%s/%s", c.endpoint, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.bucket, c.region, key)
}

// CheckReady проверяет доступность bucket.
// Используется в readiness probe и dephealth.
func (c *Client) CheckReady(ctx context.Context) error {
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("blobstore: bucket %s недоступен: %w", c.bucket, err)
	}
	return nil
}

// ReadinessChecker — проверка готовности хранилища для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	client *Client
}

// NewReadinessChecker создаёт проверку готовности хранилища.
func NewReadinessChecker(client *Client) *ReadinessChecker {
	return &ReadinessChecker{client: client}
}

// CheckReady проверяет доступность bucket через HeadBucket.
// Возвращает статус ("ok", "fail") и сообщение.
func (r *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := r.client.CheckReady(ctx); err != nil {
		return "fail", err.Error()
	}
	return "ok", "bucket доступен"
}
