package s3

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const (
	defaultTimeout = 30 * time.Second
	copyTimeout    = 5 * time.Minute

	// deleteBatchSize соответствует лимиту DeleteObjects у S3-совместимых бэкендов
	deleteBatchSize = 1000
)

// Client предоставляет методы для работы с S3-совместимым хранилищем
type Client struct {
	client *awss3.Client
	bucket string
}

// NewClient создает новый экземпляр клиента S3
func NewClient(conf *Config) (*Client, error) {
	if conf == nil {
		return nil, fmt.Errorf("configuration is required")
	}

	if conf.AccessKeyID == "" || conf.SecretAccessKey == "" || conf.Bucket == "" {
		return nil, fmt.Errorf("missing required configuration: accessKeyID, secretAccessKey, and bucket are required")
	}

	creds := aws.NewCredentialsCache(credentials.NewStaticCredentialsProvider(
		conf.AccessKeyID,
		conf.SecretAccessKey,
		"",
	))

	client := awss3.New(awss3.Options{
		BaseEndpoint:     aws.String(conf.Endpoint),
		Region:           conf.Region,
		Credentials:      creds,
		RetryMode:        aws.RetryModeAdaptive,
		RetryMaxAttempts: 3,
	})

	s3Client := &Client{
		client: client,
		bucket: conf.Bucket,
	}

	// Проверяем подключение к бакету
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	_, err := s3Client.client.HeadBucket(ctx, &awss3.HeadBucketInput{
		Bucket: aws.String(conf.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to access bucket %s: %w", conf.Bucket, err)
	}

	return s3Client, nil
}

// CopyObject выполняет серверное копирование внутри бакета
func (h *Client) CopyObject(ctx context.Context, srcKey, destKey string) error {
	if srcKey == "" || destKey == "" {
		return fmt.Errorf("source and destination keys are required")
	}
	if srcKey == destKey {
		return fmt.Errorf("destination key must differ from source key")
	}

	ctx, cancel := context.WithTimeout(ctx, copyTimeout)
	defer cancel()

	copySource := fmt.Sprintf("%s/%s", h.bucket, url.PathEscape(srcKey))
	_, err := h.client.CopyObject(ctx, &awss3.CopyObjectInput{
		Bucket:     aws.String(h.bucket),
		Key:        aws.String(destKey),
		CopySource: aws.String(copySource),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return fmt.Errorf("source object not found: %s", srcKey)
		}
		return fmt.Errorf("failed to copy object in S3: %w", err)
	}

	return nil
}

// DeleteObject удаляет объект из S3
func (h *Client) DeleteObject(ctx context.Context, key string) error {
	if key == "" {
		return fmt.Errorf("key is required")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := h.client.DeleteObject(ctx, &awss3.DeleteObjectInput{
		Bucket: aws.String(h.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		// Отсутствующий объект считаем удаленным
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil
		}
		return fmt.Errorf("failed to delete object from S3: %w", err)
	}

	return nil
}

// DeleteObjects удаляет пакет объектов, по deleteBatchSize ключей на запрос
func (h *Client) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		batch := keys[start:end]
		objects := make([]types.ObjectIdentifier, 0, len(batch))
		for _, key := range batch {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
		}

		batchCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
		_, err := h.client.DeleteObjects(batchCtx, &awss3.DeleteObjectsInput{
			Bucket: aws.String(h.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		cancel()
		if err != nil {
			return fmt.Errorf("failed to delete objects batch from S3: %w", err)
		}

		log.Printf("[S3] Deleted batch of %d objects", len(batch))
	}

	return nil
}
