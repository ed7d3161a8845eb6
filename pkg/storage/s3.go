package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const (
	// FolderVariantAudio is the S3 prefix for full-script variant audio.
	FolderVariantAudio = "audio"
	// FolderReflectionAudio is the S3 prefix for per-reflection audio.
	FolderReflectionAudio = "reflections"
	// AudioContentType is the MIME type of raw 16 kHz 16-bit mono PCM.
	AudioContentType = "audio/L16"
)

// S3Config holds S3 client configuration.
type S3Config struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	AudioBucket          string
	PresignExpireMinutes int
}

// S3 stores synthesized audio payloads and hands out pre-signed URLs so the
// API never streams PCM through itself.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the
// environment (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	} else if logger != nil {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024
	})
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3{client: client, uploader: uploader, cfg: cfg, logger: logger}, nil
}

// VariantAudioKey returns the object key for a variant's script audio:
// audio/{report_id}/{language_key}.pcm.
func VariantAudioKey(reportID, languageKey string) string {
	return path.Join(FolderVariantAudio, reportID, languageKey+".pcm")
}

// ReflectionAudioKey returns the object key for one reflection line:
// reflections/{report_id}/{seq}_{language_key}.pcm.
func ReflectionAudioKey(reportID string, seq int, languageKey string) string {
	return path.Join(FolderReflectionAudio, reportID, fmt.Sprintf("%d_%s.pcm", seq, languageKey))
}

// UploadAudio writes a PCM payload to the audio bucket and returns the key.
func (s *S3) UploadAudio(ctx context.Context, key string, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", fmt.Errorf("empty audio payload")
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.AudioBucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pcm),
		ContentType: aws.String(AudioContentType),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload: %w", err)
	}
	s.logger.Debug("audio uploaded", zap.String("key", key), zap.Int("bytes", len(pcm)))
	return key, nil
}

// PresignAudioURL returns a pre-signed GET URL for an audio object. The URL
// is the opaque payload reference handed to playback clients.
func (s *S3) PresignAudioURL(ctx context.Context, key string) (string, error) {
	expire := time.Duration(s.cfg.PresignExpireMinutes) * time.Minute
	if expire <= 0 {
		expire = 15 * time.Minute
	}
	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.AudioBucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expire
	})
	if err != nil {
		return "", fmt.Errorf("presign get: %w", err)
	}
	return req.URL, nil
}

// DeleteAudio removes an audio object; missing objects are not an error.
func (s *S3) DeleteAudio(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.AudioBucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete: %w", err)
	}
	return nil
}
