package backup

import (
	"fmt"
	"os"
	"path"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/yourusername/remote-backup-manager/internal/config"
	"github.com/yourusername/remote-backup-manager/internal/logging"
)

// S3Uploader pushes finished archives to S3 or S3-compatible storage. The
// local archive remains the source of truth; upload failures are non-fatal
// to the job.
type S3Uploader struct {
	cfg      config.OffsiteConfig
	s3Client *s3.S3
}

// NewS3Uploader creates an uploader from the offsite configuration.
func NewS3Uploader(cfg config.OffsiteConfig) (*S3Uploader, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		),
	}

	// Custom endpoint for S3-compatible storage (MinIO, DigitalOcean Spaces, etc.)
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3Uploader{
		cfg:      cfg,
		s3Client: s3.New(sess),
	}, nil
}

// Upload copies one archive to s3://<bucket>/<prefix>/<server>/<name>.
func (u *S3Uploader) Upload(serverName, archivePath string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat archive: %w", err)
	}

	key := path.Join(u.cfg.Prefix, serverName, path.Base(archivePath))

	_, err = u.s3Client.PutObject(&s3.PutObjectInput{
		Bucket:        aws.String(u.cfg.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(info.Size()),
		ContentType:   aws.String("application/zip"),
		StorageClass:  aws.String("STANDARD"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload to S3: %w", err)
	}

	logging.L().Info("offsite_upload_complete",
		"bucket", u.cfg.Bucket,
		"key", key,
		"bytes", info.Size(),
	)
	return nil
}
