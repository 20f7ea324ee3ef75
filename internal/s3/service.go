package s3

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/memberbill/memberbill/internal/config"
	ierr "github.com/memberbill/memberbill/internal/errors"
)

const (
	defaultPresignExpiryDuration = 30 * time.Minute
)

var (
	validDocumentTypes = []DocumentType{DocumentTypeBatchExport}
)

type Service interface {
	UploadDocument(ctx context.Context, document *Document) error
	GetPresignedUrl(ctx context.Context, id string, docType DocumentType) (string, error)
	GetDocument(ctx context.Context, id string, docType DocumentType) ([]byte, error)
	Exists(ctx context.Context, id string, docType DocumentType) (bool, error)
	ObjectKey(id string, docType DocumentType) (string, error)
	Bucket(docType DocumentType) string
}

type s3ServiceImpl struct {
	client *s3.Client
	config *config.ExportConfig
}

func NewService(config *config.Configuration) (Service, error) {
	if !config.Export.Enabled {
		return nil, nil
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(context.Background(),
		awsConfig.WithRegion(config.Export.Region),
	)
	if err != nil {
		return nil, ierr.WithError(err).WithHint("failed to load aws config").
			Mark(ierr.ErrHTTPClient)
	}

	return &s3ServiceImpl{
		config: &config.Export,
		client: s3.NewFromConfig(awsCfg),
	}, nil
}

// ObjectKey returns the bucket key a document of the given type is stored
// under
func (s *s3ServiceImpl) ObjectKey(id string, docType DocumentType) (string, error) {
	switch docType {
	case DocumentTypeBatchExport:
		ext := "csv"
		if s.config.Compression {
			ext = "csv.gz"
		}
		if s.config.KeyPrefix != "" {
			return fmt.Sprintf("%s/%s.%s", s.config.KeyPrefix, id, ext), nil
		}
		return fmt.Sprintf("%s.%s", id, ext), nil
	default:
		return "", ierr.NewErrorf("invalid doc type: %s", docType).
			WithHintf("valid doc types are: %v", validDocumentTypes).
			Mark(ierr.ErrSystem)
	}
}

// Bucket returns the bucket documents of the given type are stored in
func (s *s3ServiceImpl) Bucket(docType DocumentType) string {
	switch docType {
	case DocumentTypeBatchExport:
		return s.config.Bucket
	default:
		return ""
	}
}

func (s *s3ServiceImpl) getContentType(docKind DocumentKind) string {
	switch docKind {
	case DocumentKindCSV:
		return "text/csv"
	default:
		return "application/octet-stream"
	}
}

// Exists implements Service.
func (s *s3ServiceImpl) Exists(ctx context.Context, id string, docType DocumentType) (bool, error) {
	key, err := s.ObjectKey(id, docType)
	if err != nil {
		return false, err
	}

	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket(docType)),
		Key:    aws.String(key),
	})

	if err != nil {
		var nsk *types.NoSuchKey
		var nske *types.NotFound
		if errors.As(err, &nsk) || errors.As(err, &nske) {
			return false, nil
		}
		return false, ierr.NewErrorf("failed to check if document exists: %w", err).
			Mark(ierr.ErrHTTPClient)
	}

	return true, nil
}

// GetPresignedUrl implements Service.
func (s *s3ServiceImpl) GetPresignedUrl(ctx context.Context, id string, docType DocumentType) (string, error) {
	key, err := s.ObjectKey(id, docType)
	if err != nil {
		return "", err
	}

	presigner := s3.NewPresignClient(s.client)
	result, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket(docType)),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(defaultPresignExpiryDuration))
	if err != nil {
		return "", ierr.WithError(err).WithHint("failed to get presigned url").
			WithMessagef("bucket:%s, key:%s", s.Bucket(docType), key).
			Mark(ierr.ErrHTTPClient)
	}

	return result.URL, nil
}

// UploadDocument implements Service.
func (s *s3ServiceImpl) UploadDocument(ctx context.Context, document *Document) error {
	key, err := s.ObjectKey(document.ID, document.Type)
	if err != nil {
		return err
	}

	body := document.Data
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket(document.Type)),
		Key:         aws.String(key),
		ContentType: aws.String(s.getContentType(document.Kind)),
	}

	if s.config.Compression {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		if _, err := gz.Write(body); err != nil {
			return ierr.WithError(err).WithHint("failed to compress document").
				Mark(ierr.ErrSystem)
		}
		if err := gz.Close(); err != nil {
			return ierr.WithError(err).WithHint("failed to compress document").
				Mark(ierr.ErrSystem)
		}
		body = buf.Bytes()
		input.ContentEncoding = aws.String("gzip")
	}

	if s.config.SSE != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(s.config.SSE)
		if s.config.KMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(s.config.KMSKeyID)
		}
	}

	input.Body = bytes.NewReader(body)

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return ierr.WithError(err).WithHint("failed to upload document").
			WithMessagef("bucket:%s, key:%s", s.Bucket(document.Type), key).
			Mark(ierr.ErrHTTPClient)
	}

	return nil
}

// GetDocument implements Service.
func (s *s3ServiceImpl) GetDocument(ctx context.Context, id string, docType DocumentType) ([]byte, error) {
	key, err := s.ObjectKey(id, docType)
	if err != nil {
		return nil, err
	}

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket(docType)),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ierr.WithError(err).WithHint("failed to get document").
			WithMessagef("bucket:%s, key:%s", s.Bucket(docType), key).
			Mark(ierr.ErrHTTPClient)
	}

	defer result.Body.Close()

	reader := io.Reader(result.Body)
	if s.config.Compression {
		gz, err := gzip.NewReader(result.Body)
		if err != nil {
			return nil, ierr.WithError(err).WithHint("failed to decompress document").
				Mark(ierr.ErrSystem)
		}
		defer gz.Close()
		reader = gz
	}

	return io.ReadAll(reader)
}
