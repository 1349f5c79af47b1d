// Package storage issues presigned S3 upload URLs for profile and post images.
// The server never proxies image bytes; clients PUT directly to the bucket and
// store the returned public URL on the user or post.
package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/id"
)

// MaxUploadSize is the largest image accepted.
const MaxUploadSize int64 = 10 << 20

// DefaultURLExpiry is how long a presigned upload URL stays valid.
const DefaultURLExpiry = 15 * time.Minute

// Kind groups uploads by where the image is used.
type Kind string

const (
	KindAvatar Kind = "avatar"
	KindCover  Kind = "cover"
	KindPost   Kind = "post"
)

// allowedTypes maps accepted content types to file extensions.
var allowedTypes = map[string]string{
	"image/jpeg": "jpg",
	"image/png":  "png",
	"image/webp": "webp",
	"image/gif":  "gif",
}

// Config configures the S3 client.
type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // Custom endpoint for S3 compatible services (MinIO, R2)
	AccessKey string
	SecretKey string
	PublicURL string // Base URL objects are served from; derived from the endpoint when empty
	PathStyle bool
	URLExpiry time.Duration
}

// Enabled reports whether enough is configured to sign uploads.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

// Request describes an upload the client wants to make.
type Request struct {
	Kind        Kind
	ContentType string
	Size        int64
}

// Upload is a presigned PUT the client performs itself.
type Upload struct {
	Key       string            `json:"key"`
	UploadURL string            `json:"uploadUrl"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers"`
	PublicURL string            `json:"publicUrl"`
	ExpiresAt time.Time         `json:"expiresAt"`
}

// Presigner signs S3 uploads.
type Presigner struct {
	presigner *s3.PresignClient
	cfg       Config
	now       func() time.Time
}

// New creates a Presigner. Signing is local, so no network access happens here.
func New(cfg Config) (*Presigner, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("storage: bucket and credentials are required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.URLExpiry <= 0 {
		cfg.URLExpiry = DefaultURLExpiry
	}

	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = cfg.Region
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		},
	}
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	client := s3.New(s3.Options{}, opts...)
	return &Presigner{
		presigner: s3.NewPresignClient(client),
		cfg:       cfg,
		now:       time.Now,
	}, nil
}

// Validate checks an upload request against the accepted kinds, types and sizes.
func Validate(req Request) error {
	var fields []domainerrors.FieldError
	switch req.Kind {
	case KindAvatar, KindCover, KindPost:
	default:
		fields = append(fields, domainerrors.FieldError{Field: "kind", Message: "must be one of avatar, cover, post"})
	}
	if _, ok := allowedTypes[strings.ToLower(req.ContentType)]; !ok {
		fields = append(fields, domainerrors.FieldError{
			Field:   "contentType",
			Message: "must be one of image/jpeg, image/png, image/webp, image/gif",
		})
	}
	if req.Size <= 0 || req.Size > MaxUploadSize {
		fields = append(fields, domainerrors.FieldError{Field: "size", Message: "must be between 1 byte and 10 MiB"})
	}
	if len(fields) > 0 {
		return domainerrors.Validation("Validation error occurred", fields...)
	}
	return nil
}

// PresignUpload validates req and returns a presigned PUT for a new object owned by ownerID.
func (p *Presigner) PresignUpload(ctx context.Context, ownerID int64, req Request) (*Upload, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}
	contentType := strings.ToLower(req.ContentType)

	key, err := id.ObjectKey(string(req.Kind), ownerID, allowedTypes[contentType])
	if err != nil {
		return nil, err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(req.Size),
	}
	signed, err := p.presigner.PresignPutObject(ctx, input, func(po *s3.PresignOptions) {
		po.Expires = p.cfg.URLExpiry
	})
	if err != nil {
		return nil, fmt.Errorf("presign upload: %w", err)
	}

	headers := map[string]string{"Content-Type": contentType}
	for name, values := range signed.SignedHeader {
		if len(values) > 0 && !strings.EqualFold(name, "host") {
			headers[name] = values[0]
		}
	}

	return &Upload{
		Key:       key,
		UploadURL: signed.URL,
		Method:    signed.Method,
		Headers:   headers,
		PublicURL: p.PublicURL(key),
		ExpiresAt: p.now().Add(p.cfg.URLExpiry),
	}, nil
}

// PublicURL returns the unsigned URL an object is served from.
func (p *Presigner) PublicURL(key string) string {
	if p.cfg.PublicURL != "" {
		return strings.TrimSuffix(p.cfg.PublicURL, "/") + "/" + key
	}
	if p.cfg.Endpoint != "" {
		endpoint := strings.TrimSuffix(p.cfg.Endpoint, "/")
		if p.cfg.PathStyle {
			return fmt.Sprintf("%s/%s/%s", endpoint, p.cfg.Bucket, key)
		}
		return fmt.Sprintf("%s/%s", endpoint, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.cfg.Bucket, p.cfg.Region, key)
}
