package providers

import (
	"github.com/samber/do/v2"

	"github.com/quillpress/quill-server/internal/config"
	"github.com/quillpress/quill-server/internal/logger"
	"github.com/quillpress/quill-server/internal/storage"
)

// UploadsHandle holds the upload presigner. Presigner is nil when object storage
// is not configured.
type UploadsHandle struct {
	*storage.Presigner
}

// ProvideUploads provides the S3 upload presigner.
func ProvideUploads(i do.Injector) (*UploadsHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)

	storageCfg := storage.Config{
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		PublicURL: cfg.Storage.PublicURL,
		PathStyle: cfg.Storage.PathStyle,
		URLExpiry: cfg.Storage.URLExpiry,
	}
	if !storageCfg.Enabled() {
		log.Info("Image uploads disabled: object storage not configured")
		return &UploadsHandle{}, nil
	}

	presigner, err := storage.New(storageCfg)
	if err != nil {
		return nil, err
	}

	log.Info("Image uploads enabled", "bucket", cfg.Storage.Bucket, "endpoint", cfg.Storage.Endpoint)
	return &UploadsHandle{Presigner: presigner}, nil
}
