package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	domainerrors "github.com/quillpress/quill-server/internal/errors"
	"github.com/quillpress/quill-server/internal/storage"
)

func (s *Server) registerUploadRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "createUpload",
		Method:      http.MethodPost,
		Path:        "/api/v1/uploads",
		Summary:     "Create an image upload",
		Description: "Returns a presigned URL the client PUTs the image to, and the public URL to store on a profile or post",
		Tags:        []string{"Uploads"},
		Security:    []map[string][]string{{"bearer": {}}},
		Middlewares: huma.Middlewares{s.identify, s.limit},
	}, s.handleCreateUpload)
}

// CreateUploadRequest describes the image the client is about to upload.
type CreateUploadRequest struct {
	Kind        string `json:"kind" doc:"Where the image is used: avatar, cover or post"`
	ContentType string `json:"contentType" doc:"MIME type: image/jpeg, image/png, image/webp or image/gif"`
	Size        int64  `json:"size" doc:"Size in bytes, at most 10 MiB"`
}

// CreateUploadInput wraps the upload request for Huma.
type CreateUploadInput struct {
	Body CreateUploadRequest
}

// CreateUploadOutput wraps the presigned upload for Huma.
type CreateUploadOutput struct {
	Body *storage.Upload
}

func (s *Server) handleCreateUpload(ctx context.Context, input *CreateUploadInput) (*CreateUploadOutput, error) {
	ident, err := requireIdentity(ctx)
	if err != nil {
		return nil, err
	}
	if s.opts.Uploads == nil {
		return nil, domainerrors.Unprocessable("Image uploads are not configured on this server")
	}

	upload, err := s.opts.Uploads.PresignUpload(ctx, ident.UserID, storage.Request{
		Kind:        storage.Kind(input.Body.Kind),
		ContentType: input.Body.ContentType,
		Size:        input.Body.Size,
	})
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "upload presigned",
		"user_id", ident.UserID,
		"kind", input.Body.Kind,
		"key", upload.Key,
	)
	return &CreateUploadOutput{Body: upload}, nil
}
