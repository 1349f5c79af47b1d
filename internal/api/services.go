package api

import (
	"github.com/quillpress/quill-server/internal/service"
)

// Services groups the business logic services behind the procedures.
type Services struct {
	Posts      *service.PostService
	Categories *service.CategoryService
	Users      *service.UserService
	Auth       *service.AuthService
}
