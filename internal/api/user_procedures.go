package api

import (
	"context"

	"github.com/quillpress/quill-server/internal/domain"
	"github.com/quillpress/quill-server/internal/rpc"
	"github.com/quillpress/quill-server/internal/service"
	"github.com/quillpress/quill-server/internal/validation"
)

func (s *Server) registerUserProcedures() {
	r := s.procedures
	users := s.services.Users

	rpc.Query(r, "users.list", func(ctx context.Context, _ rpc.NoInput) ([]*domain.User, error) {
		return users.List(ctx)
	})
	rpc.Query(r, "users.getById", func(ctx context.Context, id validation.ID) (*domain.User, error) {
		return users.Get(ctx, id.Int64())
	})
	rpc.Query(r, "users.getByEmail", func(ctx context.Context, in service.EmailInput) (*domain.User, error) {
		return users.GetByEmail(ctx, in.Email)
	})
	rpc.Query(r, "users.me", func(ctx context.Context, _ rpc.NoInput) (*domain.User, error) {
		ident, err := requireIdentity(ctx)
		if err != nil {
			return nil, err
		}
		return users.Get(ctx, ident.UserID)
	}, rpc.RequireAuth())

	// A profile belongs to the user it describes.
	rpc.Mutation(r, "users.update", users.Update,
		rpc.RequireAuth(),
		rpc.RequireOwner(rpc.OwnerOf(func(_ context.Context, in *service.UpdateUserInput) (int64, error) {
			return in.ID.Int64(), nil
		})),
	)
	rpc.Mutation(r, "users.createOrGetAuthor", users.CreateOrGetAuthor)
	rpc.Mutation(r, "users.delete", func(ctx context.Context, id validation.ID) (*service.Deleted, error) {
		return users.Delete(ctx, id.Int64())
	}, rpc.RequireAuth(), rpc.RequireRole(string(domain.RoleAdmin)))
}
