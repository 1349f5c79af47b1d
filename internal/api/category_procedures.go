package api

import (
	"context"

	"github.com/quillpress/quill-server/internal/domain"
	"github.com/quillpress/quill-server/internal/rpc"
	"github.com/quillpress/quill-server/internal/service"
	"github.com/quillpress/quill-server/internal/validation"
)

func (s *Server) registerCategoryProcedures() {
	r := s.procedures
	categories := s.services.Categories

	rpc.Query(r, "categories.list", func(ctx context.Context, _ rpc.NoInput) ([]*domain.Category, error) {
		return categories.List(ctx)
	})
	rpc.Query(r, "categories.getById", func(ctx context.Context, id validation.ID) (*domain.Category, error) {
		return categories.Get(ctx, id.Int64())
	})
	rpc.Query(r, "categories.getBySlug", func(ctx context.Context, in service.SlugInput) (*domain.Category, error) {
		return categories.GetBySlug(ctx, in.Slug)
	})

	rpc.Mutation(r, "categories.create", categories.Create,
		rpc.RequireAuth(), rpc.RequirePermission(domain.PermCategoriesManage))
	rpc.Mutation(r, "categories.update", categories.Update,
		rpc.RequireAuth(), rpc.RequirePermission(domain.PermCategoriesManage))
	rpc.Mutation(r, "categories.delete", func(ctx context.Context, id validation.ID) (*service.Deleted, error) {
		return categories.Delete(ctx, id.Int64())
	}, rpc.RequireAuth(), rpc.RequireRole(string(domain.RoleAdmin)))
}
