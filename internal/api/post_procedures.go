package api

import (
	"context"

	"github.com/quillpress/quill-server/internal/domain"
	"github.com/quillpress/quill-server/internal/rpc"
	"github.com/quillpress/quill-server/internal/service"
	"github.com/quillpress/quill-server/internal/validation"
)

func (s *Server) registerPostProcedures() {
	r := s.procedures
	posts := s.services.Posts

	rpc.Query(r, "posts.list", posts.List)
	rpc.Query(r, "posts.listByAuthor", func(ctx context.Context, in service.ListByAuthorInput) ([]*domain.Post, error) {
		return posts.ListByAuthor(ctx, in.AuthorID.Int64())
	})
	rpc.Query(r, "posts.getById", func(ctx context.Context, id validation.ID) (*domain.Post, error) {
		return posts.Get(ctx, id.Int64())
	})
	rpc.Query(r, "posts.getBySlug", func(ctx context.Context, in service.SlugInput) (*domain.Post, error) {
		return posts.GetBySlug(ctx, in.Slug)
	})
	rpc.Query(r, "posts.filterByCategory", func(ctx context.Context, in service.FilterByCategoryInput) ([]*domain.Post, error) {
		return posts.FilterByCategory(ctx, in.CategorySlug)
	})
	rpc.Query(r, "posts.search", posts.Search)

	rpc.Mutation(r, "posts.create", func(ctx context.Context, in service.CreatePostInput) (*domain.Post, error) {
		ident, err := requireIdentity(ctx)
		if err != nil {
			return nil, err
		}
		return posts.Create(ctx, ident.UserID, in)
	}, rpc.RequireAuth(), rpc.RequirePermission(domain.PermPostsCreate))

	rpc.Mutation(r, "posts.update", posts.Update,
		rpc.RequireAuth(),
		rpc.RequireOwner(rpc.OwnerOf(func(ctx context.Context, in *service.UpdatePostInput) (int64, error) {
			return posts.OwnerOf(ctx, in.ID.Int64())
		})),
		rpc.RequirePermission(domain.PermPostsUpdate),
	)

	rpc.Mutation(r, "posts.delete", func(ctx context.Context, id validation.ID) (*service.Deleted, error) {
		return posts.Delete(ctx, id.Int64())
	},
		rpc.RequireAuth(),
		rpc.RequireOwner(rpc.OwnerOf(func(ctx context.Context, id *validation.ID) (int64, error) {
			return posts.OwnerOf(ctx, id.Int64())
		})),
		rpc.RequirePermission(domain.PermPostsDelete),
	)

	rpc.Mutation(r, "posts.assignCategories", posts.AssignCategories,
		rpc.RequireAuth(),
		rpc.RequireOwner(rpc.OwnerOf(func(ctx context.Context, in *service.AssignCategoriesInput) (int64, error) {
			return posts.OwnerOf(ctx, in.PostID.Int64())
		})),
	)
}
