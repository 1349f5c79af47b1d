package api

import (
	"github.com/quillpress/quill-server/internal/rpc"
)

func (s *Server) registerAuthProcedures() {
	r := s.procedures
	authService := s.services.Auth

	rpc.Mutation(r, "auth.signup", authService.Signup, s.loginGuards()...)
	rpc.Mutation(r, "auth.login", authService.Login, s.loginGuards()...)
}
