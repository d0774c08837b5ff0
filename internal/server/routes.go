package server

import (
	"net/http"
)

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health check and info.
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/info", s.handleInfo)

	// Accounts.
	mux.HandleFunc("POST /v1/auth/signup", s.handleAuthSignup)
	mux.HandleFunc("POST /v1/auth/login", s.handleAuthLogin)
	mux.HandleFunc("POST /v1/auth/logout", s.handleAuthLogout)
	mux.HandleFunc("GET /v1/auth/me", s.handleAuthMe)
	mux.HandleFunc("POST /v1/auth/forgot-password", s.handleAuthForgotPassword)
	mux.HandleFunc("POST /v1/auth/reset-password", s.handleAuthResetPassword)

	// Boards.
	mux.HandleFunc("GET /v1/boards", s.handleListBoards)
	mux.HandleFunc("POST /v1/boards", s.handleCreateBoard)
	mux.HandleFunc("POST /v1/boards/import", s.handleImportBoard)
	mux.HandleFunc("GET /v1/boards/{id}", s.handleGetBoard)
	mux.HandleFunc("PATCH /v1/boards/{id}", s.handleRenameBoard)
	mux.HandleFunc("DELETE /v1/boards/{id}", s.handleDeleteBoard)
	mux.HandleFunc("GET /v1/boards/{id}/scene", s.handleGetScene)
	mux.HandleFunc("PUT /v1/boards/{id}/scene", s.handleSaveScene)
	mux.HandleFunc("GET /v1/boards/{id}/export", s.handleExportBoard)

	// Board files.
	mux.HandleFunc("POST /v1/boards/{id}/files/{fileID}", s.handleUploadFile)
	mux.HandleFunc("GET /v1/boards/{id}/files/{fileID}", s.handleDownloadFile)

	// Live collaboration.
	mux.HandleFunc("GET /v1/sync/{id}", s.handleSync)

	// Service methods.
	mux.HandleFunc("POST /v1/rpc/{service}/{method}", s.handleRPC)

	// Admin.
	mux.HandleFunc("GET /v1/logs", s.handleListLogs)
	mux.HandleFunc("GET /v1/admin/users", s.handleAdminListUsers)
	mux.HandleFunc("POST /v1/admin/users", s.handleAdminCreateUser)
	mux.HandleFunc("PATCH /v1/admin/users/{username}", s.handleAdminSetUserDisabled)
	mux.HandleFunc("DELETE /v1/admin/users/{username}", s.handleAdminDeleteUser)
	mux.HandleFunc("POST /v1/admin/gc-blobs", s.handleAdminGCBlobs)
	mux.HandleFunc("/v1/", s.handleAPINotFound)

	// SPA pages and static assets.
	for _, page := range pageRoutes {
		mux.Handle(page.Pattern, s.pageHandler(page.Requirements))
	}
	mux.HandleFunc("/", s.handleCatchAll)

	return s.middleware(mux)
}
