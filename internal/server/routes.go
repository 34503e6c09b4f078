package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Query surface
	mux.HandleFunc("/query", s.app.QueryHandler.QueryHandler)
	mux.HandleFunc("/session/", s.app.QueryHandler.SessionHandler(s.app.Sessions))

	// Ingestion surface
	mux.HandleFunc("/upload", s.app.UploadHandler.UploadFileHandler)
	mux.HandleFunc("/status/", s.app.UploadHandler.StatusHandler)
	mux.HandleFunc("/chunks/", s.app.UploadHandler.ChunksHandler)
	mux.HandleFunc("/file/", s.app.UploadHandler.DownloadHandler)
	mux.HandleFunc("/files", s.app.UploadHandler.ListFilesHandler)

	// Ingestion progress socket
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// Health and build info
	mux.HandleFunc("/health", s.app.HealthHandler.GetHealthHandler)
	mux.HandleFunc("/version", s.app.HealthHandler.GetVersionHandler)

	return mux
}
