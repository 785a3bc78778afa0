package handler

import (
	"gorandom/backend/internal/chathub"
	"gorandom/backend/internal/config"
	"gorandom/backend/internal/storage"
)

// Handler carries the dependencies of the HTTP layer.
type Handler struct {
	Hub     *chathub.ManagerService
	Storage storage.Storage
	Cfg     config.Config
}

func NewHandler(hub *chathub.ManagerService, s storage.Storage, cfg config.Config) *Handler {
	return &Handler{Hub: hub, Storage: s, Cfg: cfg}
}
