package middleware

import (
	"gorm.io/gorm"
)

// Handler carries shared dependencies for middleware that need them.
type Handler struct {
	DB *gorm.DB
}

func Create(db *gorm.DB) *Handler {
	return &Handler{DB: db}
}
