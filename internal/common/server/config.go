package server

import (
	"net/http"
	"time"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/config"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
)

type ServerConfig struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	DrainTimeout      time.Duration
}

// responseGrace is the write budget left after the request timeout fires.
const responseGrace = 5 * time.Second

// FromTrustConfig sizes the server around REQUEST_TIMEOUT and the configured
// shutdown windows.
func FromTrustConfig(cfg config.TrustConfig) ServerConfig {
	return ServerConfig{
		Addr:              ":" + cfg.HTTPPort,
		ReadHeaderTimeout: constants.ServerReadHeaderTimeout,
		ReadTimeout:       constants.ServerReadHeaderTimeout + cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + responseGrace,
		IdleTimeout:       constants.ServerIdleTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
		DrainTimeout:      cfg.DrainTimeout,
	}
}

func NewServer(cfg ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}
