package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/AlibekovAA/dh-trust/backend/internal/common/config"
	"github.com/AlibekovAA/dh-trust/backend/internal/common/constants"
)

func TestFromTrustConfig_FollowsServiceTimeouts(t *testing.T) {
	cfg := config.TrustConfig{
		HTTPPort:        "9090",
		RequestTimeout:  7 * time.Second,
		ShutdownTimeout: 20 * time.Second,
		DrainTimeout:    4 * time.Second,
	}

	got := FromTrustConfig(cfg)
	assert.Equal(t, ":9090", got.Addr)
	assert.Equal(t, constants.ServerReadHeaderTimeout+7*time.Second, got.ReadTimeout)
	assert.Equal(t, 12*time.Second, got.WriteTimeout)
	assert.Equal(t, 20*time.Second, got.ShutdownTimeout)
	assert.Equal(t, 4*time.Second, got.DrainTimeout)

	srv := NewServer(got, http.NotFoundHandler())
	assert.Equal(t, got.WriteTimeout, srv.WriteTimeout)
	assert.Equal(t, got.ReadTimeout, srv.ReadTimeout)
}
