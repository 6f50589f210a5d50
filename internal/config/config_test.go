package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validConfig(t *testing.T) ServerConfig {
	t.Helper()
	return ServerConfig{
		MulticastGroup:   "239.10.11.12",
		CommandPort:      10000,
		MaxSpace:         100,
		SharedFolder:     t.TempDir(),
		HandshakeTimeout: 5 * time.Second,
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	assert.NoError(t, validConfig(t).Validate())
}

func TestValidateRejectsMissingGroup(t *testing.T) {
	c := validConfig(t)
	c.MulticastGroup = ""
	assert.Error(t, c.Validate())
}

func TestValidateRejectsNonIPv4Group(t *testing.T) {
	c := validConfig(t)
	c.MulticastGroup = "not-an-ip"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsZeroPort(t *testing.T) {
	c := validConfig(t)
	c.CommandPort = 0
	assert.Error(t, c.Validate())
}

func TestValidateRejectsMissingSharedFolder(t *testing.T) {
	c := validConfig(t)
	c.SharedFolder = ""
	assert.Error(t, c.Validate())
}

func TestValidateRejectsAbsentSharedFolder(t *testing.T) {
	c := validConfig(t)
	c.SharedFolder = "/nonexistent/path/for/sure"
	assert.Error(t, c.Validate())
}

func TestValidateRejectsZeroTimeout(t *testing.T) {
	c := validConfig(t)
	c.HandshakeTimeout = 0
	assert.Error(t, c.Validate())
}

func TestValidateRejectsOversizedTimeout(t *testing.T) {
	c := validConfig(t)
	c.HandshakeTimeout = 301 * time.Second
	assert.Error(t, c.Validate())
}

func TestValidateAcceptsBoundaryTimeouts(t *testing.T) {
	c := validConfig(t)
	c.HandshakeTimeout = 1 * time.Second
	assert.NoError(t, c.Validate())
	c.HandshakeTimeout = 300 * time.Second
	assert.NoError(t, c.Validate())
}
