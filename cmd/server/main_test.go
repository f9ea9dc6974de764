package main

import (
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPServer_Timeouts(t *testing.T) {
	server := NewHTTPServer(":8080", nil)

	assert.Equal(t, ":8080", server.Addr)
	assert.Equal(t, 15*time.Second, server.ReadTimeout)
	assert.Equal(t, 15*time.Minute, server.WriteTimeout)
	assert.Equal(t, 120*time.Second, server.IdleTimeout)
}

func TestInitializeLogger_DefaultLevel(t *testing.T) {
	os.Unsetenv("LOG_LEVEL")
	os.Setenv("LOG_DIR", t.TempDir())
	defer os.Unsetenv("LOG_DIR")

	logger, err := initializeLogger()
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Sync()
}

func TestInitializeLogger_InvalidLevel(t *testing.T) {
	os.Setenv("LOG_LEVEL", "loud")
	defer os.Unsetenv("LOG_LEVEL")

	_, err := initializeLogger()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestSetupSignalHandler(t *testing.T) {
	sigChan := setupSignalHandler()
	require.NotNil(t, sigChan)

	// The channel must be buffered so a signal delivered before the
	// receiver is ready is not lost.
	assert.Equal(t, 1, cap(sigChan))

	// Deliver a signal directly; it must arrive on the channel.
	sigChan <- syscall.SIGTERM
	select {
	case sig := <-sigChan:
		assert.Equal(t, syscall.SIGTERM, sig)
	case <-time.After(time.Second):
		t.Fatal("signal not received")
	}
}
