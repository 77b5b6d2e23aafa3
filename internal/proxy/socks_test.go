package proxy

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClientDirect(t *testing.T) {
	c, err := NewClient("", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Nil(t, c.Transport)
}

func TestNewClientSocks(t *testing.T) {
	c, err := NewClient("127.0.0.1:1080", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.Timeout)
	assert.IsType(t, &http.Transport{}, c.Transport)
}
