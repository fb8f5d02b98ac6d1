package util

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateWebhookURL(t *testing.T) {
	_, err := ValidateWebhookURL("ftp://example.com/hook", false)
	assert.Error(t, err)

	_, err = ValidateWebhookURL("http:///nohost", false)
	assert.Error(t, err)

	u, err := ValidateWebhookURL("http://127.0.0.1:9000/hook", false)
	assert.NoError(t, err)
	assert.Equal(t, "127.0.0.1", u.Hostname())

	_, err = ValidateWebhookURL("http://10.0.0.5/tickets", false)
	assert.Error(t, err)

	_, err = ValidateWebhookURL("http://10.0.0.5/tickets", true)
	assert.NoError(t, err)
}

func TestIsPrivateIP(t *testing.T) {
	assert.True(t, IsPrivateIP(net.ParseIP("10.1.2.3")))
	assert.True(t, IsPrivateIP(net.ParseIP("172.16.0.1")))
	assert.True(t, IsPrivateIP(net.ParseIP("192.168.1.1")))
	assert.True(t, IsPrivateIP(net.ParseIP("127.0.0.1")))
	assert.True(t, IsPrivateIP(net.ParseIP("fd00::1")))
	assert.False(t, IsPrivateIP(net.ParseIP("8.8.8.8")))
	assert.False(t, IsPrivateIP(net.ParseIP("172.32.0.1")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab", Truncate("abc", 2))
}
