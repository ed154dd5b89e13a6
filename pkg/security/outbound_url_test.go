package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateOutboundURL(t *testing.T) {
	tests := []struct {
		name string
		url  string
		opts OutboundURLOptions
		ok   bool
	}{
		{"anthropic", "https://api.anthropic.com", OutboundURLOptions{}, true},
		{"openai with path", "https://api.openai.com/v1", OutboundURLOptions{}, true},
		{"http rejected", "http://api.anthropic.com", OutboundURLOptions{}, false},
		{"http allowed", "http://proxy.example.com", OutboundURLOptions{AllowHTTP: true}, true},
		{"ftp", "ftp://api.anthropic.com", OutboundURLOptions{}, false},
		{"no host", "https://", OutboundURLOptions{}, false},
		{"credentials", "https://user:pw@api.anthropic.com", OutboundURLOptions{}, false},
		{"localhost", "https://localhost:8080", OutboundURLOptions{}, false},
		{"mdns", "https://printer.local", OutboundURLOptions{}, false},
		{"loopback ip", "https://127.0.0.1", OutboundURLOptions{}, false},
		{"private ip", "https://10.1.2.3", OutboundURLOptions{}, false},
		{"mapped loopback", "https://[::ffff:127.0.0.1]", OutboundURLOptions{}, false},
		{"local allowed", "http://127.0.0.1:9999", OutboundURLOptions{AllowHTTP: true, AllowLocalNetworks: true}, true},
		{"unspecified", "https://0.0.0.0", OutboundURLOptions{AllowLocalNetworks: true}, false},
		{"zoned ipv6", "https://[fe80::1%25eth0]/", OutboundURLOptions{}, false},
		{"zoned ipv6 allowed", "https://[fe80::1%25eth0]/", OutboundURLOptions{AllowLocalNetworks: true}, true},
		{"public ip", "https://8.8.8.8", OutboundURLOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutboundURL(tt.url, tt.opts)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "sk-a...wxyz", RedactKey("sk-ant-api03-abcdefwxyz"))
	assert.Equal(t, "*****", RedactKey("short"))
	assert.Equal(t, "", RedactKey(""))
}
