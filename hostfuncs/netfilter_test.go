package hostfuncs

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckPublicAddress(t *testing.T) {
	tests := []struct {
		name    string
		ip      string
		blocked bool
	}{
		{"loopback", "127.0.0.1", true},
		{"loopback high", "127.255.255.254", true},
		{"loopback ipv6", "::1", true},
		{"rfc1918 10/8", "10.0.0.1", true},
		{"rfc1918 172.16/12", "172.16.0.1", true},
		{"rfc1918 192.168/16", "192.168.1.1", true},
		{"link-local", "169.254.1.1", true},
		{"cloud metadata endpoint", "169.254.169.254", true},
		{"carrier-grade NAT", "100.64.0.1", true},
		{"carrier-grade NAT high", "100.127.255.255", true},
		{"unspecified", "0.0.0.0", true},
		{"multicast", "224.0.0.1", true},
		{"ipv6 unique-local", "fd00::1", true},
		{"ipv6 link-local", "fe80::1", true},
		{"ipv4-mapped private", "::ffff:10.0.0.1", true},
		{"ipv4-mapped loopback", "::ffff:127.0.0.1", true},
		{"public ipv4", "8.8.8.8", false},
		{"public ipv4 2", "1.1.1.1", false},
		{"just above CGN", "100.128.0.1", false},
		{"public ipv6", "2606:4700::1111", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ip := net.ParseIP(tc.ip)
			require.NotNil(t, ip, "test address must parse")

			reason, ok := CheckPublicAddress(ip)
			if tc.blocked {
				assert.False(t, ok, "should block %s", tc.ip)
				assert.NotEmpty(t, reason)
			} else {
				assert.True(t, ok, "should allow %s", tc.ip)
				assert.Empty(t, reason)
			}
		})
	}
}
