package delegs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/angerman/encoins-relay/delegs"
)

func TestIsValidEndpoint(t *testing.T) {
	t.Parallel()

	tests := []struct {
		endpoint string
		valid    bool
	}{
		{"node.example", true},
		{"192.168.0.1", true},
		{"http://a.b/c", true},
		{"https://relay.example/api", true},
		{"", false},
		{"nohost", false},
		{"node.", false},
		{".example", false},
		{"a.b.c", false},
		{"node.example:8080", false},
		{"::1", false},
	}

	for _, tc := range tests {
		t.Run(tc.endpoint, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.valid, delegs.IsValidEndpoint(tc.endpoint), "endpoint %q", tc.endpoint)
		})
	}
}
