package netcalc

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCIDR(t *testing.T) {
	p, err := ParseCIDR("172.32.65.0/24")
	require.NoError(t, err)
	assert.Equal(t, "172.32.65.0/24", p.String())

	// Host bits are masked off.
	p, err = ParseCIDR("10.0.1.5/24")
	require.NoError(t, err)
	assert.Equal(t, "10.0.1.0/24", p.String())

	_, err = ParseCIDR("10.0.0.0")
	assert.Error(t, err)

	_, err = ParseCIDR("300.0.0.0/8")
	assert.Error(t, err)
}

func TestContains(t *testing.T) {
	vpc := netip.MustParsePrefix("172.32.65.0/24")

	cases := []struct {
		sub  string
		want bool
	}{
		{"172.32.65.0/26", true},
		{"172.32.65.64/26", true},
		{"172.32.65.192/26", true},
		{"172.32.65.0/24", false}, // identical block is not a strict subset
		{"172.32.64.0/23", false}, // larger than the VPC block
		{"172.32.66.0/26", false}, // outside
		{"10.0.0.0/26", false},
	}
	for _, tc := range cases {
		sub := netip.MustParsePrefix(tc.sub)
		assert.Equal(t, tc.want, Contains(vpc, sub), "sub=%s", tc.sub)
	}
}

func TestValidateSubnet(t *testing.T) {
	require.NoError(t, ValidateSubnet("172.32.65.0/24", "172.32.65.0/26"))
	require.NoError(t, ValidateSubnet("172.32.65.0/24", "172.32.65.64/26"))

	assert.Error(t, ValidateSubnet("172.32.65.0/24", "172.32.66.0/26"))
	assert.Error(t, ValidateSubnet("172.32.65.0/24", "172.32.65.0/24"))
	assert.Error(t, ValidateSubnet("not-a-cidr", "172.32.65.0/26"))
	assert.Error(t, ValidateSubnet("172.32.65.0/24", "bogus"))
	assert.Error(t, ValidateSubnet("172.32.65.0/24", "2001:db8::/64"))
}

func TestUsableIPs(t *testing.T) {
	assert.Equal(t, 251, UsableIPs(netip.MustParsePrefix("10.0.1.0/24")))
	assert.Equal(t, 59, UsableIPs(netip.MustParsePrefix("172.32.65.0/26")))
	assert.Equal(t, 0, UsableIPs(netip.MustParsePrefix("10.0.0.0/30")))
}
