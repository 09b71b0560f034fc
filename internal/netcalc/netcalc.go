// Package netcalc provides CIDR validation and containment checks used by
// the VPC provisioning and subnet usage commands. All checks are done with
// exact address arithmetic via net/netip, never string comparison.
package netcalc

import (
	"fmt"
	"net/netip"
)

// awsReservedIPs is the number of addresses AWS reserves in every subnet:
// network, router, DNS, future use, and broadcast.
const awsReservedIPs = 5

// ParseCIDR parses and normalizes an IPv4 or IPv6 CIDR block. The returned
// prefix is masked, so "10.0.1.5/24" becomes "10.0.1.0/24".
func ParseCIDR(s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid CIDR %q: %w", s, err)
	}
	return p.Masked(), nil
}

// Contains reports whether sub is a strict subset of outer: sub's prefix is
// longer than outer's and sub's network address falls inside outer. A block
// is not a strict subset of itself.
func Contains(outer, sub netip.Prefix) bool {
	if sub.Bits() <= outer.Bits() {
		return false
	}
	return outer.Contains(sub.Addr())
}

// ValidateSubnet checks that subnetCIDR parses and is a strict subset of
// vpcCIDR. It is the up-front validation step for provisioning.
func ValidateSubnet(vpcCIDR, subnetCIDR string) error {
	vpc, err := ParseCIDR(vpcCIDR)
	if err != nil {
		return err
	}
	sub, err := ParseCIDR(subnetCIDR)
	if err != nil {
		return err
	}
	if vpc.Addr().Is4() != sub.Addr().Is4() {
		return fmt.Errorf("address family mismatch: %s vs %s", vpcCIDR, subnetCIDR)
	}
	if !Contains(vpc, sub) {
		return fmt.Errorf("subnet %s is not contained in VPC CIDR %s", subnetCIDR, vpcCIDR)
	}
	return nil
}

// HostCount returns the total number of addresses in an IPv4 prefix.
func HostCount(p netip.Prefix) int {
	bits := 32
	if !p.Addr().Is4() {
		bits = 128
	}
	shift := bits - p.Bits()
	if shift >= 31 {
		return 1 << 31 // clamp, nobody iterates a /1
	}
	return 1 << shift
}

// UsableIPs returns the number of assignable addresses in an AWS subnet,
// accounting for the five reserved addresses per subnet.
func UsableIPs(p netip.Prefix) int {
	n := HostCount(p) - awsReservedIPs
	if n < 0 {
		return 0
	}
	return n
}
