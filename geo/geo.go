// Package geo resolves client addresses to coarse locations for risk scoring.
package geo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strings"

	goRiskAuth "github.com/MrEthical07/goRiskAuth"
	"github.com/oschwald/geoip2-golang"
)

// ErrUnknownAddress is returned when an address does not resolve to a country.
var ErrUnknownAddress = errors.New("geo: address not found")

var (
	_ goRiskAuth.GeoLocator = (*MaxMind)(nil)
	_ goRiskAuth.GeoLocator = (*Static)(nil)
)

// MaxMind reads a GeoLite2/GeoIP2 City (or Country) database.
type MaxMind struct {
	db *geoip2.Reader
}

// OpenMaxMind opens the mmdb file at path.
func OpenMaxMind(path string) (*MaxMind, error) {
	db, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &MaxMind{db: db}, nil
}

func (m *MaxMind) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

// Locate looks up ip. Lookups are in-memory, so ctx is only checked up front.
func (m *MaxMind) Locate(ctx context.Context, ip string) (*goRiskAuth.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAddress, ip)
	}
	rec, err := m.db.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("geoip lookup: %w", err)
	}
	if rec.Country.IsoCode == "" {
		return nil, ErrUnknownAddress
	}
	loc := &goRiskAuth.Location{
		Country: rec.Country.IsoCode,
		City:    rec.City.Names["en"],
	}
	if len(rec.Subdivisions) > 0 {
		loc.Region = rec.Subdivisions[0].IsoCode
	}
	return loc, nil
}

// Static maps CIDR prefixes to locations. The longest matching prefix wins.
type Static struct {
	entries []staticEntry
}

type staticEntry struct {
	prefix netip.Prefix
	loc    goRiskAuth.Location
}

// NewStatic builds a table from CIDR -> ISO country code. Bare addresses are accepted
// as single-host prefixes.
func NewStatic(table map[string]string) (*Static, error) {
	s := &Static{}
	for cidr, country := range table {
		p, err := parsePrefix(cidr)
		if err != nil {
			return nil, err
		}
		s.entries = append(s.entries, staticEntry{
			prefix: p.Masked(),
			loc:    goRiskAuth.Location{Country: strings.ToUpper(strings.TrimSpace(country))},
		})
	}
	return s, nil
}

func parsePrefix(v string) (netip.Prefix, error) {
	v = strings.TrimSpace(v)
	if strings.Contains(v, "/") {
		p, err := netip.ParsePrefix(v)
		if err != nil {
			return netip.Prefix{}, fmt.Errorf("geo: bad prefix %q: %w", v, err)
		}
		return p, nil
	}
	a, err := netip.ParseAddr(v)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("geo: bad address %q: %w", v, err)
	}
	return netip.PrefixFrom(a, a.BitLen()), nil
}

func (s *Static) Locate(_ context.Context, ip string) (*goRiskAuth.Location, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAddress, ip)
	}
	addr = addr.Unmap()

	best := -1
	var loc goRiskAuth.Location
	for _, e := range s.entries {
		if e.prefix.Contains(addr) && e.prefix.Bits() > best {
			best = e.prefix.Bits()
			loc = e.loc
		}
	}
	if best < 0 {
		return nil, ErrUnknownAddress
	}
	return &loc, nil
}
