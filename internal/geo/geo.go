// Package geo resolves booking IP addresses against a MaxMind city database.
package geo

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"securestay-risk/internal/features"
)

type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Resolver implements features.GeoResolver.
type Resolver struct {
	reader   cityReader
	highRisk map[string]bool
}

// Open loads the database at path. highRisk lists ISO country codes whose
// addresses raise the ip_risk flag.
func Open(path string, highRisk []string) (*Resolver, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return newResolver(reader, highRisk), nil
}

func newResolver(reader cityReader, highRisk []string) *Resolver {
	set := make(map[string]bool, len(highRisk))
	for _, c := range highRisk {
		if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
			set[c] = true
		}
	}
	return &Resolver{reader: reader, highRisk: set}
}

// Lookup returns the country and risk traits of ip. Unparseable addresses are an
// error; addresses missing from the database yield a zero GeoInfo.
func (r *Resolver) Lookup(ip string) (features.GeoInfo, error) {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return features.GeoInfo{}, fmt.Errorf("invalid ip address %q", ip)
	}

	city, err := r.reader.City(parsed)
	if err != nil {
		return features.GeoInfo{}, fmt.Errorf("lookup %s: %w", ip, err)
	}
	if city == nil {
		return features.GeoInfo{}, nil
	}

	country := strings.ToUpper(city.Country.IsoCode)
	return features.GeoInfo{
		Country:   country,
		Anonymous: city.Traits.IsAnonymousProxy,
		HighRisk:  country != "" && r.highRisk[country],
	}, nil
}

func (r *Resolver) Close() error {
	return r.reader.Close()
}
