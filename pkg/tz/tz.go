// Package tz resolves IANA timezone names to *time.Location with a
// small LRU cache in front of time.LoadLocation, which reads from the
// zoneinfo database on every call.
package tz

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const cacheSize = 64

var cache, _ = lru.New[string, *time.Location](cacheSize)

// Load resolves name to a location. Empty name resolves to UTC.
func Load(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	if loc, ok := cache.Get(name); ok {
		return loc, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, err
	}
	cache.Add(name, loc)
	return loc, nil
}

// LoadOrUTC resolves name, falling back to UTC on any failure.
func LoadOrUTC(name string) *time.Location {
	loc, err := Load(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
