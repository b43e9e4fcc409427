// Package metadata holds the string headers that travel alongside an event
// when a bridge-backed adapter mirrors it onto a broker message.
package metadata

import "maps"

// Metadata is the header map. All derivation helpers copy; a Metadata value
// handed to another component is never mutated through it.
type Metadata map[string]string

// New constructs a Metadata map from alternating key/value pairs. A trailing
// key without a value is dropped.
func New(pairs ...string) Metadata {
	md := make(Metadata, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		md[pairs[i]] = pairs[i+1]
	}
	return md
}

// Clone returns an independent copy. Cloning nil yields an empty, writable
// map.
func (m Metadata) Clone() Metadata {
	if len(m) == 0 {
		return Metadata{}
	}
	return maps.Clone(m)
}

// With returns a copy with one entry added or replaced.
func (m Metadata) With(key, value string) Metadata {
	cloned := make(Metadata, len(m)+1)
	maps.Copy(cloned, m)
	cloned[key] = value
	return cloned
}

// WithAll returns a copy merged with entries; entries win on key conflicts.
func (m Metadata) WithAll(entries Metadata) Metadata {
	cloned := make(Metadata, len(m)+len(entries))
	maps.Copy(cloned, m)
	maps.Copy(cloned, entries)
	return cloned
}
