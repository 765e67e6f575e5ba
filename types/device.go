package types

import "strings"

// Property is a single device profile entry.
type Property struct {
	Key   string `msgpack:"key" json:"key" yaml:"key"`
	Value string `msgpack:"value" json:"value" yaml:"value"`
}

// DeviceProfile is an ordered, immutable mapping of device attributes.
// Build one with a ProfileBuilder; the zero value is an empty profile.
type DeviceProfile struct {
	// Properties holds entries in insertion order. Keys are unique.
	Properties []Property `msgpack:"properties" json:"properties" yaml:"properties"`
}

// Len returns the number of entries.
func (p *DeviceProfile) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Properties)
}

// Get returns the value for key.
func (p *DeviceProfile) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, prop := range p.Properties {
		if prop.Key == key {
			return prop.Value, true
		}
	}
	return "", false
}

// Value returns the value for key or "" when absent.
func (p *DeviceProfile) Value(key string) string {
	v, _ := p.Get(key)
	return v
}

// List splits a comma separated value. Empty values yield nil.
func (p *DeviceProfile) List(key string) []string {
	v := p.Value(key)
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

// Keys returns the keys in insertion order.
func (p *DeviceProfile) Keys() []string {
	if p == nil {
		return nil
	}
	keys := make([]string, len(p.Properties))
	for i, prop := range p.Properties {
		keys[i] = prop.Key
	}
	return keys
}

// Map returns a copy of the entries as a map.
func (p *DeviceProfile) Map() map[string]string {
	m := make(map[string]string, p.Len())
	if p == nil {
		return m
	}
	for _, prop := range p.Properties {
		m[prop.Key] = prop.Value
	}
	return m
}

// ProfileBuilder accumulates entries for a DeviceProfile.
// Setting an existing key replaces its value but keeps its position.
type ProfileBuilder struct {
	props []Property
	index map[string]int
}

// NewProfileBuilder creates an empty builder.
func NewProfileBuilder() *ProfileBuilder {
	return &ProfileBuilder{index: make(map[string]int)}
}

// Set records key=value.
func (b *ProfileBuilder) Set(key, value string) *ProfileBuilder {
	if i, ok := b.index[key]; ok {
		b.props[i].Value = value
		return b
	}
	b.index[key] = len(b.props)
	b.props = append(b.props, Property{Key: key, Value: value})
	return b
}

// SetList records a comma separated list.
func (b *ProfileBuilder) SetList(key string, values []string) *ProfileBuilder {
	return b.Set(key, strings.Join(values, ","))
}

// Build returns the immutable profile.
func (b *ProfileBuilder) Build() *DeviceProfile {
	props := make([]Property, len(b.props))
	copy(props, b.props)
	return &DeviceProfile{Properties: props}
}
