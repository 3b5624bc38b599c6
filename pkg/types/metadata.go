package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

const (
	metadataMaxKeys     = 20
	metadataMaxKeyLen   = 64
	metadataMaxValueLen = 512
)

// Metadata is a constrained string map persisted as JSONB. Keys and values
// are size-capped so callers cannot smuggle arbitrary payloads through
// order or payment rows.
type Metadata map[string]string

// Validate enforces the key count and length limits.
func (m Metadata) Validate() error {
	if len(m) > metadataMaxKeys {
		return fmt.Errorf("metadata: at most %d keys allowed", metadataMaxKeys)
	}
	for key, value := range m {
		if key == "" {
			return fmt.Errorf("metadata: empty key")
		}
		if len(key) > metadataMaxKeyLen {
			return fmt.Errorf("metadata: key %q exceeds %d characters", key, metadataMaxKeyLen)
		}
		if len(value) > metadataMaxValueLen {
			return fmt.Errorf("metadata: value for %q exceeds %d characters", key, metadataMaxValueLen)
		}
	}
	return nil
}

// Value marshals Metadata into JSON for the driver.
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("metadata: marshal %w", err)
	}
	return string(raw), nil
}

// Scan decodes the JSON column value.
func (m *Metadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	raw, ok := toString(value)
	if !ok {
		return fmt.Errorf("metadata: unsupported scan type %T", value)
	}
	if raw == "" {
		*m = nil
		return nil
	}
	return json.Unmarshal([]byte(raw), m)
}
