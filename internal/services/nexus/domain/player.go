// Package domain holds the records shared across the sync network.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// OfflineServer is the location of a player not connected anywhere.
const OfflineServer = "offline"

// DefaultGroup scopes fields and leaderboards when no group is configured.
const DefaultGroup = "default"

// PlayerRecord is the network-wide view of one player. Records are created
// on first presence and never deleted.
type PlayerRecord struct {
	UUID          uuid.UUID `json:"uuid"`
	LastSeenName  string    `json:"lastSeenName"`
	CurrentServer string    `json:"currentServer"`
	Metadata      Metadata  `json:"metadata"`
}

// Online reports whether the record points at a live server.
func (r PlayerRecord) Online() bool {
	server := strings.TrimSpace(r.CurrentServer)
	return server != "" && !strings.EqualFold(server, OfflineServer)
}

// Profile is the lookup view of a record.
func (r PlayerRecord) Profile() Profile {
	return Profile{
		UUID:          r.UUID,
		Name:          r.LastSeenName,
		CurrentServer: r.CurrentServer,
		Online:        r.Online(),
	}
}

// Profile summarises where a player is.
type Profile struct {
	UUID          uuid.UUID
	Name          string
	CurrentServer string
	Online        bool
}

// Metadata maps field names to canonical string values. A missing numeric
// field reads as zero.
type Metadata map[string]string

// Number parses field as a decimal, falling back to zero.
func (m Metadata) Number(field string) float64 {
	raw, ok := m[field]
	if !ok {
		return 0
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0
	}
	return value
}

// Clone returns an independent copy.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Keys returns the field names in lexical order.
func (m Metadata) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// UnmarshalJSON accepts objects, null, and the empty array that Lua JSON
// encoders emit for an empty table. Scalar values become strings.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*m = Metadata{}
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return fmt.Errorf("decode metadata: %w", err)
		}
		if len(items) != 0 {
			return fmt.Errorf("decode metadata: unexpected non-empty array")
		}
		*m = Metadata{}
		return nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}
	out := make(Metadata, len(raw))
	for key, value := range raw {
		text, err := scalarString(value)
		if err != nil {
			return fmt.Errorf("decode metadata %q: %w", key, err)
		}
		out[key] = text
	}
	*m = out
	return nil
}

func scalarString(value json.RawMessage) (string, error) {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return "", nil
	}
	switch trimmed[0] {
	case '"':
		var s string
		err := json.Unmarshal(trimmed, &s)
		return s, err
	case '{', '[':
		return string(trimmed), nil
	default:
		// numbers and booleans keep their literal text
		return string(trimmed), nil
	}
}

// DecodePlayerRecord parses a stored record blob.
func DecodePlayerRecord(data []byte) (PlayerRecord, error) {
	var record PlayerRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return PlayerRecord{}, fmt.Errorf("decode player record: %w", err)
	}
	if record.Metadata == nil {
		record.Metadata = Metadata{}
	}
	return record, nil
}
