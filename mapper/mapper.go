// Package mapper translates between raw database rows and logical
// entities. Physical column names become logical field names and driver
// values are coerced to the declared column types. Keys that are not
// configured columns are dropped in both directions, so stray input
// never reaches SQL and driver internals never leak into entities.
package mapper

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rowandb/rowan"
	"github.com/rowandb/rowan/schema"
)

// Mapper maps rows of one configured entity.
type Mapper struct {
	cfg *schema.EntityConfig
}

// New returns a mapper for the given configuration.
func New(cfg *schema.EntityConfig) *Mapper {
	return &Mapper{cfg: cfg}
}

// ToEntity maps one row to a logical entity. A nil row maps to nil.
func (m *Mapper) ToEntity(row rowan.Row) rowan.Entity {
	if row == nil {
		return nil
	}
	e := make(rowan.Entity, len(row))
	for _, col := range m.cfg.Columns {
		v, ok := row[col.Physical()]
		if !ok {
			continue
		}
		e[col.Name] = CoerceValue(v, col.Type)
	}
	return e
}

// ToEntities maps a result set, preserving order.
func (m *Mapper) ToEntities(rows []rowan.Row) []rowan.Entity {
	out := make([]rowan.Entity, len(rows))
	for i, row := range rows {
		out[i] = m.ToEntity(row)
	}
	return out
}

// ToPhysical maps a logical entity to a row keyed by physical column
// names, with values prepared for parameter binding.
func (m *Mapper) ToPhysical(e rowan.Entity) rowan.Row {
	if e == nil {
		return nil
	}
	row := make(rowan.Row, len(e))
	for _, col := range m.cfg.Columns {
		v, ok := e[col.Name]
		if !ok {
			continue
		}
		row[col.Physical()] = physicalValue(v, col.Type)
	}
	return row
}

// CoerceValue converts a driver value to the declared logical type.
// Values that cannot be interpreted are returned unchanged rather than
// dropped, and unknown types pass through untouched.
func CoerceValue(v any, t schema.FieldType) any {
	if v == nil {
		return nil
	}
	switch t {
	case schema.TypeBoolean:
		return coerceBool(v)
	case schema.TypeInteger:
		return coerceInt(v)
	case schema.TypeNumber:
		return coerceFloat(v)
	case schema.TypeDatetime:
		return coerceTime(v)
	case schema.TypeJSON:
		return coerceJSON(v)
	case schema.TypeUUID:
		return coerceUUID(v)
	case schema.TypeString:
		return coerceString(v)
	}
	return v
}

func coerceBool(v any) any {
	switch v := v.(type) {
	case bool:
		return v
	case int64:
		return v != 0
	case int:
		return v != 0
	case float64:
		return v != 0
	case []byte:
		return coerceBool(string(v))
	case string:
		switch strings.ToLower(v) {
		case "1", "true", "t":
			return true
		case "0", "false", "f", "":
			return false
		}
	}
	return v
}

func coerceInt(v any) any {
	switch v := v.(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(math.Floor(v))
	case bool:
		if v {
			return int64(1)
		}
		return int64(0)
	case []byte:
		return coerceInt(string(v))
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return int64(math.Floor(f))
		}
	}
	return v
}

func coerceFloat(v any) any {
	switch v := v.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int64:
		return float64(v)
	case int:
		return float64(v)
	case []byte:
		return coerceFloat(string(v))
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return v
}

// timeFormats are tried in order when a datetime arrives as text. SQLite
// stores datetimes as strings and MySQL's text protocol does the same.
var timeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func coerceTime(v any) any {
	switch v := v.(type) {
	case time.Time:
		return v
	case []byte:
		return coerceTime(string(v))
	case string:
		for _, layout := range timeFormats {
			if ts, err := time.Parse(layout, v); err == nil {
				return ts
			}
		}
	}
	return v
}

func coerceJSON(v any) any {
	var raw []byte
	switch v := v.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		// Already decoded.
		return v
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return string(raw)
	}
	return decoded
}

func coerceUUID(v any) any {
	switch v := v.(type) {
	case uuid.UUID:
		return v.String()
	case string:
		if id, err := uuid.Parse(v); err == nil {
			return id.String()
		}
	case []byte:
		if len(v) == 16 {
			if id, err := uuid.FromBytes(v); err == nil {
				return id.String()
			}
		}
		return coerceUUID(string(v))
	}
	return v
}

func coerceString(v any) any {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return v
}

// physicalValue prepares a logical value for parameter binding. Most
// coerced values bind as-is; JSON documents are serialized and uuid
// values stringified.
func physicalValue(v any, t schema.FieldType) any {
	if v == nil {
		return nil
	}
	switch t {
	case schema.TypeJSON:
		switch v.(type) {
		case string, []byte:
			return v
		}
		if raw, err := json.Marshal(v); err == nil {
			return string(raw)
		}
		return v
	case schema.TypeUUID:
		if id, ok := v.(uuid.UUID); ok {
			return id.String()
		}
	case schema.TypeBoolean:
		return coerceBool(v)
	case schema.TypeInteger:
		return coerceInt(v)
	case schema.TypeNumber:
		return coerceFloat(v)
	case schema.TypeDatetime:
		return coerceTime(v)
	}
	return v
}
