package warehouse

import (
	"database/sql"
	"math/big"
	"strconv"
	"strings"
	"time"
)

var numericTypeNames = map[string]bool{
	"FIXED":   true,
	"NUMBER":  true,
	"DECIMAL": true,
	"NUMERIC": true,
	"REAL":    true,
	"FLOAT":   true,
	"FLOAT4":  true,
	"FLOAT8":  true,
	"DOUBLE":  true,
}

type float64er interface {
	Float64() float64
}

// normalizeValues converts driver values into JSON-native scalars. Decimals become
// float64 and date/time values become ISO-8601 strings.
func normalizeValues(values []any, types []*sql.ColumnType) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		typeName := ""
		if i < len(types) && types[i] != nil {
			typeName = strings.ToUpper(types[i].DatabaseTypeName())
		}
		normalized[i] = normalizeValue(value, typeName)
	}
	return normalized
}

func normalizeValue(value any, typeName string) any {
	switch typed := value.(type) {
	case nil:
		return nil
	case []byte:
		return normalizeText(string(typed), typeName)
	case string:
		return normalizeText(typed, typeName)
	case time.Time:
		return typed.Format(time.RFC3339Nano)
	case *time.Time:
		if typed == nil {
			return nil
		}
		return typed.Format(time.RFC3339Nano)
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f
	case *big.Float:
		if typed == nil {
			return nil
		}
		f, _ := typed.Float64()
		return f
	case *big.Rat:
		if typed == nil {
			return nil
		}
		f, _ := typed.Float64()
		return f
	case float64er:
		return typed.Float64()
	default:
		return typed
	}
}

func normalizeText(value, typeName string) any {
	if !numericTypeNames[typeName] {
		return value
	}
	trimmed := strings.TrimSpace(value)
	if !strings.ContainsAny(trimmed, ".eE") {
		if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return n
		}
	}
	if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return f
	}
	return value
}
