package parquetio

import (
	"fmt"
	"math/big"
	"strconv"
	"time"
)

const julianUnixEpoch = 2440588

// coerce converts a physical value into the Go value for a Delta type.
// Values that do not fit the declared type are returned unchanged.
func coerce(raw interface{}, deltaType string, unit time.Duration) interface{} {
	switch deltaType {
	case "string":
		if b, ok := raw.([]byte); ok {
			return string(b)
		}
	case "binary":
		return raw
	case "byte", "short", "integer", "long":
		i, ok := raw.(int64)
		if !ok {
			return raw
		}
		switch deltaType {
		case "byte":
			return int8(i)
		case "short":
			return int16(i)
		case "integer":
			return int32(i)
		}
		return i
	case "float":
		if f, ok := raw.(float64); ok {
			return float32(f)
		}
	case "double":
		if f, ok := raw.(float64); ok {
			return f
		}
	case "boolean":
		return raw
	case "date":
		if days, ok := raw.(int64); ok {
			return time.Unix(days*86400, 0).UTC()
		}
	case "timestamp", "timestamp_ntz":
		if n, ok := raw.(int64); ok {
			return time.Unix(0, 0).UTC().Add(time.Duration(n) * unit)
		}
		return raw
	default:
		if _, scale, ok := DecimalType(deltaType); ok {
			return decimalValue(raw, scale)
		}
	}
	return raw
}

// decimalValue decodes an INT32, INT64 or two's complement big-endian
// byte array decimal
func decimalValue(raw interface{}, scale int) interface{} {
	unscaled := new(big.Int)
	switch x := raw.(type) {
	case int64:
		unscaled.SetInt64(x)
	case []byte:
		unscaled.SetBytes(x)
		if len(x) > 0 && x[0]&0x80 != 0 {
			unscaled.Sub(unscaled, new(big.Int).Lsh(big.NewInt(1), uint(len(x)*8)))
		}
	default:
		return raw
	}
	return Decimal{unscaled: unscaled, scale: scale}
}

// int96Time decodes the legacy INT96 timestamp layout: nanoseconds of
// the day in the low 8 bytes, Julian day in the high 4.
func int96Time(words [3]uint32) time.Time {
	nanos := int64(uint64(words[0]) | uint64(words[1])<<32)
	day := int64(words[2]) - julianUnixEpoch
	return time.Unix(day*86400, nanos).UTC()
}

// ParsePartitionValue converts a partition value as stored in the log
// into the Go value for deltaType. nil and empty strings are null.
func ParsePartitionValue(raw *string, deltaType string) (interface{}, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	s := *raw

	switch deltaType {
	case "string":
		return s, nil
	case "binary":
		return []byte(s), nil
	case "boolean":
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, fmt.Errorf("invalid boolean partition value %q", s)
		}
		return b, nil
	case "byte", "short", "integer", "long":
		bits := map[string]int{"byte": 8, "short": 16, "integer": 32, "long": 64}[deltaType]
		i, err := strconv.ParseInt(s, 10, bits)
		if err != nil {
			return nil, fmt.Errorf("invalid %s partition value %q", deltaType, s)
		}
		return coerce(i, deltaType, 0), nil
	case "float", "double":
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s partition value %q", deltaType, s)
		}
		return coerce(f, deltaType, 0), nil
	case "date":
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			return nil, fmt.Errorf("invalid date partition value %q", s)
		}
		return t, nil
	case "timestamp", "timestamp_ntz":
		for _, layout := range []string{"2006-01-02 15:04:05.999999", time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return nil, fmt.Errorf("invalid timestamp partition value %q", s)
	}

	if _, scale, ok := DecimalType(deltaType); ok {
		d, err := ParseDecimal(s, scale)
		if err != nil {
			return nil, fmt.Errorf("invalid decimal partition value %q", s)
		}
		return d, nil
	}
	return s, nil
}
