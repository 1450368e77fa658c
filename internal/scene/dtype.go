package scene

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

// Dtype is a NumPy array-protocol type string such as "<f4" or ">i2":
// byte order, basic type, item size in bytes.
type Dtype struct {
	Order binary.ByteOrder
	Kind  byte // 'f', 'i' or 'u'
	Size  int
	raw   string
}

// ParseDtype parses a typestr. Only the numeric kinds found in ABI
// products are supported.
func ParseDtype(s string) (Dtype, error) {
	if len(s) < 3 {
		return Dtype{}, fmt.Errorf("invalid dtype %q: too short", s)
	}

	var dt Dtype
	switch s[0] {
	case '<', '|':
		dt.Order = binary.LittleEndian
	case '>':
		dt.Order = binary.BigEndian
	default:
		return Dtype{}, fmt.Errorf("invalid dtype %q: unknown byte order %q", s, s[0])
	}

	dt.Kind = s[1]
	var sizes []int
	switch dt.Kind {
	case 'f':
		sizes = []int{4, 8}
	case 'i', 'u':
		sizes = []int{1, 2, 4}
	default:
		return Dtype{}, fmt.Errorf("invalid dtype %q: unsupported kind %q", s, dt.Kind)
	}

	switch s[2:] {
	case "1":
		dt.Size = 1
	case "2":
		dt.Size = 2
	case "4":
		dt.Size = 4
	case "8":
		dt.Size = 8
	default:
		return Dtype{}, fmt.Errorf("invalid dtype %q: bad size %q", s, s[2:])
	}

	supported := false
	for _, n := range sizes {
		if n == dt.Size {
			supported = true
		}
	}
	if !supported {
		return Dtype{}, fmt.Errorf("invalid dtype %q: %c%d not supported", s, dt.Kind, dt.Size)
	}

	dt.raw = s
	return dt, nil
}

func (dt Dtype) String() string { return dt.raw }

func (dt Dtype) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.raw)
}

func (dt *Dtype) UnmarshalJSON(d []byte) error {
	var s string
	if err := json.Unmarshal(d, &s); err != nil {
		return err
	}
	t, err := ParseDtype(s)
	if err != nil {
		return err
	}
	*dt = t
	return nil
}

// decode converts the raw bytes of n items into float64 values.
func (dt Dtype) decode(b []byte, n int) ([]float64, error) {
	if len(b) != n*dt.Size {
		return nil, fmt.Errorf("%s: have %d bytes, want %d for %d items", dt.raw, len(b), n*dt.Size, n)
	}

	out := make([]float64, n)
	for i := range out {
		item := b[i*dt.Size : (i+1)*dt.Size]
		switch {
		case dt.Kind == 'f' && dt.Size == 4:
			out[i] = float64(math.Float32frombits(dt.Order.Uint32(item)))
		case dt.Kind == 'f' && dt.Size == 8:
			out[i] = math.Float64frombits(dt.Order.Uint64(item))
		case dt.Kind == 'i' && dt.Size == 1:
			out[i] = float64(int8(item[0]))
		case dt.Kind == 'i' && dt.Size == 2:
			out[i] = float64(int16(dt.Order.Uint16(item)))
		case dt.Kind == 'i' && dt.Size == 4:
			out[i] = float64(int32(dt.Order.Uint32(item)))
		case dt.Kind == 'u' && dt.Size == 1:
			out[i] = float64(item[0])
		case dt.Kind == 'u' && dt.Size == 2:
			out[i] = float64(dt.Order.Uint16(item))
		case dt.Kind == 'u' && dt.Size == 4:
			out[i] = float64(dt.Order.Uint32(item))
		}
	}
	return out, nil
}
