package devstate

import (
	"encoding"
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Endianness defines the byte order of the persisted records.
var Endianness = binary.LittleEndian

// ErrMalformed is returned when persisted bytes do not decode into a valid
// value.
var ErrMalformed = errors.New("malformed record")

// ConfigSize is the encoded size of a DeviceConfig:
//
//	[0]    mode kind
//	[1:9]  mode payload: float64 bits, uint64 rate, or R,G,B and zero padding
//	[9]    brightness
//	[10]   rate modifier
const ConfigSize = 11

// CountSize is the encoded size of a Count: a little-endian uint32.
const CountSize = 4

var (
	_ encoding.BinaryMarshaler   = DeviceConfig{}
	_ encoding.BinaryUnmarshaler = (*DeviceConfig)(nil)
	_ encoding.BinaryMarshaler   = Count(0)
	_ encoding.BinaryUnmarshaler = (*Count)(nil)
)

func (c DeviceConfig) MarshalBinary() ([]byte, error) {
	b := make([]byte, ConfigSize)

	switch m := c.Mode.(type) {
	case SineCycle:
		Endianness.PutUint64(b[1:9], math.Float64bits(m.Frequency))
	case Continuous:
		Endianness.PutUint64(b[1:9], m.Rate)
	case Random:
		Endianness.PutUint64(b[1:9], m.Rate)
	case Fibonacci:
		Endianness.PutUint64(b[1:9], m.Rate)
	case Static:
		copy(b[1:4], m.Color[:])
	default:
		return nil, errors.Errorf("cannot encode mode %T", c.Mode)
	}

	b[0] = byte(c.Mode.Kind())
	b[9] = c.Brightness
	b[10] = byte(c.Rate)
	return b, nil
}

func (c *DeviceConfig) UnmarshalBinary(b []byte) error {
	if len(b) != ConfigSize {
		return errors.Wrapf(ErrMalformed, "config is %d bytes, want %d", len(b), ConfigSize)
	}

	payload := b[1:9]
	var mode Mode

	switch kind := ModeKind(b[0]); kind {
	case KindSineCycle:
		freq := math.Float64frombits(Endianness.Uint64(payload))
		if math.IsNaN(freq) || math.IsInf(freq, 0) {
			return errors.Wrapf(ErrMalformed, "sine frequency %v", freq)
		}
		mode = SineCycle{Frequency: freq}
	case KindContinuous:
		mode = Continuous{Rate: Endianness.Uint64(payload)}
	case KindRandom:
		mode = Random{Rate: Endianness.Uint64(payload)}
	case KindFibonacci:
		mode = Fibonacci{Rate: Endianness.Uint64(payload)}
	case KindStatic:
		for _, pad := range payload[3:] {
			if pad != 0 {
				return errors.Wrap(ErrMalformed, "static color padding is not zero")
			}
		}
		var color [3]uint8
		copy(color[:], payload[:3])
		mode = Static{Color: color}
	default:
		return errors.Wrapf(ErrMalformed, "unknown mode kind %s", kind)
	}

	rate := RateModifier(b[10])
	if !rate.valid() {
		return errors.Wrapf(ErrMalformed, "unknown rate modifier %d", b[10])
	}

	*c = DeviceConfig{
		Mode:       mode,
		Brightness: b[9],
		Rate:       rate,
	}
	return nil
}

func (c Count) MarshalBinary() ([]byte, error) {
	b := make([]byte, CountSize)
	Endianness.PutUint32(b, uint32(c))
	return b, nil
}

func (c *Count) UnmarshalBinary(b []byte) error {
	if len(b) != CountSize {
		return errors.Wrapf(ErrMalformed, "count is %d bytes, want %d", len(b), CountSize)
	}
	v := Count(Endianness.Uint32(b))
	if v > MaxCount {
		return errors.Wrapf(ErrMalformed, "count %d out of range", v)
	}
	*c = v
	return nil
}
