package sequence

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Formatter renders a reserved counter value as a public identifier. Both
// policies sit behind the same interface so allocators are indifferent to
// the id shape.
type Formatter interface {
	Format(prefix string, value int64) string
}

// DateFormatter produces prefix + yyMMdd date stamp + zero-padded sequence,
// e.g. "dr2403170000042".
type DateFormatter struct {
	Digits int
	Zone   *time.Location
}

func NewDateFormatter() DateFormatter {
	return DateFormatter{Digits: 7, Zone: time.Local}
}

func (f DateFormatter) Format(prefix string, value int64) string {
	zone := f.Zone
	if zone == nil {
		zone = time.Local
	}
	digits := f.Digits
	if digits <= 0 {
		digits = 7
	}
	return fmt.Sprintf("%s%s%0*d", prefix, time.Now().In(zone).Format("060102"), digits, value)
}

// EncodedFormatter produces prefix + a reversible, non-sequential short
// encoding of the counter value, for ids exposed externally where a
// guessable raw sequence is undesirable.
type EncodedFormatter struct {
	MinChars int
}

func NewEncodedFormatter() EncodedFormatter {
	return EncodedFormatter{MinChars: 8}
}

// mixBits spreads counter values across the id space. Multiplication by an
// odd constant modulo 2^mixWidth is a bijection, so every counter value maps
// to a distinct encoding and Decode can invert it.
const (
	mixWidth      = 48
	mixMultiplier = 0x5DEECE66D
	mixMask       = int64(1)<<mixWidth - 1
)

func (f EncodedFormatter) Format(prefix string, value int64) string {
	mixed := (value * mixMultiplier) & mixMask
	encoded := strconv.FormatInt(mixed, 32)
	if pad := f.MinChars - len(encoded); pad > 0 {
		encoded = strings.Repeat("0", pad) + encoded
	}
	return prefix + encoded
}

// Decode inverts Format for an id produced with the same prefix, recovering
// the original counter value.
func (f EncodedFormatter) Decode(prefix, id string) (int64, error) {
	encoded := strings.TrimPrefix(id, prefix)
	mixed, err := strconv.ParseInt(strings.TrimLeft(encoded, "0"), 32, 64)
	if err != nil {
		if strings.Trim(encoded, "0") == "" {
			return 0, nil
		}
		return 0, fmt.Errorf("decode id %q: %w", id, err)
	}
	return (mixed * mixInverse()) & mixMask, nil
}

// mixInverse computes the modular inverse of mixMultiplier mod 2^mixWidth
// by Newton iteration; odd numbers are always invertible mod a power of two.
func mixInverse() int64 {
	inv := int64(mixMultiplier) // correct to 3 bits
	for i := 0; i < 5; i++ {
		inv = (inv * (2 - mixMultiplier*inv)) & mixMask
	}
	return inv
}
