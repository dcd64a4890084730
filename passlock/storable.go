package passlock

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformedStorable is returned by FromStorable when the input cannot be parsed back into a Protection.
var ErrMalformedStorable = errors.New("malformed storable string")

// The storable string opens with a fixed-width preamble of six binary-text length fields: four 16-bit fields for the
// ciphertext, initialization vector, salt, and key, then two 8-bit fields for the encoding names. The lengths count
// characters of the base64-encoded fields that follow.
const (
	wideFieldBits   = 16
	narrowFieldBits = 8
	preambleLen     = 4*wideFieldBits + 2*narrowFieldBits
)

// b64 encodes the storable fields. Padding is stripped per field; the whole string is padded at the end instead.
var b64 = base64.RawStdEncoding

// Storable packs the Protection into a single string that survives being written to disk or an object store.
//
// Layout: an 80-character preamble of binary-text lengths (16 bits each for ciphertext, initialization vector, salt,
// and key, 8 bits each for the two encoding names), followed by the six fields base64-encoded without padding, in the
// same order. The result is right-padded with '=' to a multiple of 4 so it still looks like one base64 blob to casual
// tooling.
func (p *Protection) Storable() string {
	fields := []string{
		b64.EncodeToString(p.ciphertext),
		b64.EncodeToString(p.iv),
		b64.EncodeToString(p.salt),
		b64.EncodeToString(p.key),
		b64.EncodeToString([]byte(p.inEnc)),
		b64.EncodeToString([]byte(p.outEnc)),
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "%016b%016b%016b%016b%08b%08b",
		len(fields[0]), len(fields[1]), len(fields[2]), len(fields[3]), len(fields[4]), len(fields[5]))
	for _, f := range fields {
		sb.WriteString(f)
	}

	s := sb.String()
	if n := len(s) % 4; n != 0 {
		s += strings.Repeat("=", 4-n)
	}

	return s
}

// FromStorable reconstructs a Protection from a string produced by Storable.
//
// The preamble lengths drive the parse, so trailing '=' padding is ignored. Any inconsistency (short input, non-binary
// preamble, invalid base64) returns an error wrapping ErrMalformedStorable; none of the partially parsed material is
// returned.
func FromStorable(s string) (*Protection, error) {
	if len(s) < preambleLen {
		return nil, fmt.Errorf("%w: length %d is shorter than the %d-character preamble", ErrMalformedStorable, len(s), preambleLen)
	}

	bits := []int{wideFieldBits, wideFieldBits, wideFieldBits, wideFieldBits, narrowFieldBits, narrowFieldBits}
	lengths := make([]int, 0, len(bits))
	for i, offset := 0, 0; i < len(bits); offset, i = offset+bits[i], i+1 {
		v, err := strconv.ParseUint(s[offset:offset+bits[i]], 2, bits[i])
		if err != nil {
			return nil, fmt.Errorf("%w: parse preamble field %d error: %v", ErrMalformedStorable, i, err)
		}

		lengths = append(lengths, int(v))
	}

	body, fields := s[preambleLen:], make([][]byte, 0, 6)
	for i, n := range lengths {
		if len(body) < n {
			return nil, fmt.Errorf("%w: field %d wants %d characters, %d remain", ErrMalformedStorable, i, n, len(body))
		}

		v, err := b64.DecodeString(body[:n])
		if err != nil {
			return nil, fmt.Errorf("%w: decode field %d error: %v", ErrMalformedStorable, i, err)
		}

		fields, body = append(fields, v), body[n:]
	}

	return &Protection{
		ciphertext: fields[0],
		iv:         fields[1],
		salt:       fields[2],
		key:        fields[3],
		inEnc:      string(fields[4]),
		outEnc:     string(fields[5]),
	}, nil
}
