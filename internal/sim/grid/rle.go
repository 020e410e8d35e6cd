package grid

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// encodeRLE writes (palette index, run length) uvarint pairs, base64 encoded.
func encodeRLE(cells []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(cells); {
		v := cells[i]
		j := i + 1
		for j < len(cells) && cells[j] == v {
			j++
		}
		buf.Write(tmp[:binary.PutUvarint(tmp[:], uint64(v))])
		buf.Write(tmp[:binary.PutUvarint(tmp[:], uint64(j-i))])
		i = j
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

const maxCells = 1 << 22

// decodeRLE expands the pairs written by encodeRLE, refusing to produce more
// than limit cells.
func decodeRLE(b64 string, limit uint64) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFFFF {
			return nil, fmt.Errorf("palette index too large: %d", v)
		}
		if run == 0 || run > limit-uint64(len(out)) {
			return nil, fmt.Errorf("bad run length %d at %d", run, i)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(v))
		}
	}
	return out, nil
}
