package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"RecessionLens/internal/domain/errs"

	"github.com/klauspost/compress/zstd"
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Marshal encodes a bundle as JSON, zstd-compressed when compress is set.
func Marshal(b *Bundle, compress bool) ([]byte, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w", err)
	}
	if !compress {
		return data, nil
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return nil, fmt.Errorf("failed to create encoder: %w", err)
	}
	defer enc.Close()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
}

// Unmarshal decodes a bundle, detecting zstd by its frame magic, and
// validates it.
func Unmarshal(data []byte) (*Bundle, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create decoder: %w", err)
		}
		defer dec.Close()
		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, errs.Data("artifact", "decompression failed").Wrap(err)
		}
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		if errs.KindOf(err) != nil {
			return nil, err
		}
		return nil, errs.Data("artifact", "malformed bundle").Wrap(err)
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	return &b, nil
}

// Write marshals b to w.
func Write(w io.Writer, b *Bundle, compress bool) error {
	data, err := Marshal(b, compress)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// Read unmarshals a bundle from r.
func Read(r io.Reader) (*Bundle, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read bundle: %w", err)
	}
	return Unmarshal(data)
}
