package profiledb

import (
	"encoding/json"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// blobCodec zstd-compresses sub-document JSON before it hits the profiles
// table. Inventories dominate row size and compress several-fold.
type blobCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newBlobCodec() (*blobCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &blobCodec{enc: enc, dec: dec}, nil
}

func (c *blobCodec) encode(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return nil
	}
	return c.enc.EncodeAll(raw, nil)
}

func (c *blobCodec) decode(blob []byte) (json.RawMessage, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	out, err := c.dec.DecodeAll(blob, nil)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (c *blobCodec) close() {
	c.enc.Close()
	c.dec.Close()
}

func lower(s string) string { return strings.ToLower(s) }
