package extsort

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"

	"github.com/eunmann/tablesort/pkg/table"
)

var (
	rowEncMode cbor.EncMode
	rowDecMode cbor.DecMode
)

func init() {
	var err error
	rowEncMode, err = cbor.EncOptions{
		Sort:          cbor.SortNone,
		ShortestFloat: cbor.ShortestFloatNone,
		BigIntConvert: cbor.BigIntConvertNone,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("extsort: build CBOR encoder mode: %v", err))
	}

	rowDecMode, err = cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels:  20,
		MaxArrayElements: 1 << 20,
		UTF8:             cbor.UTF8DecodeInvalid,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("extsort: build CBOR decoder mode: %v", err))
	}
}

// rowEncoder writes rows as a stream of CBOR items.
type rowEncoder struct {
	enc *cbor.Encoder
	cw  *countingWriter
}

func newRowEncoder(w io.Writer) *rowEncoder {
	cw := &countingWriter{w: w}
	return &rowEncoder{enc: rowEncMode.NewEncoder(cw), cw: cw}
}

func (e *rowEncoder) Encode(row *table.Row) error {
	if err := e.enc.Encode(row); err != nil {
		return fmt.Errorf("encode row %q: %w", row.Key, err)
	}
	return nil
}

// BytesWritten returns the encoded size of all rows so far.
func (e *rowEncoder) BytesWritten() uint64 {
	return e.cw.n
}

// rowDecoder reads rows written by rowEncoder.
type rowDecoder struct {
	dec *cbor.Decoder
}

func newRowDecoder(r io.Reader) *rowDecoder {
	return &rowDecoder{dec: rowDecMode.NewDecoder(r)}
}

func (d *rowDecoder) Decode() (*table.Row, error) {
	row := new(table.Row)
	if err := d.dec.Decode(row); err != nil {
		return nil, err
	}
	return row, nil
}

type countingWriter struct {
	w io.Writer
	n uint64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += uint64(n)
	return n, err
}
