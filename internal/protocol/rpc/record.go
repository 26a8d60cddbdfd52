package rpc

import (
	"encoding/binary"
	"fmt"
)

// RecordReader reassembles record-marked messages from a byte stream that
// arrives in arbitrary chunks, as it does from a non-blocking socket.
//
// Feed appends raw bytes; Next pops complete records in arrival order.
type RecordReader struct {
	buf    []byte
	record []byte
}

// Feed appends bytes read from the stream.
func (rr *RecordReader) Feed(p []byte) {
	rr.buf = append(rr.buf, p...)
}

// Buffered reports how many raw bytes are waiting to be parsed.
func (rr *RecordReader) Buffered() int {
	return len(rr.buf)
}

// Next returns the next complete record. ok is false when more bytes are
// needed. An error means the stream is corrupt and must be abandoned.
func (rr *RecordReader) Next() (record []byte, ok bool, err error) {
	for {
		if len(rr.buf) < 4 {
			return nil, false, nil
		}

		header := binary.BigEndian.Uint32(rr.buf[:4])
		size := int(header & FragmentSizeMask)
		last := header&LastFragmentFlag != 0

		if len(rr.record)+size > MaxRecordSize {
			return nil, false, fmt.Errorf("record exceeds %d bytes", MaxRecordSize)
		}
		if len(rr.buf) < 4+size {
			return nil, false, nil
		}

		rr.record = append(rr.record, rr.buf[4:4+size]...)
		rr.buf = rr.buf[4+size:]

		if last {
			record = rr.record
			rr.record = nil
			if len(rr.buf) == 0 {
				rr.buf = nil
			}
			return record, true, nil
		}
	}
}

// Reset drops any partially received data.
func (rr *RecordReader) Reset() {
	rr.buf = nil
	rr.record = nil
}
