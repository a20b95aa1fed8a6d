package renogy

import (
	"encoding/binary"
	"fmt"
)

// The BT-1/BT-2 modules tunnel Modbus RTU frames over GATT: a read request
// written to the Rx characteristic is answered as one length-prefixed
// response frame, delivered as a sequence of notification fragments:
//
//	[unit id][0x03][byte count][data ...][crc lo][crc hi]
//
// The assembler collects fragments until the length implied by the byte
// count is reached. Completeness and validity are separate questions: a
// disconnect after a complete, CRC-valid frame is benign, while a
// disconnect mid-assembly is a dropped connection.

const (
	bleUnitID       = 0xFF
	fnReadHolding   = 0x03
	bleHeaderLen    = 3
	bleTrailerLen   = 2
	maxResponseSize = bleHeaderLen + 2*bleReadCount + bleTrailerLen
)

// bleReadRequest builds the CRC-terminated read-holding-registers request
// frame for the canonical register range.
func bleReadRequest() []byte {
	frame := make([]byte, 6, 8)
	frame[0] = bleUnitID
	frame[1] = fnReadHolding
	binary.BigEndian.PutUint16(frame[2:4], bleReadStart)
	binary.BigEndian.PutUint16(frame[4:6], bleReadCount)
	return appendCRC(frame)
}

type frameAssembler struct {
	buf []byte
}

func newFrameAssembler() *frameAssembler {
	return &frameAssembler{buf: make([]byte, 0, maxResponseSize)}
}

func (a *frameAssembler) feed(fragment []byte) {
	a.buf = append(a.buf, fragment...)
}

func (a *frameAssembler) empty() bool {
	return len(a.buf) == 0
}

// drain feeds every fragment already queued on the channel, without
// blocking for more.
func (a *frameAssembler) drain(fragments <-chan []byte) {
	for {
		select {
		case fragment := <-fragments:
			a.feed(fragment)
		default:
			return
		}
	}
}

// expectedLen is the total frame size implied by the byte-count header, or
// 0 while the header is still incomplete.
func (a *frameAssembler) expectedLen() int {
	if len(a.buf) < bleHeaderLen {
		return 0
	}
	return bleHeaderLen + int(a.buf[2]) + bleTrailerLen
}

func (a *frameAssembler) complete() bool {
	want := a.expectedLen()
	return want > 0 && len(a.buf) >= want
}

// registers validates the assembled frame (function code, byte count, CRC)
// and unpacks the big-endian register words.
func (a *frameAssembler) registers() ([]uint16, error) {
	if !a.complete() {
		return nil, fmt.Errorf("incomplete frame: %d bytes", len(a.buf))
	}
	frame := a.buf[:a.expectedLen()]
	if frame[1] != fnReadHolding {
		return nil, fmt.Errorf("unexpected function code 0x%02X", frame[1])
	}
	count := int(frame[2])
	if count%2 != 0 {
		return nil, fmt.Errorf("odd byte count %d", count)
	}
	if !checkCRC(frame) {
		return nil, fmt.Errorf("crc mismatch on %d byte frame", len(frame))
	}
	data := frame[bleHeaderLen : bleHeaderLen+count]
	words := make([]uint16, count/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return words, nil
}
