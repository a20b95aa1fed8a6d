package renogy

// crc16 computes the Modbus RTU CRC-16 (poly 0xA001, init 0xFFFF) over a
// frame. The serial library validates wire CRCs itself; this is needed for
// the BT-1/BT-2 notification payloads, which carry Modbus frames verbatim.
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// appendCRC appends the little-endian CRC of data to data.
func appendCRC(data []byte) []byte {
	crc := crc16(data)
	return append(data, byte(crc&0xFF), byte(crc>>8))
}

// checkCRC reports whether the trailing two bytes of frame hold a valid
// little-endian CRC over the preceding bytes.
func checkCRC(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	body, tail := frame[:len(frame)-2], frame[len(frame)-2:]
	crc := crc16(body)
	return tail[0] == byte(crc&0xFF) && tail[1] == byte(crc>>8)
}
