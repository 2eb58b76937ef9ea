package sim

// DefaultMTU is the minimum BLE ATT MTU
const DefaultMTU = 23

// ATT Handle Value Notification: [Opcode:1][Handle:2][Value:N]
const notifyOverhead = 3

// Fragment splits value into notification payloads of at most mtu-3 bytes
func Fragment(value []byte, mtu int) [][]byte {
	if mtu <= notifyOverhead {
		mtu = DefaultMTU
	}
	chunkSize := mtu - notifyOverhead

	var chunks [][]byte
	for offset := 0; offset < len(value); offset += chunkSize {
		end := min(offset+chunkSize, len(value))
		chunk := make([]byte, end-offset)
		copy(chunk, value[offset:end])
		chunks = append(chunks, chunk)
	}
	return chunks
}
