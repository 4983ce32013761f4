package audio

// Reassembler turns arbitrarily sized chunks into fixed-size frames.
// It is not safe for concurrent use.
type Reassembler struct {
	frameBytes int
	residual   []byte
}

// NewReassembler creates a reassembler producing frames of frameBytes bytes.
func NewReassembler(frameBytes int) *Reassembler {
	if frameBytes <= 0 {
		frameBytes = PCM16k.FrameBytes()
	}
	return &Reassembler{
		frameBytes: frameBytes,
		residual:   make([]byte, 0, frameBytes*2),
	}
}

// Accept appends chunk and returns every complete frame now available.
// Returned frames do not alias the chunk or internal storage.
func (r *Reassembler) Accept(chunk []byte) [][]byte {
	r.residual = append(r.residual, chunk...)
	if len(r.residual) < r.frameBytes {
		return nil
	}

	frames := make([][]byte, 0, len(r.residual)/r.frameBytes)
	offset := 0
	for len(r.residual)-offset >= r.frameBytes {
		frame := make([]byte, r.frameBytes)
		copy(frame, r.residual[offset:offset+r.frameBytes])
		frames = append(frames, frame)
		offset += r.frameBytes
	}
	r.residual = append(r.residual[:0], r.residual[offset:]...)
	return frames
}

// Residual returns the number of buffered bytes short of a full frame.
func (r *Reassembler) Residual() int {
	return len(r.residual)
}

// FrameBytes returns the configured frame size.
func (r *Reassembler) FrameBytes() int {
	return r.frameBytes
}
