package audio

// DefaultPrerollFrames holds about four seconds of 20 ms frames.
const DefaultPrerollFrames = 200

// Preroll is a bounded FIFO of frames captured before the upstream is ready.
// When full, the oldest frame is evicted. It is not safe for concurrent use.
type Preroll struct {
	max     int
	frames  [][]byte
	dropped int
}

// NewPreroll creates a preroll queue holding at most max frames.
func NewPreroll(max int) *Preroll {
	if max <= 0 {
		max = DefaultPrerollFrames
	}
	return &Preroll{
		max:    max,
		frames: make([][]byte, 0, max),
	}
}

// Push appends a frame, evicting the oldest one when the queue is full.
// It reports whether a frame was evicted.
func (p *Preroll) Push(frame []byte) bool {
	evicted := false
	if len(p.frames) >= p.max {
		p.frames[0] = nil
		p.frames = p.frames[1:]
		p.dropped++
		evicted = true
	}
	p.frames = append(p.frames, frame)
	return evicted
}

// DrainInto hands every queued frame to sink in order and empties the queue.
// On a sink error the remaining frames are discarded and the error returned.
func (p *Preroll) DrainInto(sink func([]byte) error) (int, error) {
	frames := p.frames
	p.frames = make([][]byte, 0, p.max)

	for i, frame := range frames {
		if err := sink(frame); err != nil {
			return i, err
		}
	}
	return len(frames), nil
}

// Len returns the number of queued frames.
func (p *Preroll) Len() int {
	return len(p.frames)
}

// Max returns the queue capacity.
func (p *Preroll) Max() int {
	return p.max
}

// Dropped returns how many frames were evicted by overflow.
func (p *Preroll) Dropped() int {
	return p.dropped
}
