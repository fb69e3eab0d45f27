package transcoder

// jpegScanner extracts complete JPEG frames from a byte stream using the
// SOI (0xFFD8) / EOI (0xFFD9) markers. Unlike a naive byte-pair search,
// this scanner walks the JPEG marker segment structure so it is not
// fooled by 0xFFD8/0xFFD9 byte pairs that occur inside a marker's own
// payload (e.g. an embedded EXIF thumbnail).
type jpegScanner struct {
	buf         []byte
	maxSize     int
	inFrame     bool
	frameStart  int
}

func newJPEGScanner(maxFrameSize int) *jpegScanner {
	return &jpegScanner{maxSize: maxFrameSize}
}

// Feed appends newly read bytes and returns every complete JPEG frame
// found so far. It returns ErrOversizedFrame if an in-progress frame
// exceeds maxSize before an EOI is found, or if a completed frame is
// larger than maxSize.
func (s *jpegScanner) Feed(chunk []byte) ([][]byte, error) {
	s.buf = append(s.buf, chunk...)

	var frames [][]byte
	for {
		frame, consumed, err := s.scanOne()
		if err != nil {
			return frames, err
		}
		if consumed == 0 {
			break
		}
		s.buf = s.buf[consumed:]
		if frame != nil {
			frames = append(frames, frame)
		}
		if s.maxSize > 0 && len(s.buf) > s.maxSize && !s.inFrame {
			// No SOI found within a bound well past the limit: drop the
			// garbage prefix to avoid unbounded buffering on a
			// non-JPEG stream.
			s.buf = s.buf[len(s.buf)-s.maxSize:]
		}
	}
	return frames, nil
}

// scanOne finds and extracts at most one complete frame from the front
// of s.buf. It returns consumed == 0 when more data is needed.
func (s *jpegScanner) scanOne() (frame []byte, consumed int, err error) {
	start := findSOI(s.buf, 0)
	if start == -1 {
		// No start marker yet; keep only the last byte in case it is a
		// split 0xFF of a marker that will complete on the next Feed.
		if len(s.buf) > 1 {
			return nil, len(s.buf) - 1, nil
		}
		return nil, 0, nil
	}
	if start > 0 {
		// Discard leading garbage before the SOI.
		return nil, start, nil
	}

	end, markerErr := scanToEOI(s.buf, s.maxSize)
	if markerErr != nil {
		return nil, 0, markerErr
	}
	if end == -1 {
		if s.maxSize > 0 && len(s.buf) > s.maxSize {
			return nil, 0, &ErrOversizedFrame{Limit: s.maxSize}
		}
		return nil, 0, nil // need more data
	}
	if s.maxSize > 0 && end > s.maxSize {
		return nil, 0, &ErrOversizedFrame{Limit: s.maxSize}
	}

	frame = make([]byte, end)
	copy(frame, s.buf[:end])
	return frame, end, nil
}

// findSOI returns the index of the first 0xFFD8 at or after from, or -1.
func findSOI(buf []byte, from int) int {
	for i := from; i+1 < len(buf); i++ {
		if buf[i] == 0xFF && buf[i+1] == 0xD8 {
			return i
		}
	}
	return -1
}

// scanToEOI walks JPEG marker segments starting at buf[0]==0xFF,
// buf[1]==0xD8, skipping each marker's declared length so that
// 0xFFD8/0xFFD9 byte pairs embedded inside a marker's payload (e.g. a
// thumbnail in APPn/EXIF) are not mistaken for frame boundaries. It
// returns the byte offset one past the EOI marker, or -1 if the EOI has
// not arrived yet in the buffered data.
func scanToEOI(buf []byte, maxSize int) (int, error) {
	i := 2 // past SOI
	for i+1 < len(buf) {
		if maxSize > 0 && i > maxSize {
			return -1, nil
		}
		if buf[i] != 0xFF {
			i++
			continue
		}
		// Skip fill bytes (0xFF repeated).
		marker := buf[i+1]
		for marker == 0xFF && i+2 < len(buf) {
			i++
			marker = buf[i+1]
		}
		switch {
		case marker == 0xD9: // EOI
			return i + 2, nil
		case marker == 0x00 || (marker >= 0xD0 && marker <= 0xD7):
			// Stuffed byte or restart marker: no length field, advance
			// past the 2-byte marker only.
			i += 2
		case marker == 0xD8:
			// Nested SOI without an intervening EOI is malformed for a
			// single frame; report that no EOI was found. The frame never
			// completes: it fails as oversized once the buffer exceeds
			// maxSize (with maxSize 0 it keeps buffering). No resync to
			// the nested SOI is attempted.
			return -1, nil
		default:
			// Standard marker segment: next two bytes are a big-endian
			// length (inclusive of the length field itself).
			if i+3 >= len(buf) {
				return -1, nil // need more data to read the length
			}
			segLen := int(buf[i+2])<<8 | int(buf[i+3])
			if segLen < 2 {
				// Malformed length; resync byte-by-byte.
				i++
				continue
			}
			i += 2 + segLen
		}
	}
	return -1, nil
}
