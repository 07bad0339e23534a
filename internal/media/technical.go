package media

// Technical describes the encoded streams of a file.
type Technical struct {
	Resolution string
	VideoCodec string
	AudioCodec string
}

// IsZero reports whether nothing is known about the streams.
func (t Technical) IsZero() bool {
	return t == Technical{}
}
