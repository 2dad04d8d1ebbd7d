package scheduler

// Align returns the smallest multiple of freqMicros that is >= t, anchoring
// every node's schedule to the same global epoch so that two nodes given the
// same check compute identical absolute due times.
func Align(t, freqMicros int64) int64 {
	if freqMicros <= 0 {
		return t
	}
	return ((t + freqMicros - 1) / freqMicros) * freqMicros
}
