package audio

import "encoding/binary"

// Signal problems reported by SignalProblem.
const (
	ProblemNoSignal = "NoSignal"
	ProblemTooLoud  = "TooLoud"
)

const (
	clipLevel    = 32000
	clipFraction = 0.05
)

// SignalProblem inspects one s16le chunk. A chunk of digital silence is
// NoSignal; one where at least 5% of samples sit at the rails is TooLoud.
func SignalProblem(chunk []byte) (string, bool) {
	samples := len(chunk) / 2
	if samples == 0 {
		return "", false
	}

	var silent, clipped int
	for i := 0; i+1 < len(chunk); i += 2 {
		s := int16(binary.LittleEndian.Uint16(chunk[i:]))
		switch {
		case s == 0:
			silent++
		case s >= clipLevel || s <= -clipLevel:
			clipped++
		}
	}

	switch {
	case silent == samples:
		return ProblemNoSignal, true
	case float64(clipped) >= clipFraction*float64(samples):
		return ProblemTooLoud, true
	}
	return "", false
}
