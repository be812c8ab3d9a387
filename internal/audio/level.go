package audio

import "math"

// DefaultSpeechThreshold is the RMS level above which a frame counts as speech
const DefaultSpeechThreshold = 500.0

// SpeechDetector tracks how much of a recording contained speech energy.
// It only reports; it never ends a recording.
type SpeechDetector struct {
	threshold    float64
	frames       int
	speechFrames int
	peak         float64
}

// NewSpeechDetector creates a detector, using DefaultSpeechThreshold when threshold <= 0
func NewSpeechDetector(threshold float64) *SpeechDetector {
	if threshold <= 0 {
		threshold = DefaultSpeechThreshold
	}
	return &SpeechDetector{threshold: threshold}
}

// ProcessFrame updates the counters with one PCM frame and reports whether it held speech
func (d *SpeechDetector) ProcessFrame(samples []int16) bool {
	rms := CalculateRMS(samples)
	d.frames++
	if rms > d.peak {
		d.peak = rms
	}
	if rms > d.threshold {
		d.speechFrames++
		return true
	}
	return false
}

// Reset clears the counters
func (d *SpeechDetector) Reset() {
	d.frames = 0
	d.speechFrames = 0
	d.peak = 0
}

// Frames returns the number of frames seen
func (d *SpeechDetector) Frames() int {
	return d.frames
}

// SpeechFrames returns the number of frames above the threshold
func (d *SpeechDetector) SpeechFrames() int {
	return d.speechFrames
}

// PeakRMS returns the loudest frame level seen
func (d *SpeechDetector) PeakRMS() float64 {
	return d.peak
}

// HeardSpeech reports whether any frame crossed the threshold
func (d *SpeechDetector) HeardSpeech() bool {
	return d.speechFrames > 0
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
