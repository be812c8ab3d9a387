package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Trigger and phase metrics
	triggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_widget_triggers_total",
		Help: "Trigger actions by the action they resolved to",
	}, []string{"action"}) // action: start, stop, cancel, rejected

	currentPhase = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_widget_phase",
		Help: "Current session phase (0=idle, 1=recording, 2=processing, 3=speaking)",
	})

	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_widget_turns_total",
		Help: "Completed turns by outcome",
	}, []string{"outcome"})

	recordingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_widget_recording_duration_seconds",
		Help:    "Length of microphone recordings in seconds",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	})

	// Transcription metrics
	transcriptionRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_widget_transcription_requests_total",
		Help: "Total number of transcription requests",
	}, []string{"status"})

	transcriptionLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_widget_transcription_latency_seconds",
		Help:    "Transcription latency in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0},
	})

	// Response generation metrics
	responseRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_widget_response_requests_total",
		Help: "Total number of response generation requests",
	}, []string{"status"})

	responseLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_widget_response_latency_seconds",
		Help:    "Response generation latency in seconds",
		Buckets: []float64{0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	})

	// Playback metrics
	playbackTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_widget_playback_total",
		Help: "Speech playbacks by outcome",
	}, []string{"status"}) // status: success, error, cancelled

	playbackDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_widget_playback_duration_seconds",
		Help:    "Speech playback duration in seconds",
		Buckets: []float64{1, 2, 5, 10, 30, 60},
	})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_widget_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_widget_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_widget_circuit_breaker_failures_total",
		Help: "Total times a circuit breaker tripped open",
	}, []string{"service"})

	// Audio metrics
	audioBytesRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "voice_widget_audio_bytes_total",
		Help: "Total encoded audio bytes recorded",
	})
)

// Metrics tracks stage timings for a single session
type Metrics struct {
	sessionID          string
	recordingStartTime time.Time
	sttStartTime       time.Time
	llmStartTime       time.Time
	playbackStartTime  time.Time
	mu                 sync.Mutex
}

// NewSessionMetrics creates a new metrics tracker for a session
func NewSessionMetrics(sessionID string) *Metrics {
	return &Metrics{sessionID: sessionID}
}

// RecordTrigger counts a trigger action
func (m *Metrics) RecordTrigger(action string) {
	triggersTotal.WithLabelValues(action).Inc()
}

// RecordPhase publishes the current phase
func (m *Metrics) RecordPhase(phase int) {
	currentPhase.Set(float64(phase))
}

// RecordTurnEnd counts a finished turn
func (m *Metrics) RecordTurnEnd(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordRecordingStart records the start of microphone capture
func (m *Metrics) RecordRecordingStart() {
	m.mu.Lock()
	m.recordingStartTime = time.Now()
	m.mu.Unlock()
}

// RecordRecordingEnd records the end of microphone capture and the encoded size
func (m *Metrics) RecordRecordingEnd(bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.recordingStartTime.IsZero() {
		recordingDuration.Observe(time.Since(m.recordingStartTime).Seconds())
	}
	audioBytesRecorded.Add(float64(bytes))
}

// RecordTranscriptionStart records the start of transcription
func (m *Metrics) RecordTranscriptionStart() {
	m.mu.Lock()
	m.sttStartTime = time.Now()
	m.mu.Unlock()
}

// RecordTranscriptionEnd records the end of transcription
func (m *Metrics) RecordTranscriptionEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.sttStartTime.IsZero() {
		transcriptionLatency.Observe(time.Since(m.sttStartTime).Seconds())
	}
	transcriptionRequests.WithLabelValues(statusLabel(success)).Inc()
}

// RecordResponseStart records the start of response generation
func (m *Metrics) RecordResponseStart() {
	m.mu.Lock()
	m.llmStartTime = time.Now()
	m.mu.Unlock()
}

// RecordResponseEnd records the end of response generation
func (m *Metrics) RecordResponseEnd(success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.llmStartTime.IsZero() {
		responseLatency.Observe(time.Since(m.llmStartTime).Seconds())
	}
	responseRequests.WithLabelValues(statusLabel(success)).Inc()
}

// RecordPlaybackStart records the start of speech playback
func (m *Metrics) RecordPlaybackStart() {
	m.mu.Lock()
	m.playbackStartTime = time.Now()
	m.mu.Unlock()
}

// RecordPlaybackEnd records the end of speech playback with status success, error or cancelled
func (m *Metrics) RecordPlaybackEnd(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.playbackStartTime.IsZero() {
		playbackDuration.Observe(time.Since(m.playbackStartTime).Seconds())
	}
	playbackTotal.WithLabelValues(status).Inc()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures counts a breaker tripping open
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
