// internal/app/recorder.go
package app

// Recorder receives operational events from the services. The Prometheus
// implementation lives in infra/metrics.
type Recorder interface {
	ObserveDelivery(platform, outcome string)
	ObserveClaimed(n int)
	ObserveUpstream(source string, err error)
	ObserveArmed(kind string)
}

type noopRecorder struct{}

func (noopRecorder) ObserveDelivery(string, string)  {}
func (noopRecorder) ObserveClaimed(int)              {}
func (noopRecorder) ObserveUpstream(string, error)   {}
func (noopRecorder) ObserveArmed(string)             {}

func recorderOrNoop(r Recorder) Recorder {
	if r == nil {
		return noopRecorder{}
	}
	return r
}
