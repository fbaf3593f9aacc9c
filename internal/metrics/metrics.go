package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	OffersSubmitted Counter
	OffersCanceled  Counter
	OffersRejected  Counter
	TickFailures    Counter
	IdleAlerts      Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		OffersSubmitted: n,
		OffersCanceled:  n,
		OffersRejected:  n,
		TickFailures:    n,
		IdleAlerts:      n,
	}
}
