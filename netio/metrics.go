package netio

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports per-service reactor counters as Prometheus gauges,
// following the custom-Collector shape of runZeroInc/sockstats'
// TCPInfoCollector (pkg/exporter/exporter.go): a Describe/Collect pair
// reading live state under a lock rather than pre-registered metric
// vectors, so a service that hasn't been registered yet costs nothing.
type Collector struct {
	reactor *Reactor

	bytesIn   *prometheus.Desc
	bytesOut  *prometheus.Desc
	connects  *prometheus.Desc
	accepts   *prometheus.Desc
	removes   *prometheus.Desc
	openConns *prometheus.Desc
	uniqueIPs *prometheus.Desc
}

// NewCollector builds a Collector bound to reactor's live service set.
func NewCollector(reactor *Reactor) *Collector {
	return &Collector{
		reactor: reactor,
		bytesIn: prometheus.NewDesc("go1090_service_bytes_in_total",
			"Bytes read by this service.", []string{"service"}, nil),
		bytesOut: prometheus.NewDesc("go1090_service_bytes_out_total",
			"Bytes written by this service.", []string{"service"}, nil),
		connects: prometheus.NewDesc("go1090_service_connects_total",
			"Active connect attempts that succeeded.", []string{"service"}, nil),
		accepts: prometheus.NewDesc("go1090_service_accepts_total",
			"Accepted inbound connections.", []string{"service"}, nil),
		removes: prometheus.NewDesc("go1090_service_removes_total",
			"Connections torn down.", []string{"service"}, nil),
		openConns: prometheus.NewDesc("go1090_service_open_connections",
			"Currently open connections.", []string{"service"}, nil),
		uniqueIPs: prometheus.NewDesc("go1090_unique_client_ips",
			"Distinct (client address, service) pairs seen.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.bytesIn
	ch <- c.bytesOut
	ch <- c.connects
	ch <- c.accepts
	ch <- c.removes
	ch <- c.openConns
	ch <- c.uniqueIPs
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.reactor.mu.Lock()
	services := make([]*Service, 0, len(c.reactor.services))
	for _, s := range c.reactor.services {
		services = append(services, s)
	}
	c.reactor.mu.Unlock()

	for _, svc := range services {
		svc.mu.Lock()
		bytesIn, bytesOut := svc.BytesIn, svc.BytesOut
		connects, accepts, removes := svc.Connects, svc.Accepts, svc.Removes
		svc.mu.Unlock()

		name := svc.Name
		ch <- prometheus.MustNewConstMetric(c.bytesIn, prometheus.CounterValue, float64(bytesIn), name)
		ch <- prometheus.MustNewConstMetric(c.bytesOut, prometheus.CounterValue, float64(bytesOut), name)
		ch <- prometheus.MustNewConstMetric(c.connects, prometheus.CounterValue, float64(connects), name)
		ch <- prometheus.MustNewConstMetric(c.accepts, prometheus.CounterValue, float64(accepts), name)
		ch <- prometheus.MustNewConstMetric(c.removes, prometheus.CounterValue, float64(removes), name)
		ch <- prometheus.MustNewConstMetric(c.openConns, prometheus.GaugeValue, float64(svc.OpenCount()), name)
	}

	ch <- prometheus.MustNewConstMetric(c.uniqueIPs, prometheus.GaugeValue, float64(c.reactor.Unique.Count()))
}
