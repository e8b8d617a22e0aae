// Package internaldefs holds the metric names, help strings and latency bucket
// bounds shared by the exporters, so Prometheus and OTel publish identical
// series.
package internaldefs
