// Package prometheus renders otpgate engine metrics in the Prometheus text
// exposition format.
//
// The exporter keeps no registry of its own. Mount Handler wherever the
// scraper expects it.
package prometheus
