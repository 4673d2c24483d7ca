package metricskey

import "github.com/effective-security/metrics"

// Descriptions of emitted metrics keys
var (
	HTTPReqPerf = metrics.Describe{
		Name:         "http_request_perf",
		Type:         "summary",
		RequiredTags: []string{"method", "status", "uri", "role"},
		Help:         "http_request_perf provides quantiles for HTTP request.",
	}
	HTTPReqSuccessful = metrics.Describe{
		Name:         "http_request_status_successful",
		Type:         "counter",
		RequiredTags: []string{"method", "status", "uri", "role"},
		Help:         "http_request_status_successful provides counts for succeeded HTTP requests.",
	}
	HTTPReqFailed = metrics.Describe{
		Name:         "http_request_status_failed",
		Type:         "counter",
		RequiredTags: []string{"method", "status", "uri", "role"},
		Help:         "http_request_status_failed provides counts for failed HTTP requests.",
	}

	DownstreamProbePerf = metrics.Describe{
		Name:         "downstream_probe_perf",
		Type:         "summary",
		RequiredTags: []string{"target", "status"},
		Help:         "downstream_probe_perf provides quantiles for downstream health probes.",
	}
	DownstreamProbeFailed = metrics.Describe{
		Name:         "downstream_probe_failed",
		Type:         "counter",
		RequiredTags: []string{"target", "status"},
		Help:         "downstream_probe_failed provides counts for failed downstream probes.",
	}

	ProxyUpstreamErrors = metrics.Describe{
		Name:         "proxy_upstream_errors",
		Type:         "counter",
		RequiredTags: []string{"upstream"},
		Help:         "proxy_upstream_errors provides counts for failed upstream round trips.",
	}

	// Metrics contains all described metrics
	Metrics = []*metrics.Describe{
		&HTTPReqPerf,
		&HTTPReqSuccessful,
		&HTTPReqFailed,
		&DownstreamProbePerf,
		&DownstreamProbeFailed,
		&ProxyUpstreamErrors,
	}
)
