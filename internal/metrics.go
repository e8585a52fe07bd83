package internal

import "expvar"

var (
	requestsTotal  = expvar.NewMap("achievibit_requests_total")
	parseErrors    = expvar.NewMap("achievibit_parse_errors_total")
	ignoredEvents  = expvar.NewMap("achievibit_ignored_events_total")
	appliedEvents  = expvar.NewMap("achievibit_applied_events_total")
	selfHeals      = expvar.NewMap("achievibit_self_heals_total")
	applyErrors    = expvar.NewMap("achievibit_apply_errors_total")
	statusRejected = expvar.NewMap("achievibit_status_rejected_total")
	publishErrors  = expvar.NewMap("achievibit_publish_errors_total")
)

func IncRequest(provider string) {
	requestsTotal.Add(provider, 1)
}

func IncParseError(provider string) {
	parseErrors.Add(provider, 1)
}

// IncIgnored counts deliveries whose (type, action) has no route.
func IncIgnored(key string) {
	ignoredEvents.Add(key, 1)
}

func IncApplied(key string) {
	appliedEvents.Add(key, 1)
}

func IncSelfHeal(key string) {
	selfHeals.Add(key, 1)
}

func IncApplyError(kind string) {
	applyErrors.Add(kind, 1)
}

func IncStatusRejected(key string) {
	statusRejected.Add(key, 1)
}

func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}
