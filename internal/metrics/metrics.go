package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "viewer_manager"

var (
	// ArchiveQueries counts archive queries by connector, type and outcome
	ArchiveQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "archive_queries_total",
		Help:      "Archive queries executed, by connector and outcome.",
	}, []string{"connector", "type", "outcome"})

	// ArchiveQueryDuration observes archive query latency
	ArchiveQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "archive_query_duration_seconds",
		Help:      "Archive query latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"connector", "type"})

	// SearchCache counts cache lookups of archive result pages
	SearchCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_cache_lookups_total",
		Help:      "Search cache lookups by result.",
	}, []string{"result"})

	// LaunchResolutions counts launch resolutions
	LaunchResolutions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "launch_resolutions_total",
		Help:      "Launch preference resolutions.",
	})

	// DuplicatePreferences counts preference conflicts surfaced for review
	DuplicatePreferences = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "duplicate_preferences_total",
		Help:      "Equal precedence preference conflicts detected during resolution.",
	})

	// VersionChecks counts client version checks by outcome
	VersionChecks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "version_checks_total",
		Help:      "Client version compatibility checks by outcome.",
	}, []string{"outcome"})

	// ConnectorRefreshes counts connector configuration reloads
	ConnectorRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connector_refreshes_total",
		Help:      "Connector configuration reloads by outcome.",
	}, []string{"outcome"})
)
