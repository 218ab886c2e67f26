package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Moves              *prometheus.CounterVec
	GeolocationLookups *prometheus.CounterVec
	LookupSeconds      *prometheus.HistogramVec
	Waypoints          prometheus.Gauge
	AutopilotCommands  *prometheus.CounterVec
	TotalDistance      prometheus.Gauge
	Speed              prometheus.Gauge
	PositionsRecorded  *prometheus.CounterVec
	ConnectedClients   prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Moves: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "strider_moves_total",
			Help: "Total number of directional moves applied to the simulated position.",
		}, []string{"direction"}),
		GeolocationLookups: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "strider_geolocation_lookups_total",
			Help: "Total number of geolocation lookups by source and outcome.",
		}, []string{"source", "status"}),
		LookupSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strider_lookup_duration_seconds",
			Help:    "Duration of outbound lookups (IP geolocation, destination search).",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		Waypoints: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "strider_waypoints",
			Help: "Current number of placed waypoints.",
		}),
		AutopilotCommands: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "strider_autopilot_commands_total",
			Help: "Total number of commands handed to the autopilot.",
		}, []string{"command", "status"}),
		TotalDistance: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "strider_total_distance_meters",
			Help: "Distance walked by the simulated position since start.",
		}),
		Speed: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "strider_speed_kmh",
			Help: "Speed between the two most recent positions.",
		}),
		PositionsRecorded: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "strider_positions_recorded_total",
			Help: "Total number of positions written to the track store.",
		}, []string{"status"}),
		ConnectedClients: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "strider_connected_clients",
			Help: "Current number of connected map view clients.",
		}),
	}
}
