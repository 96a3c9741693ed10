// Package metrics собирает Prometheus метрики прокси.
//
// Все методы Collector допускают nil получателя, поэтому компоненты
// могут работать без метрик (например, в тестах).
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Исходы команд для command_results_total
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomePanic    = "panic"
	OutcomeRejected = "rejected"
)

// Config параметры сборщика
type Config struct {
	Namespace string
	Subsystem string
	// Registerer куда регистрировать метрики; nil - prometheus.DefaultRegisterer
	Registerer prometheus.Registerer
}

// DefaultConfig конфигурация по умолчанию
func DefaultConfig() Config {
	return Config{
		Namespace: "astproxy",
		Subsystem: "ami",
	}
}

// Collector метрики прокси
type Collector struct {
	commandsTotal   *prometheus.CounterVec
	resultsTotal    *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec
	pendingActions  prometheus.Gauge
	framesTotal     *prometheus.CounterVec
	eventsTotal     *prometheus.CounterVec
	sendErrorsTotal prometheus.Counter
	connectionState prometheus.Gauge
}

// New создает и регистрирует метрики
func New(cfg Config) *Collector {
	reg := cfg.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	ns, sub := cfg.Namespace, cfg.Subsystem

	return &Collector{
		commandsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "commands_total",
			Help:      "Total number of commands issued",
		}, []string{"verb"}),

		resultsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "command_results_total",
			Help:      "Completed commands by outcome",
		}, []string{"verb", "outcome"}),

		commandDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "command_duration_seconds",
			Help:      "Time from sending an action to its terminal frame",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"verb"}),

		pendingActions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "pending_actions",
			Help:      "Actions waiting for a terminal frame",
		}),

		framesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "frames_total",
			Help:      "Inbound frames by kind",
		}, []string{"kind"}),

		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "events_total",
			Help:      "Unsolicited events published on the bus",
		}, []string{"event"}),

		sendErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "send_errors_total",
			Help:      "Actions that could not be written to the connection",
		}),

		connectionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: sub,
			Name:      "connection_state",
			Help:      "1 when connected to the manager port, 0 otherwise",
		}),
	}
}

// CommandStarted учитывает отправленную команду
func (c *Collector) CommandStarted(verb string) {
	if c == nil {
		return
	}
	c.commandsTotal.WithLabelValues(verb).Inc()
}

// CommandFinished учитывает завершение команды
func (c *Collector) CommandFinished(verb, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.resultsTotal.WithLabelValues(verb, outcome).Inc()
	if elapsed > 0 {
		c.commandDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
	}
}

// PendingAdded увеличивает число ожидающих действий
func (c *Collector) PendingAdded() {
	if c == nil {
		return
	}
	c.pendingActions.Inc()
}

// PendingRemoved уменьшает число ожидающих действий
func (c *Collector) PendingRemoved() {
	if c == nil {
		return
	}
	c.pendingActions.Dec()
}

// FrameReceived учитывает входящий кадр
func (c *Collector) FrameReceived(kind string) {
	if c == nil {
		return
	}
	c.framesTotal.WithLabelValues(kind).Inc()
}

// EventPublished учитывает событие, отданное на шину
func (c *Collector) EventPublished(event string) {
	if c == nil {
		return
	}
	c.eventsTotal.WithLabelValues(event).Inc()
}

// SendFailed учитывает неудачную отправку
func (c *Collector) SendFailed() {
	if c == nil {
		return
	}
	c.sendErrorsTotal.Inc()
}

// SetConnected отражает состояние соединения
func (c *Collector) SetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.connectionState.Set(1)
		return
	}
	c.connectionState.Set(0)
}
