package metrics

import (
	"context"
	"math/big"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"

	"github.com/stablelabs/dusd/pkg/dusd"
)

// Metrics exposes the engine's supply accounting through Prometheus.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry
	gatherer  prometheus.Gatherer
	logger    log.Logger
	engine    *dusd.Engine

	// Accounting metrics
	issuances       prometheus.Counter
	redemptions     prometheus.Counter
	eventsDropped   prometheus.Counter
	totalSupply     prometheus.Gauge
	circulating     prometheus.Gauge
	amoSupply       prometheus.Gauge
	totalAllocated  prometheus.Gauge
	collateralValue prometheus.Gauge
	collateralUnits prometheus.GaugeVec

	// Messaging metrics
	natsPublished prometheus.Counter
	wsMessagesOut prometheus.Counter

	// System metrics
	memoryUsage prometheus.Gauge
	goroutines  prometheus.Gauge

	lastDropped atomic.Uint64
}

// New creates the metrics registry wired to an engine.
func New(namespace string, engine *dusd.Engine) (*Metrics, error) {
	logger := log.Root().New("module", "metrics")

	registry := prometheus.NewRegistry()

	m := &Metrics{
		namespace: namespace,
		registry:  registry,
		gatherer:  registry,
		logger:    logger,
		engine:    engine,

		issuances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issuances_total",
			Help:      "Total number of issuance operations",
		}),

		redemptions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "redemptions_total",
			Help:      "Total number of redemption operations",
		}),

		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events lost to a full consumer buffer",
		}),

		totalSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_supply",
			Help:      "Receipt token total supply in whole tokens",
		}),

		circulating: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "circulating_supply",
			Help:      "Receipt token supply outside AMO reserve, in whole tokens",
		}),

		amoSupply: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "amo_supply",
			Help:      "Reserve supply held by the AMO allocator, in whole tokens",
		}),

		totalAllocated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "amo_allocated",
			Help:      "Reserve supply allocated to AMO vaults, in whole tokens",
		}),

		collateralValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collateral_value_usd",
			Help:      "Holding vault collateral value in USD",
		}),

		collateralUnits: *prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "collateral_balance",
			Help:      "Holding vault balance by asset, in whole tokens",
		}, []string{"asset"}),

		natsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nats_messages_published_total",
			Help:      "Total NATS messages published",
		}),

		wsMessagesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_broadcasts_total",
			Help:      "Total WebSocket broadcasts sent",
		}),

		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "memory_usage_bytes",
			Help:      "Current memory usage in bytes",
		}),

		goroutines: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "goroutines_count",
			Help:      "Current number of goroutines",
		}),
	}

	registry.MustRegister(
		m.issuances,
		m.redemptions,
		m.eventsDropped,
		m.totalSupply,
		m.circulating,
		m.amoSupply,
		m.totalAllocated,
		m.collateralValue,
		m.collateralUnits,
		m.natsPublished,
		m.wsMessagesOut,
		m.memoryUsage,
		m.goroutines,
	)

	logger.Info("metrics initialized", "namespace", namespace)
	return m, nil
}

// StartServer starts Prometheus metrics server
func (m *Metrics) StartServer(port string) error {
	m.logger.Info("Starting Prometheus metrics server", "port", port)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			m.logger.Error("Metrics server failed", "error", err)
		}
	}()

	m.logger.Info("Prometheus metrics available",
		"endpoint", "http://localhost:"+port+"/metrics")

	return nil
}

// RecordIssuance counts an issuance operation.
func (m *Metrics) RecordIssuance() {
	m.issuances.Inc()
}

// RecordRedemption counts a redemption operation.
func (m *Metrics) RecordRedemption() {
	m.redemptions.Inc()
}

// RecordNATSPublish counts a published NATS message.
func (m *Metrics) RecordNATSPublish() {
	m.natsPublished.Inc()
}

// RecordWSMessage counts a WebSocket broadcast.
func (m *Metrics) RecordWSMessage() {
	m.wsMessagesOut.Inc()
}

// wholeTokens renders a raw big.Int amount as a float of whole tokens.
// Gauges are observability, not accounting; float rounding is acceptable
// here and nowhere else.
func wholeTokens(raw *big.Int, decimals uint8) float64 {
	f, _ := decimal.NewFromBigInt(raw, -int32(decimals)).Float64()
	return f
}

// UpdateSupplies refreshes the supply gauges from the engine.
func (m *Metrics) UpdateSupplies() {
	m.totalSupply.Set(wholeTokens(m.engine.Receipt.TotalSupply(), dusd.ReceiptDecimals))
	m.circulating.Set(wholeTokens(m.engine.Issuer.CirculatingSupply(), dusd.ReceiptDecimals))
	m.amoSupply.Set(wholeTokens(m.engine.Allocator.TotalAmoSupply(), dusd.ReceiptDecimals))
	m.totalAllocated.Set(wholeTokens(m.engine.Allocator.TotalAllocated(), dusd.ReceiptDecimals))

	if value, err := m.engine.Collateral.TotalValue(); err == nil {
		m.collateralValue.Set(wholeTokens(value, dusd.PriceDecimals))
	}
	for _, asset := range m.engine.Collateral.Assets() {
		balance := m.engine.Collateral.Balance(asset.Symbol)
		m.collateralUnits.WithLabelValues(asset.Symbol).Set(wholeTokens(balance, asset.Decimals))
	}

	// UpdateSupplies runs from both the collector and the snapshot loop.
	d := m.engine.DroppedEvents()
	if prev := m.lastDropped.Swap(d); d > prev {
		m.eventsDropped.Add(float64(d - prev))
	}
}

// Collect refreshes supply and system gauges on an interval until the
// context is cancelled.
func (m *Metrics) Collect(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.UpdateSupplies()

			var memStats runtime.MemStats
			runtime.ReadMemStats(&memStats)
			m.memoryUsage.Set(float64(memStats.Alloc))
			m.goroutines.Set(float64(runtime.NumGoroutine()))
		}
	}
}
