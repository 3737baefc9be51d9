package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/luxfi/database/manager"
	"github.com/luxfi/log"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/stablelabs/dusd/pkg/api"
	"github.com/stablelabs/dusd/pkg/dusd"
	"github.com/stablelabs/dusd/pkg/metrics"
	"github.com/stablelabs/dusd/pkg/store"
	"github.com/stablelabs/dusd/pkg/websocket"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the dUSD accounting daemon",
	Long: `Start the dusdd server which provides:
- HTTP JSON-RPC API for issuance, redemption, and AMO operations
- WebSocket server for real-time event streams
- Prometheus metrics endpoint
- Optional NATS event publishing`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server is the default action.
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runServer(cmd, args)
	}
}

// Node wires the engine to its service surfaces and owns the event
// fan-out: one consumer reads engine events and feeds the journal, the
// WebSocket broadcast, NATS, and the counters.
type Node struct {
	config  *Config
	logger  log.Logger
	engine  *dusd.Engine
	store   *store.Store
	ws      *websocket.Server
	metrics *metrics.Metrics
	nats    *nats.Conn

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNode builds a node from configuration.
func NewNode(config *Config) (*Node, error) {
	level, _ := log.ToLevel(config.LogLevel)
	logger := log.NewTestLogger(level)
	logger.Info("Initializing dusdd node", "nodeID", config.NodeID)

	dataPath := filepath.Join(os.Getenv("HOME"), config.DataDir)
	if err := os.MkdirAll(dataPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbManager := manager.NewManager(dataPath, nil)

	dbConfig := manager.DefaultBadgerDBConfig("badgerdb")
	dbConfig.Namespace = "dusd"

	db, err := dbManager.New(dbConfig)
	if err != nil {
		logger.Warn("Failed to open BadgerDB", "error", err)
		memConfig := manager.DefaultMemoryConfig()
		db, err = dbManager.New(memConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create database: %w", err)
		}
		logger.Info("Using in-memory database")
	} else {
		logger.Info("BadgerDB initialized", "path", filepath.Join(dataPath, "badgerdb"))
	}

	journal, err := store.New(db, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	engine, err := buildEngine(config)
	if err != nil {
		return nil, err
	}

	m, err := metrics.New("dusd", engine)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Node{
		config:  config,
		logger:  logger,
		engine:  engine,
		store:   journal,
		ws:      websocket.NewServer(engine, logger, websocket.DefaultConfig()),
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// buildEngine wires an engine with the configured assets and static
// starting prices. Oracle feeds are static until an oracle-manager swaps
// in live ones over RPC.
func buildEngine(config *Config) (*dusd.Engine, error) {
	engine := dusd.NewEngine(dusd.EngineConfig{
		Admin:            config.Admin,
		FeeReceiver:      config.FeeReceiver,
		OracleStaleAfter: config.OracleStaleAfter,
	})

	receiptPrice, err := parsePrice(config.ReceiptPrice)
	if err != nil {
		return nil, err
	}
	if err := engine.Oracle.RegisterFeed(dusd.NewStaticFeed(dusd.ReceiptSymbol, receiptPrice)); err != nil {
		return nil, err
	}

	for _, asset := range config.Assets {
		price, err := parsePrice(asset.Price)
		if err != nil {
			return nil, err
		}
		if err := engine.Oracle.RegisterFeed(dusd.NewStaticFeed(asset.Symbol, price)); err != nil {
			return nil, err
		}
		token := dusd.NewToken(asset.Symbol, asset.Decimals)
		if err := engine.Collateral.Allow(config.Admin, token); err != nil {
			return nil, fmt.Errorf("failed to allow %s: %w", asset.Symbol, err)
		}
	}
	return engine, nil
}

// Start launches all node services and blocks until the context is
// cancelled.
func (n *Node) Start() error {
	n.logger.Info("Starting dusdd node",
		"nodeID", n.config.NodeID,
		"rpcPort", n.config.RPCPort,
		"wsPort", n.config.WSPort,
		"metricsPort", n.config.MetricsPort)

	if snap, ok, err := n.store.LoadSnapshot(); err != nil {
		return err
	} else if ok {
		n.logger.Info("Loaded previous snapshot",
			"totalSupply", snap.TotalSupply,
			"collateralUsd", snap.CollateralUSD,
			"at", snap.Timestamp)
	} else {
		n.logger.Info("No previous snapshot found, starting fresh")
	}

	if n.config.EnableNATS {
		nc, err := nats.Connect(n.config.NATSURL)
		if err != nil {
			n.logger.Warn("NATS unavailable, events stay local", "error", err)
		} else {
			n.nats = nc
			n.logger.Info("NATS connected", "url", n.config.NATSURL)
			n.announce()
		}
	}

	n.wg.Add(2)
	go n.runEventLoop()
	go n.runSnapshotLoop()
	go n.metrics.Collect(n.ctx)

	if err := n.metrics.StartServer(n.config.MetricsPort); err != nil {
		return err
	}

	go func() {
		if err := api.StartJSONRPCServer(n.ctx, n.config.RPCPort, n.engine, n.logger); err != nil && err != http.ErrServerClosed {
			n.logger.Error("JSON-RPC server failed", "error", err)
		}
	}()

	go func() {
		if err := n.ws.Start(n.config.WSPort); err != nil {
			n.logger.Error("WebSocket server failed", "error", err)
		}
	}()

	<-n.ctx.Done()
	return nil
}

// Stop shuts the node down in dependency order.
func (n *Node) Stop() {
	n.logger.Info("Stopping dusdd node")
	n.cancel()
	n.ws.Stop()
	n.wg.Wait()

	if n.nats != nil {
		n.nats.Drain()
	}
	if err := n.store.Close(); err != nil {
		n.logger.Error("Failed to close store", "error", err)
	}
	n.logger.Info("Shutdown complete")
}

// runEventLoop is the single consumer of the engine's event channel.
func (n *Node) runEventLoop() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			return
		case ev := <-n.engine.Events:
			if _, err := n.store.AppendEvent(ev); err != nil {
				n.logger.Error("Failed to journal event", "type", ev.Type, "error", err)
			}

			n.ws.BroadcastEvent(ev)
			n.metrics.RecordWSMessage()

			switch ev.Type {
			case dusd.EventIssued:
				n.metrics.RecordIssuance()
			case dusd.EventRedeemed:
				n.metrics.RecordRedemption()
			}

			if n.nats != nil {
				n.publishEvent(ev)
			}
		}
	}
}

// runSnapshotLoop persists and broadcasts supply snapshots on an
// interval.
func (n *Node) runSnapshotLoop() {
	defer n.wg.Done()

	ticker := time.NewTicker(n.config.SnapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.ctx.Done():
			return
		case <-ticker.C:
			snap, err := n.engine.Snapshot()
			if err != nil {
				n.logger.Warn("Snapshot skipped", "error", err)
				continue
			}
			if err := n.store.SaveSnapshot(snap); err != nil {
				n.logger.Error("Failed to persist snapshot", "error", err)
			}
			n.ws.BroadcastSnapshot(snap)
			n.metrics.RecordWSMessage()
			n.metrics.UpdateSupplies()
		}
	}
}

func (n *Node) publishEvent(ev dusd.Event) {
	data, err := json.Marshal(map[string]interface{}{
		"type":      ev.Type,
		"timestamp": ev.Timestamp.Unix(),
		"data":      ev.Data,
	})
	if err != nil {
		n.logger.Error("Failed to marshal event", "error", err)
		return
	}
	subject := "dusd.events." + string(ev.Type)
	if err := n.nats.Publish(subject, data); err != nil {
		n.logger.Error("Failed to publish event", "subject", subject, "error", err)
		return
	}
	n.metrics.RecordNATSPublish()
}

// announce tells the message bus this node is up.
func (n *Node) announce() {
	data, _ := json.Marshal(map[string]interface{}{
		"nodeId":    n.config.NodeID,
		"symbol":    dusd.ReceiptSymbol,
		"rpcPort":   n.config.RPCPort,
		"wsPort":    n.config.WSPort,
		"timestamp": time.Now().Unix(),
	})
	if err := n.nats.Publish("dusd.announce", data); err != nil {
		n.logger.Warn("Failed to announce", "error", err)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	config, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}

	node, err := NewNode(config)
	if err != nil {
		return err
	}

	// Shut down cleanly on SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		node.logger.Info("Signal received", "signal", sig)
		node.Stop()
	}()

	return node.Start()
}
