// Command tag-client holds the BLE session with a respiration tag and bridges
// its readings to MQTT, a status web page and Prometheus.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sweeney/respiration-monitor/internal/client"
	"github.com/sweeney/respiration-monitor/internal/logic"
	"github.com/sweeney/respiration-monitor/internal/metrics"
	"github.com/sweeney/respiration-monitor/internal/mqtt"
	"github.com/sweeney/respiration-monitor/internal/peerstore"
	"github.com/sweeney/respiration-monitor/internal/status"
	"github.com/sweeney/respiration-monitor/internal/web"
)

type config struct {
	peer      string
	dbPath    string
	broker    string
	clientID  string
	httpAddr  string
	history   int
	heartbeat time.Duration
}

func main() {
	peer := flag.String("peer", "", "Tag address to connect to (empty resumes the stored peer or scans)")
	dbPath := flag.String("db", "/var/lib/respiration-monitor/peer.db", "Path of the paired-peer database")
	broker := flag.String("broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	clientID := flag.String("client-id", "respiration-tag-client", "MQTT client ID")
	httpAddr := flag.String("http", ":80", "HTTP status address (empty to disable)")
	history := flag.Int("history", client.DefaultConfig.HistorySize, "Number of readings kept in memory")
	heartbeat := flag.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")

	flag.Parse()

	cfg := config{
		peer:      *peer,
		dbPath:    *dbPath,
		broker:    *broker,
		clientID:  *clientID,
		httpAddr:  *httpAddr,
		history:   *history,
		heartbeat: *heartbeat,
	}
	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(cfg config) error {
	store, err := peerstore.Open(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("open peer store: %w", err)
	}
	defer store.Close()

	central, err := client.NewBLECentral()
	if err != nil {
		return fmt.Errorf("init bluetooth: %w", err)
	}

	publisher := mqtt.NewRealPublisher(cfg.broker, cfg.clientID, mqtt.DefaultBufferSize)
	defer publisher.Close()

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Peer:        cfg.peer,
		DBPath:      cfg.dbPath,
		HistorySize: cfg.history,
		Broker:      cfg.broker,
		HTTPAddr:    cfg.httpAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	b := &bridge{
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		metrics:    metrics.New(),
		hub:        web.NewHub(),
		now:        time.Now,
	}

	scfg := client.DefaultConfig
	scfg.HistorySize = cfg.history
	mgr := client.NewManager(central, nil, store, scfg, b.hooks())

	b.publishStatusEvent("STARTUP", "")

	if cfg.httpAddr != "" {
		srv := web.New(cfg.httpAddr, web.Deps{
			Tracker:    tracker,
			History:    mgr.History(),
			Controller: mgr,
			Hub:        b.hub,
			Metrics:    b.metrics,
		})
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go connectInitial(ctx, mgr, cfg.peer)

	log.Printf("started: peer=%q db=%s broker=%s history=%d heartbeat=%v",
		cfg.peer, cfg.dbPath, cfg.broker, cfg.history, cfg.heartbeat)

	var tick <-chan time.Time
	if cfg.heartbeat > 0 {
		ticker := time.NewTicker(cfg.heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(mgr, b, tick, sigCh)
}

// session is the part of *client.Manager the loop needs.
type session interface {
	Connect(ctx context.Context, peer string) error
	Resume(ctx context.Context) error
	Close() error
}

// connectInitial connects to peer, else the stored peer, else the first tag
// found by scanning.
func connectInitial(ctx context.Context, s session, peer string) {
	var err error
	switch {
	case peer != "":
		err = s.Connect(ctx, peer)
	default:
		err = s.Resume(ctx)
		if errors.Is(err, peerstore.ErrNotFound) {
			log.Printf("no stored peer, scanning")
			err = s.Connect(ctx, "")
		}
	}
	if err != nil && ctx.Err() == nil {
		log.Printf("initial connect failed: %v", err)
	}
}

func runLoop(s session, b *bridge, tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case sg := <-sig:
			log.Printf("received %v, shutting down", sg)
			signalName := "UNKNOWN"
			if sg == syscall.SIGINT {
				signalName = "SIGINT"
			} else if sg == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			if err := s.Close(); err != nil {
				log.Printf("close session: %v", err)
			}
			b.publishStatusEvent("SHUTDOWN", signalName)
			return nil

		case <-tick:
			if net := readNetworkInfo(); net != nil {
				b.tracker.SetNetwork(net)
			}
			b.publishStatusEvent("HEARTBEAT", "")
		}
	}
}

// bridge fans session callbacks out to the status tracker, metrics, live
// viewers and MQTT.
type bridge struct {
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	hub        *web.Hub
	now        func() time.Time

	received atomic.Uint64
	rejected atomic.Uint64
}

func (b *bridge) hooks() client.Hooks {
	return client.Hooks{
		OnState:   b.onState,
		OnReading: b.onReading,
		OnReject:  b.onReject,
	}
}

func (b *bridge) onState(s client.ConnectionState, d client.SessionDescriptor) {
	log.Printf("session: %s peer=%s attempts=%d", s, d.PeerID, d.Attempts)
	b.tracker.SetSession(status.Session{
		State:         s.String(),
		Peer:          d.PeerID,
		Attempts:      d.Attempts,
		LastConnected: d.LastKnownGood,
	})
	b.metrics.SetSessionState(s.String(), d.Attempts)
	b.hub.Broadcast(web.FormatSessionMessage(s.String(), d.PeerID, d.Attempts))

	event := mqtt.SessionEvent{
		Timestamp: b.now(),
		Event:     s.String(),
		State:     s.String(),
		Peer:      d.PeerID,
		Attempts:  d.Attempts,
		Retained:  true,
	}
	if err := b.publisher.PublishSession(event); err != nil {
		log.Printf("session publish error: %v", err)
	}
}

func (b *bridge) onReading(peer string, r logic.Reading) {
	at := b.now()
	b.received.Add(1)
	b.tracker.SetReading(r, at)
	b.tracker.SetCounts(b.received.Load(), b.rejected.Load())
	b.metrics.ObserveReading(r)
	b.hub.Broadcast(web.FormatReadingMessage(peer, r, at))

	if err := b.publisher.PublishReading(peer, r, at); err != nil {
		// Don't crash on publish failure
		log.Printf("publish error: %v", err)
	}
}

func (b *bridge) onReject(peer string, err error) {
	log.Printf("rejected payload from %s: %v", peer, err)
	b.rejected.Add(1)
	b.tracker.SetCounts(b.received.Load(), b.rejected.Load())
	b.metrics.ObserveRejected()
}

// publishStatusEvent publishes a retained full status snapshot.
func (b *bridge) publishStatusEvent(name, reason string) {
	if b.mqttStatus != nil {
		b.tracker.SetMQTTConnected(b.mqttStatus.IsConnected())
	}
	snap := b.tracker.Snapshot()
	event := mqtt.SessionEvent{
		Timestamp:  snap.Now,
		Event:      name,
		Reason:     reason,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, name, reason),
	}
	if err := b.publisher.PublishSession(event); err != nil {
		log.Printf("failed to publish %s event: %v", name, err)
	} else {
		log.Printf("published %s event", name)
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
