// Command poolbridged wires the RS-485/IP pool-automation bridge together:
// Link, Datalink-RX, the Network codec, PoolState, the PoolTask scheduler,
// the egress dispatch/discovery table, and the HTTP surface. Flag handling
// follows the teacher's cmd/azurl/main.go style (flag.String/flag.Usage).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"github.com/atsika/poolbridge/pkg/cloudqueue"
	"github.com/atsika/poolbridge/pkg/config"
	"github.com/atsika/poolbridge/pkg/egress"
	"github.com/atsika/poolbridge/pkg/httpapi"
	"github.com/atsika/poolbridge/pkg/link"
	"github.com/atsika/poolbridge/pkg/metrics"
	"github.com/atsika/poolbridge/pkg/netmsg"
	"github.com/atsika/poolbridge/pkg/poolstate"
	"github.com/atsika/poolbridge/pkg/scheduler"
)

func main() {
	boardFlag := flag.String("board", "", "board identity, overrides the bootstrapped config's Board")
	httpAddrFlag := flag.String("http-addr", "", "HTTP listen address, overrides the bootstrapped config's HTTPListenAddr")
	cacheFlag := flag.String("config-cache", "/var/lib/poolbridge/config.json", "local JSON config cache path, used when the blob fetch fails")
	logLevelFlag := flag.String("log-level", "", "log level, overrides the bootstrapped config's LogLevel")

	flag.Usage = printUsage
	flag.Parse()

	cfg, cfgErr := config.Load(context.Background(), nil, *cacheFlag)
	if *boardFlag != "" {
		cfg.Board = *boardFlag
	}
	if *httpAddrFlag != "" {
		cfg.HTTPListenAddr = *httpAddrFlag
	}
	if *logLevelFlag != "" {
		cfg.LogLevel = *logLevelFlag
	}

	log := newLogger(cfg.LogLevel)
	if cfgErr != nil {
		log.WithError(cfgErr).Warn("config bootstrap fell back to defaults")
	}

	reg := prometheus.NewRegistry()
	m := metrics.NewPrometheus(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	uart := newUART(cfg, log)
	l := link.New(uart, m, log)
	codec := netmsg.NewCodec(m, log)
	store := poolstate.NewStore(m)

	devices := defaultDevices(cfg.Board)
	table := egress.NewTable(devices, store, log)
	stateTopic := fmt.Sprintf("%s/state", cfg.MQTTDataTopic)
	sink := &logSink{log: log}
	publisher := egress.NewStatePublisher(table, sink, stateTopic, log)

	relay := cloudqueue.NewChanRelay(log)

	task := scheduler.New(l, codec, store, relay.Chan(), table, publisher, m, log)
	periodic := scheduler.NewPeriodicRequester(l, codec, log)
	task.Startup()

	httpServer := httpapi.New(store, relay, cfg.Board, "1.0.0", nil, log)

	go periodic.Run(ctx)
	go publisher.RunDiscoveryLoop(ctx)
	go func() {
		addr := cfg.HTTPListenAddr
		log.WithField("addr", addr).Info("starting HTTP surface")
		if err := fasthttp.ListenAndServe(addr, httpServer.Handler); err != nil {
			log.WithError(err).Error("HTTP server stopped")
		}
	}()

	log.Info("poolbridge starting")
	task.Run(ctx)
	log.Info("poolbridge stopped")
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "poolbridged: RS-485 <-> IP pool-automation protocol bridge")
	flag.PrintDefaults()
}

func newLogger(level string) *logrus.Entry {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(level); err == nil {
		base.SetLevel(lvl)
	}
	return logrus.NewEntry(base)
}

// defaultDevices is the fixed entity set this bridge exposes; there is no
// per-board device catalog.
func defaultDevices(board string) []egress.Device {
	return []egress.Device{
		{Kind: egress.Switch, Board: board, ID: "pool_pump", Circuit: poolstate.CircuitPool},
		{Kind: egress.Switch, Board: board, ID: "spa", Circuit: poolstate.CircuitSPA},
		{Kind: egress.Climate, Board: board, ID: "pool", Body: poolstate.Pool},
		{Kind: egress.Climate, Board: board, ID: "spa", Body: poolstate.Spa},
		{Kind: egress.Sensor, Board: board, ID: "air_temp"},
		{Kind: egress.Sensor, Board: board, ID: "salt_ppm"},
		{Kind: egress.Sensor, Board: board, ID: "pump_watts"},
		{Kind: egress.Sensor, Board: board, ID: "pump_rpm"},
	}
}

// logSink is the egress.Sink used when no MQTT client is configured: it
// logs what would have been published. The concrete broker client is out of
// scope (spec §1 Out-of-scope).
type logSink struct {
	log *logrus.Entry
}

func (s *logSink) Publish(topic string, payload []byte) error {
	s.log.WithFields(logrus.Fields{"topic": topic, "payload": string(payload)}).Debug("egress publish")
	return nil
}

// stubUART satisfies link.UART with no physical backing. The real
// RS-485/GPIO driver is out of scope per spec Non-goals; deployments must
// supply their own link.UART implementation in place of this stub.
type stubUART struct {
	log *logrus.Entry
}

func newUART(cfg config.Config, log *logrus.Entry) link.UART {
	log.Warn("no physical RS-485 UART driver wired in; using a stub that never produces bytes")
	return &stubUART{log: log.WithField("component", "stub_uart")}
}

func (u *stubUART) ReadBytes(ctx context.Context, dst []byte, timeout time.Duration) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-time.After(timeout):
		return 0, nil
	}
}

func (u *stubUART) WriteBytes(data []byte) error { return nil }
func (u *stubUART) Flush() error                 { return nil }
func (u *stubUART) SetRTS(asserted bool) error   { return nil }
