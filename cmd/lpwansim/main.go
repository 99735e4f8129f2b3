// SPDX-License-Identifier: GPL-3.0

package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/heistp/lpwansim/internal/config"
	"github.com/heistp/lpwansim/internal/device"
	"github.com/heistp/lpwansim/internal/engine"
	"github.com/heistp/lpwansim/internal/gateway"
	"github.com/heistp/lpwansim/internal/metrics"
	"github.com/heistp/lpwansim/internal/network"
	"github.com/heistp/lpwansim/internal/packet"
)

var (
	configPath = flag.StringP("config", "c", "", "path to the simulation config YAML (required)")
	outputDir  = flag.StringP("output-dir", "o", "", "directory to write run artifacts to (required)")
	verbose    = flag.BoolP("verbose", "v", false, "enable debug-level logging")
)

func main() {
	flag.Parse()
	if *configPath == "" || *outputDir == "" {
		fmt.Fprintln(os.Stderr, "lpwansim: --config and --output-dir are required")
		os.Exit(1)
	}
	if err := run(*configPath, *outputDir, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "lpwansim:", err)
		os.Exit(1)
	}
}

func run(configPath, outputDir string, verbose bool) error {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return errors.Wrap(err, "create output dir")
	}

	runID := uuid.New()
	logFile, err := os.Create(filepath.Join(outputDir, "simulation.log"))
	if err != nil {
		return errors.Wrap(err, "create simulation.log")
	}
	defer logFile.Close()

	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetOutput(io.MultiWriter(logFile, os.Stderr))
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}
	log := logger.WithField("run_id", runID)
	log.Info("starting lpwansim")

	cfg, err := config.Load(configPath)
	if err != nil {
		return errors.Wrap(err, "load config")
	}
	if err := writeConfigYAML(outputDir, cfg); err != nil {
		return errors.Wrap(err, "write config.yaml")
	}

	protos := enabledProtocols(cfg)
	if len(protos) == 0 {
		return errors.New("no protocols enabled")
	}

	coord := newCoordinator(cfg)
	mc := metrics.New(
		engine.Clock(cfg.Simulation.WarmupHours*3600*1000),
		engine.Clock(cfg.Metrics.CollectIntervalS*1000),
	)
	promReg := metrics.NewRegistry()

	numDevices := cfg.Network.NumDevices
	handlers := make([]engine.Handler, 0, numDevices+1)
	deviceIDs := make([]engine.NodeID, 0, numDevices)
	gwID := engine.NodeID(numDevices)

	for i := 0; i < numDevices; i++ {
		d := device.New(gwID, cfg, coord, mc, promReg, protos, cfg.Simulation.Seed+int64(i)+1)
		handlers = append(handlers, d)
		deviceIDs = append(deviceIDs, engine.NodeID(i))
	}
	gw := gateway.New(cfg, coord, mc, promReg, deviceIDs, protos, cfg.Simulation.Seed)
	handlers = append(handlers, gw)

	sim := engine.NewSim(handlers)
	sim.Until(engine.Clock(cfg.Simulation.DurationHours * 3600 * 1000))
	sim.OnEvent(promReg.IncEvents)

	log.WithFields(logrus.Fields{
		"num_devices": numDevices,
		"duration_hours": cfg.Simulation.DurationHours,
		"protocols": protoNames(protos),
	}).Info("running simulation")

	if err := sim.Run(); err != nil {
		return errors.Wrap(err, "simulation run")
	}

	if err := metrics.DumpPrometheus(promReg, logFile); err != nil {
		log.WithError(err).Warn("failed to dump prometheus metrics")
	}

	summaries := mc.Finalize()
	if err := writeSummaryYAML(outputDir, runID, summaries); err != nil {
		return errors.Wrap(err, "write summary.yaml")
	}
	if err := writeMetricsCSV(outputDir, mc.Rows()); err != nil {
		return errors.Wrap(err, "write metrics.csv")
	}
	if err := writeProtocolComparisonCSV(outputDir, summaries); err != nil {
		return errors.Wrap(err, "write protocol_comparison.csv")
	}

	printSummaryTable(summaries)
	log.Info("lpwansim finished")
	return nil
}

func newCoordinator(cfg *config.Config) *network.Coordinator {
	if cfg.Network.Type == "nbiot" {
		return network.NewNBIoTCoordinator()
	}
	return network.NewLoRaWANCoordinator(
		cfg.Network.LoRaWAN.DutyCycle,
		engine.Clock(cfg.Network.LoRaWAN.RX1DelayMs),
		engine.Clock(cfg.Network.LoRaWAN.RX2DelayMs),
	)
}

func enabledProtocols(cfg *config.Config) []packet.Protocol {
	var protos []packet.Protocol
	if cfg.Protocols.Novel.Enabled {
		protos = append(protos, packet.Novel)
	}
	if cfg.Protocols.CompactPS.Enabled {
		protos = append(protos, packet.CompactPS)
	}
	if cfg.Protocols.ReqResp.Enabled {
		protos = append(protos, packet.ReqResp)
	}
	return protos
}

func protoNames(protos []packet.Protocol) []string {
	names := make([]string, len(protos))
	for i, p := range protos {
		names[i] = p.String()
	}
	return names
}

func writeConfigYAML(outputDir string, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "config.yaml"), data, 0o644)
}

// summaryDoc is the on-disk shape of summary.yaml: the run ID alongside the
// per-protocol KPI summaries.
type summaryDoc struct {
	RunID    string                            `yaml:"run_id"`
	Protocols map[string]metrics.Summary       `yaml:"protocols"`
}

func writeSummaryYAML(outputDir string, runID uuid.UUID, summaries map[packet.Protocol]metrics.Summary) error {
	doc := summaryDoc{RunID: runID.String(), Protocols: make(map[string]metrics.Summary, len(summaries))}
	for p, s := range summaries {
		doc.Protocols[p.String()] = s
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, "summary.yaml"), data, 0o644)
}

func writeMetricsCSV(outputDir string, rows []metrics.Row) error {
	f, err := os.Create(filepath.Join(outputDir, "metrics.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp_ms", "device_id", "protocol", "direction", "packet_size", "airtime_ms", "success", "qos_class", "energy_mj"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.FormatInt(int64(r.TimestampMs), 10),
			strconv.Itoa(int(r.DeviceID)),
			r.Protocol.String(),
			r.Direction.String(),
			strconv.Itoa(r.PacketSize),
			strconv.FormatInt(int64(r.AirtimeMs), 10),
			strconv.FormatBool(r.Success),
			r.QosClass.String(),
			strconv.FormatFloat(r.EnergyMj, 'f', -1, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeProtocolComparisonCSV(outputDir string, summaries map[packet.Protocol]metrics.Summary) error {
	f, err := os.Create(filepath.Join(outputDir, "protocol_comparison.csv"))
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"protocol", "delivery_rate", "avg_cmd_latency_ms", "energy_per_msg_mj", "uplink_bytes", "downlink_bytes", "total_airtime_ms", "commands_applied", "ack_efficiency"}); err != nil {
		return err
	}
	for _, p := range []packet.Protocol{packet.Novel, packet.CompactPS, packet.ReqResp} {
		s, ok := summaries[p]
		if !ok {
			continue
		}
		rec := []string{
			p.String(),
			strconv.FormatFloat(s.DeliveryRate, 'f', 6, 64),
			strconv.FormatFloat(s.AvgCmdLatencyMs, 'f', 3, 64),
			strconv.FormatFloat(s.EnergyPerMsgMj, 'f', 6, 64),
			strconv.FormatUint(s.UplinkBytes, 10),
			strconv.FormatUint(s.DownlinkBytes, 10),
			strconv.FormatUint(s.TotalAirtimeMs, 10),
			strconv.FormatUint(s.CommandsApplied, 10),
			strconv.FormatFloat(s.AckEfficiency, 'f', 3, 64),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func printSummaryTable(summaries map[packet.Protocol]metrics.Summary) {
	fmt.Println()
	fmt.Printf("%-12s %10s %14s %12s %10s\n", "protocol", "delivery", "cmd_lat_ms", "energy_mj", "acks")
	for _, p := range []packet.Protocol{packet.Novel, packet.CompactPS, packet.ReqResp} {
		s, ok := summaries[p]
		if !ok {
			continue
		}
		fmt.Printf("%-12s %10.4f %14.2f %12.4f %10.2f\n", p.String(), s.DeliveryRate, s.AvgCmdLatencyMs, s.EnergyPerMsgMj, s.AckEfficiency)
	}
	fmt.Println()
}
