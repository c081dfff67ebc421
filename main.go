package main

import (
	adhoc "ViewfinderOverlay/Adhoc"
	"ViewfinderOverlay/backend/cvdnn"
	"ViewfinderOverlay/backend/remote"
	"ViewfinderOverlay/config"
	"ViewfinderOverlay/engine"
	rpc "ViewfinderOverlay/gRPC"
	iface "ViewfinderOverlay/interface"
	"ViewfinderOverlay/logger"
	"ViewfinderOverlay/monitor"
	"ViewfinderOverlay/pipeline"
	"ViewfinderOverlay/web"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func GetOutboundIP() (string, error) {
	// No packet is sent; dialing UDP only resolves the outbound route.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}

func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

func newBackend(cfg config.Config) iface.Backend {
	if cfg.Backend == config.BackendRemote {
		return remote.New(cfg.RemoteURL, cfg.RemoteTimeout())
	}
	b := cvdnn.New()
	b.UseGPU = cfg.UseGPU
	return b
}

// newDetector returns nil when the model cannot be loaded; the pipeline then
// runs without detection.
func newDetector(cfg config.Config) *engine.Detector {
	names := iface.NamesConf{}
	if cfg.LabelsPath != "" {
		if _, err := os.Stat(cfg.LabelsPath); err == nil {
			names = iface.NamesConf{IsFile: true, Data: cfg.LabelsPath}
		} else {
			logger.Log().Warn("Labels file not found, using class indices", zap.String("Path", cfg.LabelsPath))
		}
	}
	det, err := engine.New(newBackend(cfg), cfg.ModelPath, names)
	if err != nil {
		logger.Log().Error("Detector unavailable, continuing without detection", zap.Error(err))
		return nil
	}
	return det
}

func main() {
	parser := argparse.NewParser("viewfinder", "Detects objects in camera frames and serves overlays for the viewfinder")
	cfgPath := parser.String("c", "config", &argparse.Options{Help: "YAML config file", Default: "config.yaml"})
	dev := parser.Flag("d", "dev", &argparse.Options{Help: "Development logging"})
	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(2)
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Println("Failed to load config:", err)
		os.Exit(1)
	}
	if *dev {
		cfg.LogMode = logger.ModeDevelopment
	}
	if err := logger.Init(cfg.LogMode); err != nil {
		fmt.Println("Failed to init logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()
	ordering, _ := pipeline.ParseOrdering(cfg.Ordering)
	nodeID := uuid.NewString()
	logger.Log().Info("Starting",
		zap.String("Node", nodeID),
		zap.String("Config", *cfgPath),
		zap.Int("HTTPPort", cfg.HTTPPort),
		zap.Int("RPCPort", cfg.RPCPort),
		zap.Int("MetricsPort", cfg.MetricsPort),
		zap.String("Backend", cfg.Backend),
		zap.String("Ordering", ordering.String()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	var wg sync.WaitGroup

	detector := newDetector(cfg)
	host := web.NewServer(detector, web.Options{
		NodeID:      nodeID,
		Backend:     cfg.Backend,
		SessionIdle: cfg.SessionIdle(),
		Ordering:    ordering,
		MaxInFlight: cfg.MaxInFlight,
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		monitor.StartMon(cfg.MetricsPort, ctx)
	}()

	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.HTTPPort), Handler: host.Router()}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Log().Error("HTTP server failed", zap.Error(err))
			cancel()
		}
	}()

	grpcSrv, err := rpc.StartGRPCServer(cfg.RPCPort, host)
	if err != nil {
		logger.Log().Error("gRPC server failed", zap.Error(err))
		cancel()
	}

	if cfg.UseRegServer {
		ip, err := GetOutboundIP()
		if err != nil {
			logger.Log().Warn("Failed to get outbound IP", zap.Error(err))
		}
		var reg adhoc.RegServerConfig
		reg.SetAddress(cfg.RegServerHost, cfg.RegServerPort)
		wg.Add(1)
		go adhoc.SendAliveMessage(ctx, &wg, reg, adhoc.Node{
			Id:       nodeID,
			IP:       ip,
			Port:     cfg.HTTPPort,
			Backend:  cfg.Backend,
			Degraded: host.Degraded,
		}, cfg.Heartbeat())
	} else {
		logger.Log().Info("UseRegServer is set to false, skipping registration")
	}

	<-ctx.Done()
	logger.Log().Info("Shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Log().Warn("HTTP shutdown", zap.Error(err))
	}
	// Releasing sessions ends open Watch streams, which GracefulStop waits for.
	host.Close()
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	if detector != nil {
		detector.Destroy()
	}
	wg.Wait()
	logger.Log().Info("Safely exited")
}
