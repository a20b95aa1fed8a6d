package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	adactor "github.com/tim-oe/piSolar/internal/adapter/actor"
	"github.com/tim-oe/piSolar/internal/adapter/onewire"
	"github.com/tim-oe/piSolar/internal/config"
	coreactor "github.com/tim-oe/piSolar/internal/core/actor"
	"github.com/tim-oe/piSolar/internal/core/domain"
	"github.com/tim-oe/piSolar/internal/core/events"
	"github.com/tim-oe/piSolar/internal/core/service"
	"github.com/tim-oe/piSolar/internal/server"
	"github.com/tim-oe/piSolar/internal/util/actorutil"
	"github.com/tim-oe/piSolar/pkg/renogy"

	pactor "github.com/asynkron/protoactor-go/actor"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type system struct {
	cfg    *config.Config
	logger *zap.Logger
	as     *pactor.ActorSystem
	master *pactor.PID
	bus    *events.Bus
}

// bootSystem builds the transports and spawns the actor tree. Transport
// construction happens before any actor starts so a bad serial device path
// fails the command instead of crash-looping a child.
func bootSystem(cfg *config.Config, mode coreactor.RunMode, logger *zap.Logger) (*system, error) {
	transports := map[string]renogy.Transport{}
	for _, target := range cfg.Targets() {
		switch target.Kind {
		case domain.TransportBluetooth:
			transports[target.Name] = renogy.NewBLETransport(
				target.Name, target.MACAddress, target.DeviceAlias, target.ScanTimeout, logger)
		case domain.TransportSerial:
			transport, err := renogy.NewSerialTransport(
				target.Name, target.DevicePath, target.BaudRate, target.SlaveAddress,
				target.ScanTimeout, logger)
			if err != nil {
				return nil, fmt.Errorf("sensor %s: %w", target.Name, err)
			}
			transports[target.Name] = transport
		}
	}

	probe := onewire.NewProbe()
	bus := events.NewBus(logger)
	service.NewReadingLogger(logger).Subscribe(bus)

	sensorProvider := func(target domain.DeviceTarget) pactor.Actor {
		if target.Kind == domain.TransportOneWire {
			return adactor.NewTemperatureActor(probe, target, logger)
		}
		poller := service.NewSensorPoller(target, transports[target.Name], logger)
		return adactor.NewSensorActor(poller, logger)
	}
	mqttProvider := func(bus *events.Bus) pactor.Actor {
		return adactor.NewMQTTActor(cfg, bus, logger)
	}

	as := actorutil.NewActorSystemWithZapLogger(logger)
	props := pactor.PropsFromProducer(func() pactor.Actor {
		return coreactor.NewMasterActor(*cfg, mode, bus, sensorProvider, mqttProvider, logger)
	})
	master, err := as.Root.SpawnNamed(props, domain.ACTOR_ID_MASTER)
	if err != nil {
		return nil, err
	}

	return &system{cfg: cfg, logger: logger, as: as, master: master, bus: bus}, nil
}

func (s *system) shutdown() {
	s.as.Root.Stop(s.master)
	s.as.Shutdown()
	_ = s.logger.Sync()
}

func setup(mode coreactor.RunMode) (*system, error) {
	cfg, err := initConfig()
	if err != nil {
		return nil, err
	}
	logger := buildLogger(cfg)
	return bootSystem(cfg, mode, logger)
}

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the telemetry service with its schedules and healthcheck server",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := setup(coreactor.ModeService)
			if err != nil {
				return err
			}
			defer sys.shutdown()

			apiServer := server.NewServer(*sys.cfg, sys.as.Root, sys.master)

			done := make(chan bool, 1)
			go gracefulShutdown(apiServer, done)

			err = apiServer.ListenAndServe()
			if err != nil && err != http.ErrServerClosed {
				return fmt.Errorf("http server error: %w", err)
			}

			<-done
			log.Println("Graceful shutdown complete.")
			return nil
		},
	}
}

func gracefulShutdown(apiServer *http.Server, done chan bool) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	log.Println("shutting down gracefully, press Ctrl+C again to force")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown with error: %v", err)
	}

	done <- true
}

func checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Probe every configured sensor once and report reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := setup(coreactor.ModeCheck)
			if err != nil {
				return err
			}
			defer sys.shutdown()

			result, err := sys.as.Root.RequestFuture(sys.master, domain.CheckAllRequest{}, 5*time.Minute).Result()
			if err != nil {
				return err
			}
			resp, ok := result.(domain.CheckAllResponse)
			if !ok {
				return fmt.Errorf("unexpected response %T", result)
			}

			unreachable := 0
			for _, probe := range resp.Probes {
				if probe.Reachable() {
					fmt.Printf("%-20s %-8s OK\n", probe.Sensor, probe.Transport)
				} else {
					unreachable++
					fmt.Printf("%-20s %-8s FAIL: %v\n", probe.Sensor, probe.Transport, probe.Err)
				}
			}
			if unreachable > 0 {
				// distinguishable exit status for cron/systemd probes
				sys.shutdown()
				os.Exit(1)
			}
			return nil
		},
	}
}

func readOnceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "read-once",
		Short: "Poll every sensor once, publish the readings, and print them as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := setup(coreactor.ModeReadOnce)
			if err != nil {
				return err
			}
			defer sys.shutdown()

			result, err := sys.as.Root.RequestFuture(sys.master, domain.ReadAllRequest{}, 10*time.Minute).Result()
			if err != nil {
				return err
			}
			resp, ok := result.(domain.ReadAllResponse)
			if !ok {
				return fmt.Errorf("unexpected response %T", result)
			}

			type readingView struct {
				Sensor         string             `json:"sensor"`
				Source         string             `json:"source,omitempty"`
				Error          string             `json:"error,omitempty"`
				Values         map[string]float64 `json:"values,omitempty"`
				ChargingStatus string             `json:"charging_status,omitempty"`
			}

			failed := 0
			views := make([]readingView, 0, len(resp.Results))
			for _, r := range resp.Results {
				if r.HasResponseError() {
					failed++
					views = append(views, readingView{Sensor: r.Sensor, Error: r.GetResponseError().Error()})
					continue
				}
				for _, reading := range r.Readings {
					view := readingView{
						Sensor: reading.SensorName(),
						Source: reading.Source(),
						Values: reading.Values(),
					}
					if solar, ok := reading.(domain.SolarReading); ok {
						view.ChargingStatus = solar.ChargingStatus
					}
					views = append(views, view)
				}
			}

			out, err := json.MarshalIndent(views, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))

			if failed > 0 {
				sys.shutdown()
				os.Exit(1)
			}
			return nil
		},
	}
}
