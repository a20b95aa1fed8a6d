package server

import (
	"net/http"
	"time"

	"github.com/tim-oe/piSolar/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/check", s.CheckSensorsHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

type sensorProbeView struct {
	Sensor    string `json:"sensor"`
	Transport string `json:"transport"`
	Reachable bool   `json:"reachable"`
	Error     string `json:"error,omitempty"`
}

// CheckSensorsHandler probes every configured device once and reports
// reachability. Probes run sequentially per device, so the request can
// take several scan timeouts on a shared radio.
func (s *Server) CheckSensorsHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.CheckAllRequest{}, 4*time.Minute).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "check: FAIL")
	}
	response, ok := res.(domain.CheckAllResponse)
	if !ok {
		return c.String(http.StatusServiceUnavailable, "check: FAIL")
	}

	views := make([]sensorProbeView, 0, len(response.Probes))
	status := http.StatusOK
	for _, probe := range response.Probes {
		view := sensorProbeView{
			Sensor:    probe.Sensor,
			Transport: probe.Transport,
			Reachable: probe.Reachable(),
		}
		if probe.Err != nil {
			view.Error = probe.Err.Error()
			status = http.StatusServiceUnavailable
		}
		views = append(views, view)
	}
	return c.JSON(status, views)
}
