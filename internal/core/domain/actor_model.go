package domain

const (
	ACTOR_ID_MASTER      = "master"
	ACTOR_ID_SCHEDULER   = "scheduler"
	ACTOR_ID_METRICS     = "metrics"
	ACTOR_ID_MQTT        = "mqtt"
	ACTOR_ID_TEMPERATURE = "temperature"

	// sensor actors are named ACTOR_ID_SENSOR_PREFIX + target name
	ACTOR_ID_SENSOR_PREFIX = "sensor-"
)

// PollSensorRequest asks a sensor actor for one full facade poll
// (acquisition with retries, decode, normalize).
type PollSensorRequest struct {
	ActorRequestMixIn
}

// PollSensorResponse carries the poll outcome. Skipped is set when the
// request arrived while a previous poll was still running; the new request
// is dropped, not queued. On failure ResponseError holds the terminal
// *renogy.Failure.
type PollSensorResponse struct {
	ActorResponseMixIn
	Sensor   string
	Skipped  bool
	Readings []Reading
}

// CheckSensorRequest probes reachability with a single acquisition attempt
// and no publication.
type CheckSensorRequest struct {
	ActorRequestMixIn
}

type CheckSensorResponse struct {
	ActorResponseMixIn
	Sensor    string
	Transport string
}

// CheckAllRequest fans a reachability probe out to every sensor actor.
type CheckAllRequest struct {
	ActorRequestMixIn
}

type SensorProbe struct {
	Sensor    string
	Transport string
	Err       error
}

func (p SensorProbe) Reachable() bool {
	return p.Err == nil
}

type CheckAllResponse struct {
	ActorResponseMixIn
	Probes []SensorProbe
}

// ReadAllRequest triggers every sensor's facade exactly once and collects
// the results; readings are published as on a scheduled tick.
type ReadAllRequest struct {
	ActorRequestMixIn
}

type ReadAllResponse struct {
	ActorResponseMixIn
	Results []PollSensorResponse
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
