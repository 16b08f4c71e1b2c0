package history

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
)

const defaultMeasurement = "output_state"

// InfluxRecorder writes every output state change to an InfluxDB v2 bucket.
// Points are batched by the client's non-blocking write API.
type InfluxRecorder struct {
	Host         string
	Organization string
	Bucket       string
	Measurement  string
	Token        string

	client   influxdb2.Client
	writeApi api.WriteAPI
	ready    bool
	done     chan struct{}
	logger   *log.Logger
	lock     sync.Mutex
}

func (ir *InfluxRecorder) measurement() string {
	if len(ir.Measurement) > 0 {
		return ir.Measurement
	}
	return defaultMeasurement
}

func (ir *InfluxRecorder) Setup() error {
	ir.lock.Lock()
	defer ir.lock.Unlock()

	if len(ir.Host) == 0 || len(ir.Organization) == 0 || len(ir.Bucket) == 0 {
		return errors.New("influx recorder needs Host, Organization and Bucket")
	}

	ir.logger = log.NewWithOptions(os.Stderr, log.Options{
		Prefix: "InfluxRecorder 📈: ",
		Level:  log.GetLevel(),
	})
	ir.client = influxdb2.NewClient(ir.Host, ir.Token)
	ir.writeApi = ir.client.WriteAPI(ir.Organization, ir.Bucket)
	ir.done = make(chan struct{})

	go ir.logErrors(ir.writeApi.Errors(), ir.done)

	ir.ready = true
	return nil
}

func (ir *InfluxRecorder) logErrors(errs <-chan error, done <-chan struct{}) {
	for {
		select {
		case err := <-errs:
			ir.logger.Error("failed to write points", "err", err)
		case <-done:
			return
		}
	}
}

func (ir *InfluxRecorder) IsReady() bool {
	ir.lock.Lock()
	defer ir.lock.Unlock()

	return ir.ready
}

func (ir *InfluxRecorder) point(line string, pin uint16, state bool, at time.Time) *write.Point {
	return influxdb2.NewPoint(
		ir.measurement(),
		map[string]string{
			"line": line,
			"pin":  strconv.Itoa(int(pin)),
		},
		map[string]interface{}{
			"state": state,
		},
		at,
	)
}

// Record queues a state change. It does not block on the network.
func (ir *InfluxRecorder) Record(line string, pin uint16, state bool, at time.Time) {
	ir.lock.Lock()
	defer ir.lock.Unlock()

	if !ir.ready {
		return
	}
	ir.writeApi.WritePoint(ir.point(line, pin, state, at))
}

func (ir *InfluxRecorder) Close() error {
	ir.lock.Lock()
	defer ir.lock.Unlock()

	if !ir.ready {
		return nil
	}
	ir.ready = false
	ir.writeApi.Flush()
	close(ir.done)
	ir.client.Close()
	return nil
}
