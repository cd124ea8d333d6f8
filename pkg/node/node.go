// Package node assembles a device, the controlling loop, the MQTT
// registrar and the metrics endpoint into a runnable daemon.
package node

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/roboclaw.go/pkg/config"
	fx "github.com/robotalks/roboclaw.go/pkg/framework"
	"github.com/robotalks/roboclaw.go/pkg/l0/comm"
	"github.com/robotalks/roboclaw.go/pkg/l0/serial"
	"github.com/robotalks/roboclaw.go/pkg/l1"
	"github.com/robotalks/roboclaw.go/pkg/l1/controller"
	"github.com/robotalks/roboclaw.go/pkg/l1/mqtt"
	"github.com/robotalks/roboclaw.go/pkg/metrics"
	"github.com/robotalks/roboclaw.go/pkg/roboclaw"
)

// Node is a running motor controller daemon.
type Node struct {
	Config     *config.Config
	Device     *roboclaw.Device
	Controller *controller.Controller
	Metrics    *metrics.Metrics
	Registrars *l1.RegistrarMux
	Loop       *fx.Loop

	conn *comm.Conn
}

// New opens the device and wires the node.
func New(conf *config.Config) (*Node, error) {
	stream, err := openStream(conf)
	if err != nil {
		return nil, err
	}
	n := &Node{
		Config:     conf,
		Metrics:    metrics.New(),
		Registrars: &l1.RegistrarMux{},
		Loop:       fx.NewLoop(),
	}
	if n.conn, err = comm.NewConn(stream, conf.CommConfig()); err != nil {
		if closer, ok := stream.(io.Closer); ok {
			closer.Close()
		}
		return nil, err
	}
	n.conn.Observer = n.Metrics
	n.Device = roboclaw.NewDevice(n.conn)
	for _, m := range roboclaw.Motors {
		pid, ok := conf.PID[m]
		if !ok {
			continue
		}
		if err := n.Device.SetVelocityPID(m, pid); err != nil {
			n.conn.Close()
			return nil, err
		}
		glog.Infof("%s velocity PID set to %s", m, pid)
	}

	if conf.MQTTBrokerURL != "" {
		reg, err := mqtt.NewRegistrar(conf.MQTTBrokerURL, conf.Info())
		if err != nil {
			n.conn.Close()
			return nil, err
		}
		n.Registrars.Add(reg)
	}

	n.Controller = controller.New(n.Device, n.Registrars)
	n.Controller.Recorder = n.Metrics
	n.Loop.Interval = conf.PollInterval
	n.Loop.Add(n.Registrars, n.Controller, &l1.UnsupportedCommands{})
	return n, nil
}

func openStream(conf *config.Config) (comm.Stream, error) {
	if conf.Simulate {
		sim := roboclaw.NewSimulator(conf.Address)
		sim.Now = time.Now
		glog.Info("using simulated device")
		return sim.Stream(), nil
	}
	port, err := serial.Open(conf.SerialConfig())
	if err != nil {
		return nil, err
	}
	glog.Infof("opened %s at %d baud", port.Name(), conf.Baud)
	return port, nil
}

// Run runs the loop and the metrics endpoint until ctx is done or
// either fails. Motors are stopped before return.
func (n *Node) Run(ctx context.Context) error {
	defer n.conn.Close()
	runner := fx.NewRunnerWith(ctx)
	runner.Go(fx.NamedRun("loop", n.Loop))
	if addr := n.Config.MetricsAddr; addr != "" {
		runner.Go(fx.NamedRun("metrics", fx.RunFunc(func(ctx context.Context) error {
			return n.serveMetrics(ctx, addr)
		})))
	}
	err := runner.Wait()
	if stopErr := n.Device.Stop(); stopErr != nil {
		glog.Warningf("stop motors: %v", stopErr)
	}
	return err
}

// RunOrFail runs with signal handling and exits on failure.
func (n *Node) RunOrFail() {
	runner := fx.NewRunner().HandleSignals()
	runner.Go(fx.NamedRun("node", fx.RunFunc(n.Run)))
	if err := runner.Wait(); err != nil {
		glog.Exit(err)
	}
}

func (n *Node) serveMetrics(ctx context.Context, addr string) error {
	srv := n.Metrics.NewServer(addr)
	glog.Infof("metrics on %s", addr)
	err := fx.RunWithContextCloser(ctx, srv, srv.ListenAndServe)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
