package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"time"

	"github.com/golang/glog"

	"github.com/tagworks/uhf.go/pkg/channel"
	"github.com/tagworks/uhf.go/pkg/channel/serial"
	"github.com/tagworks/uhf.go/pkg/framework"
	"github.com/tagworks/uhf.go/pkg/m5"
	"github.com/tagworks/uhf.go/pkg/pub"
)

var (
	device     string
	baudRate   int
	brokerURL  string
	topic      string
	source     string
	regionName string
	interval   time.Duration
)

func init() {
	flag.StringVar(&device, "device", "/dev/ttyAMA0", "Serial device of the reader.")
	flag.IntVar(&baudRate, "baud", serial.DefaultBaudRate, "Baud rate of the serial device.")
	flag.StringVar(&brokerURL, "broker", "mqtt://127.0.0.1:1883", "MQTT broker URL.")
	flag.StringVar(&topic, "topic", pub.DefaultTopic, "Topic for tag observations.")
	flag.StringVar(&source, "source", "", "Reader name in published events, device name if empty.")
	flag.StringVar(&regionName, "region", "na", "Regulatory region: na, eu, eu3.")
	flag.DurationVar(&interval, "interval", pub.DefaultInterval, "Polling interval.")
}

var regions = map[string]m5.Region{
	"na":  m5.RegionNA,
	"eu":  m5.RegionEU,
	"eu3": m5.RegionEU3,
}

func main() {
	flag.Parse()

	region, ok := regions[regionName]
	if !ok {
		glog.Exitf("unknown region %q", regionName)
	}

	port, err := serial.Open(device, serial.Config{BaudRate: baudRate})
	if err != nil {
		glog.Exitf("open %q failed: %v", device, err)
	}
	ch, err := channel.Open(0, port, channel.Config{})
	if err != nil {
		glog.Exitf("channel failed: %v", err)
	}
	defer ch.Close()
	session := m5.NewSession(ch, m5.Config{Attempts: 2})

	runner := framework.NewRunner().HandleSignals()

	if err = session.Bootstrap(runner.Context, region); err != nil {
		glog.Exitf("reader bootstrap failed: %v", err)
	}

	opts, prefix, err := pub.ClientOptionsFromURL(brokerURL)
	if err != nil {
		glog.Exitf("broker URL invalid: %v", err)
	}
	if opts.ClientID == "" {
		opts.SetClientID(pub.DefaultClientID("uhfpubd"))
	}
	queue := pub.NewQueue(opts, prefix)
	token := queue.Connect()
	token.Wait()
	if err = token.Error(); err != nil {
		glog.Exitf("connect %q failed: %v", brokerURL, err)
	}
	defer queue.Close()

	if source == "" {
		source = device
	}
	publisher := &pub.Publisher{
		Queue:    queue,
		Reader:   session,
		Topic:    topic,
		Source:   source,
		Interval: interval,
	}
	if err = runner.Go(publisher).Wait(); err != nil {
		glog.Exitf("exited: %v", err)
	}
}
