// Package pub publishes tag observations to an MQTT broker.
package pub

import (
	"net/url"
	"strings"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// Queue wraps MQTT client for publishing.
type Queue struct {
	Client       paho.Client
	TopicPrefix  string
	OnConnect    ConnectHandler
	OnDisconnect ConnectHandler
}

// ConnectHandler is to handle connect/disconnect events.
type ConnectHandler func(*Queue)

// ClientOptionsFromURL creates ClientOptions from URL. The URL path
// becomes the topic prefix, and a client-id query parameter sets the
// client ID.
func ClientOptionsFromURL(serverURL string) (*paho.ClientOptions, string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return nil, "", err
	}
	var server string
	if u.Scheme == "" || u.Scheme == "mqtt" {
		server = "tcp"
	} else {
		server = u.Scheme
	}
	server += "://" + u.Host

	topicPrefix := strings.TrimPrefix(u.Path, "/")

	opts := paho.NewClientOptions()
	opts.AddBroker(server).
		SetAutoReconnect(true).
		SetCleanSession(true)
	if u.User != nil {
		opts.SetUsername(u.User.Username())
		if pwd, ok := u.User.Password(); ok {
			opts.SetPassword(pwd)
		}
	}

	if clientID := u.Query().Get("client-id"); clientID != "" {
		opts.SetClientID(clientID)
	}

	return opts, topicPrefix, nil
}

// DefaultClientID derives a stable client ID from the machine
// identity, falling back to the app name alone.
func DefaultClientID(app string) string {
	id, err := machineid.ProtectedID(app)
	if err != nil {
		glog.Warningf("machine id unavailable: %v", err)
		return app
	}
	if len(id) > 16 {
		id = id[:16]
	}
	return app + "-" + id
}

// NewQueue creates Queue.
func NewQueue(options *paho.ClientOptions, topicPrefix string) *Queue {
	q := &Queue{TopicPrefix: topicPrefix}
	options.SetOnConnectHandler(q.OnConnectHandler)
	options.SetConnectionLostHandler(q.ConnectionLostHandler)
	q.Client = paho.NewClient(options)
	return q
}

// NewQueueFromURL creates Queue from URL.
func NewQueueFromURL(brokerURL string) (*Queue, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return NewQueue(opts, topicPrefix), nil
}

// Connect connects the client.
func (q *Queue) Connect() paho.Token {
	return q.Client.Connect()
}

// Close implements io.Closer.
func (q *Queue) Close() error {
	q.Client.Disconnect(0)
	return nil
}

// Pub publishes to a topic.
func (q *Queue) Pub(topic string, payload []byte) paho.Token {
	return q.PubWith(topic, payload, 0, false)
}

// PubWith publishes with QoS and retain settings.
func (q *Queue) PubWith(topic string, payload []byte, qos byte, retain bool) paho.Token {
	return q.Client.Publish(q.TopicPrefix+topic, qos, retain, payload)
}

// OnConnectHandler is the default implementation of paho.OnConnectHandler.
func (q *Queue) OnConnectHandler(paho.Client) {
	glog.Info("connected")
	if h := q.OnConnect; h != nil {
		h(q)
	}
}

// ConnectionLostHandler is the default implementation of paho.ConnectLostHandler.
func (q *Queue) ConnectionLostHandler(c paho.Client, err error) {
	glog.Warningf("connection lost: %v", err)
	if h := q.OnDisconnect; h != nil {
		h(q)
	}
}
