// Copyright 2025 Edgewatt Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/edgewatt/zeppelin/pkg/config"
	"github.com/edgewatt/zeppelin/pkg/metrics"
	"github.com/edgewatt/zeppelin/pkg/queue"
	"github.com/edgewatt/zeppelin/pkg/throttle"
)

const (
	defaultMQTTPort     = 1883
	defaultMQTTTLSPort  = 8883
	defaultKeepaliveSec = 60
	publishWaitTimeout  = 10 * time.Second
)

// LocalMQTT binds a pipeline to a plain MQTT broker, typically the edge-local
// mosquitto. TLS (and mutual TLS) is enabled when certificate paths are
// configured.
type LocalMQTT struct {
	logger   log.Logger
	cfg      *config.MQTTConfig
	thr      *throttle.Throttle
	deviceID string

	mtx     sync.Mutex
	client  mqtt.Client
	subs    map[string]*queue.Queue
	metrics *metrics.Metrics
}

func newLocalMQTT(logger log.Logger, broker *config.BrokerConfig) *LocalMQTT {
	cfg := broker.MQTT
	if cfg == nil || cfg.Host == "" {
		level.Error(logger).Log("msg", "mqtt broker config missing or incomplete")
		return nil
	}
	deviceID := cfg.DeviceID
	if deviceID == "" {
		deviceID = os.Getenv("IOTEDGE_DEVICEID")
	}
	return &LocalMQTT{
		logger:   logger,
		cfg:      cfg,
		thr:      throttle.New(),
		deviceID: deviceID,
		subs:     map[string]*queue.Queue{},
	}
}

// ensureConnected lazily dials the broker. The initial connect is retried a
// bounded number of times; once established, the paho auto-reconnect keeps
// retrying indefinitely and re-subscribes through the OnConnect hook.
func (t *LocalMQTT) ensureConnected() bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.client != nil {
		return t.client.IsConnectionOpen() || t.client.IsConnected()
	}

	opts, err := t.clientOptions()
	if err != nil {
		level.Error(t.logger).Log("msg", "mqtt client setup failed", "err", err)
		return false
	}
	client := mqtt.NewClient(opts)
	for attempt := 1; ; attempt++ {
		token := client.Connect()
		token.Wait()
		if token.Error() == nil {
			break
		}
		level.Warn(t.logger).Log("msg", "mqtt connect failed", "attempt", attempt, "err", token.Error())
		if attempt >= connectMaxRetry {
			return false
		}
		time.Sleep(connectInterval)
	}
	t.client = client
	return true
}

func (t *LocalMQTT) clientOptions() (*mqtt.ClientOptions, error) {
	useTLS := t.cfg.CACerts != "" || t.cfg.CertFile != ""
	port := t.cfg.Port
	if port == 0 {
		port = defaultMQTTPort
		if useTLS {
			port = defaultMQTTTLSPort
		}
	}
	scheme := "tcp"
	if useTLS {
		scheme = "ssl"
	}
	keepalive := t.cfg.KeepaliveSec
	if keepalive == 0 {
		keepalive = defaultKeepaliveSec
	}

	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, t.cfg.Host, port)).
		SetClientID(t.cfg.ClientID).
		SetKeepAlive(time.Duration(keepalive) * time.Second).
		SetAutoReconnect(true).
		SetConnectRetryInterval(connectInterval).
		SetMaxReconnectInterval(connectInterval)
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username).SetPassword(t.cfg.Password)
	}
	if useTLS {
		tlsCfg, err := t.tlsConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		level.Warn(t.logger).Log("msg", "mqtt connection lost", "err", err)
	})
	// Subscriptions do not survive a broker-side session drop, so re-apply
	// them on every (re)connect.
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		level.Info(t.logger).Log("msg", "mqtt connected", "host", t.cfg.Host)
		t.mtx.Lock()
		defer t.mtx.Unlock()
		for topic, q := range t.subs {
			t.subscribe(c, topic, q)
		}
	})
	return opts, nil
}

func (t *LocalMQTT) tlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{}
	if t.cfg.CACerts != "" {
		pem, err := os.ReadFile(t.cfg.CACerts)
		if err != nil {
			return nil, fmt.Errorf("read ca certs: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates parsed from %q", t.cfg.CACerts)
		}
		cfg.RootCAs = pool
	}
	if t.cfg.CertFile != "" && t.cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(t.cfg.CertFile, t.cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	return cfg, nil
}

func (t *LocalMQTT) subscribe(c mqtt.Client, topic string, q *queue.Queue) {
	token := c.Subscribe(topic, t.cfg.QoS, func(_ mqtt.Client, m mqtt.Message) {
		t.thr.Admit()
		q.Push(queue.Message{
			Topic:    m.Topic(),
			Payload:  decodePayload(m.Payload()),
			Size:     len(m.Payload()),
			Received: time.Now().UTC(),
		})
	})
	if token.Wait() && token.Error() != nil {
		level.Error(t.logger).Log("msg", "mqtt subscribe failed", "topic", topic, "err", token.Error())
	}
}

func (t *LocalMQTT) StartListening(topics []string, q *queue.Queue) bool {
	if !t.ensureConnected() {
		return false
	}
	t.mtx.Lock()
	defer t.mtx.Unlock()
	for _, topic := range topics {
		t.subs[topic] = q
		t.subscribe(t.client, topic, q)
	}
	return true
}

func (t *LocalMQTT) Publish(topic string, payload any) bool {
	return t.PublishOpts(topic, payload, nil)
}

func (t *LocalMQTT) PublishOpts(topic string, payload any, opts *PubOptions) bool {
	if !t.ensureConnected() {
		return false
	}
	b, err := encodePayload(payload)
	if err != nil {
		level.Error(t.logger).Log("msg", "encode publish payload", "topic", topic, "err", err)
		return false
	}
	qos, retain := t.cfg.QoS, t.cfg.Retain
	if opts != nil {
		if opts.QoS != nil {
			qos = *opts.QoS
		}
		if opts.Retain != nil {
			retain = *opts.Retain
		}
	}
	token := t.client.Publish(topic, qos, retain, b)
	if !token.WaitTimeout(publishWaitTimeout) {
		level.Error(t.logger).Log("msg", "mqtt publish timed out", "topic", topic)
		return false
	}
	if err := token.Error(); err != nil {
		level.Error(t.logger).Log("msg", "mqtt publish failed", "topic", topic, "err", err)
		return false
	}
	return true
}

func (t *LocalMQTT) Disconnect() {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	if t.client != nil {
		t.client.Disconnect(250)
		t.client = nil
	}
}

func (t *LocalMQTT) DeviceID() string { return t.deviceID }

func (t *LocalMQTT) SetMetrics(m *metrics.Metrics) {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	t.metrics = m
	t.thr.SetMetrics(m)
}

func (t *LocalMQTT) SetMaxMsgSec(n int)    { t.thr.SetMaxMsgSec(n) }
func (t *LocalMQTT) SetSleepSec(s float64) { t.thr.SetSleepSec(s) }
