// Package mqtt is the single push channel of the reference host.
//
// Topics under the configured prefix:
//
//	<prefix>/push          inbound push messages (push.Message JSON)
//	<prefix>/lifecycle     inbound lifecycle callbacks (transport.Lifecycle JSON)
//	<prefix>/events/<name> outbound observations (alerts, settings screens, routes)
//	<prefix>/diag          outbound log relay lines
package mqtt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"wakealert/internal/push"
	"wakealert/internal/transport"
	logx "wakealert/pkg/logx"
)

type Config struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	ConnectTimeout time.Duration
}

// Topics resolves the topic names for a prefix.
type Topics struct {
	Push      string
	Lifecycle string
	Events    string
	Diag      string
}

func TopicsFor(prefix string) Topics {
	prefix = strings.TrimRight(strings.TrimSpace(prefix), "/")
	return Topics{
		Push:      prefix + "/push",
		Lifecycle: prefix + "/lifecycle",
		Events:    prefix + "/events",
		Diag:      prefix + "/diag",
	}
}

// Adapter implements transport.Adapter and logx.Relay over one MQTT client.
type Adapter struct {
	cfg    Config
	topics Topics
	log    logx.Logger

	mu     sync.Mutex
	client paho.Client
	out    chan<- transport.Update
}

var (
	_ transport.Adapter = (*Adapter)(nil)
	_ logx.Relay        = (*Adapter)(nil)
)

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Broker) == "" {
		return nil, errors.New("mqtt: broker is required")
	}
	if strings.TrimSpace(cfg.ClientID) == "" {
		cfg.ClientID = "wakealert"
	}
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		cfg.TopicPrefix = "wakealert/" + cfg.ClientID
	}
	if cfg.QoS > 2 {
		cfg.QoS = 1
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{cfg: cfg, topics: TopicsFor(cfg.TopicPrefix), log: log}, nil
}

func (a *Adapter) Topics() Topics { return a.topics }

// Start connects, subscribes and forwards decoded updates to out until
// Stop. Subscriptions are restored on every reconnect.
func (a *Adapter) Start(ctx context.Context, out chan<- transport.Update) error {
	opts := paho.NewClientOptions()
	opts.AddBroker(a.cfg.Broker)
	opts.SetClientID(a.cfg.ClientID)
	if a.cfg.Username != "" {
		opts.SetUsername(a.cfg.Username)
	}
	if a.cfg.Password != "" {
		opts.SetPassword(a.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(false)
	opts.SetConnectTimeout(a.cfg.ConnectTimeout)
	opts.SetOnConnectHandler(func(c paho.Client) {
		if err := a.subscribe(c); err != nil {
			a.log.Warn("mqtt subscribe failed", logx.Err(err))
			return
		}
		a.log.Info("mqtt connected", logx.String("broker", a.cfg.Broker), logx.String("prefix", a.cfg.TopicPrefix))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		a.log.Warn("mqtt connection lost", logx.Err(err))
	})

	client := paho.NewClient(opts)
	a.mu.Lock()
	a.client = client
	a.out = out
	a.mu.Unlock()

	tok := client.Connect()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tok.Done():
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: connect %s: %w", a.cfg.Broker, err)
	}
	return nil
}

func (a *Adapter) subscribe(c paho.Client) error {
	filters := map[string]byte{
		a.topics.Push:      a.cfg.QoS,
		a.topics.Lifecycle: a.cfg.QoS,
	}
	tok := c.SubscribeMultiple(filters, func(_ paho.Client, m paho.Message) {
		a.handle(m.Topic(), m.Payload())
	})
	if !tok.WaitTimeout(a.cfg.ConnectTimeout) {
		return errors.New("subscribe timed out")
	}
	return tok.Error()
}

func (a *Adapter) handle(topic string, payload []byte) {
	u, err := DecodeUpdate(a.topics, topic, payload)
	if err != nil {
		a.log.Warn("mqtt message dropped", logx.String("topic", topic), logx.Err(err))
		return
	}
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return
	}
	// Paho runs handlers on its router goroutine; do not block it forever.
	select {
	case out <- u:
	case <-time.After(5 * time.Second):
		a.log.Error("update queue full; message dropped", logx.String("topic", topic))
	}
}

// DecodeUpdate maps one inbound MQTT message to a transport.Update.
func DecodeUpdate(t Topics, topic string, payload []byte) (transport.Update, error) {
	switch topic {
	case t.Push:
		m, err := decodePush(payload)
		if err != nil {
			return transport.Update{}, fmt.Errorf("push payload: %w", err)
		}
		return transport.Update{Kind: transport.UpdatePush, Push: &m}, nil

	case t.Lifecycle:
		var l transport.Lifecycle
		if err := json.Unmarshal(payload, &l); err != nil {
			return transport.Update{}, fmt.Errorf("lifecycle payload: %w", err)
		}
		switch l.Event {
		case transport.EventColdStart, transport.EventForeground:
		case transport.EventResumed:
			if l.Resume == nil {
				return transport.Update{}, errors.New("resumed event without resume details")
			}
		default:
			return transport.Update{}, fmt.Errorf("unknown lifecycle event %q", l.Event)
		}
		return transport.Update{Kind: transport.UpdateLifecycle, Lifecycle: &l}, nil
	}
	return transport.Update{}, fmt.Errorf("unexpected topic %q", topic)
}

// decodePush is lenient below the top level: scalar values are converted
// to strings and anything else is treated as missing, so one bad field
// never costs the whole message.
func decodePush(payload []byte) (push.Message, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return push.Message{}, err
	}
	if raw == nil {
		return push.Message{}, errors.New("push payload is null")
	}

	m := push.Message{
		ID:   scalar(raw["id"]),
		From: scalar(raw["from"]),
		Data: stringMap(raw["data"]),
	}
	if n := stringMap(raw["notification"]); len(n) > 0 {
		m.Notification = &push.Notification{Title: n["title"], Body: n["body"]}
	}
	if ts, err := time.Parse(time.RFC3339Nano, scalar(raw["received_at"])); err == nil {
		m.ReceivedAt = ts
	} else {
		m.ReceivedAt = time.Now()
	}
	return m, nil
}

func stringMap(v any) map[string]string {
	obj, ok := v.(map[string]any)
	if !ok || len(obj) == 0 {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, e := range obj {
		if s := scalar(e); s != "" {
			out[k] = s
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func scalar(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func (a *Adapter) publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	a.mu.Lock()
	c := a.client
	a.mu.Unlock()
	if c == nil || !c.IsConnectionOpen() {
		return errors.New("mqtt: not connected")
	}
	tok := c.Publish(topic, qos, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tok.Done():
		return tok.Error()
	}
}

func (a *Adapter) Publish(ctx context.Context, name string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return a.publish(ctx, a.topics.Events+"/"+strings.Trim(name, "/"), a.cfg.QoS, b)
}

// Relay forwards a log line to the diagnostics topic at QoS 0.
func (a *Adapter) Relay(ctx context.Context, line string) error {
	return a.publish(ctx, a.topics.Diag, 0, []byte(line))
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	c := a.client
	a.client = nil
	a.out = nil
	a.mu.Unlock()
	if c == nil {
		return nil
	}
	quiesce := uint(250)
	if dl, ok := ctx.Deadline(); ok {
		if left := time.Until(dl); left < 250*time.Millisecond && left > 0 {
			quiesce = uint(left / time.Millisecond)
		}
	}
	if c.IsConnected() {
		tok := c.Unsubscribe(a.topics.Push, a.topics.Lifecycle)
		tok.WaitTimeout(time.Second)
	}
	c.Disconnect(quiesce)
	a.log.Info("mqtt disconnected")
	return nil
}
