package mqtt

import (
	"fmt"
	"os"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

const timeout = 5 * time.Second

// Options name the broker and credentials.
type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
}

// Client is a long-lived broker connection. Subscriptions are restored
// after an automatic reconnect.
type Client struct {
	c pahomqtt.Client

	mu   sync.Mutex
	subs map[string]subscription
}

type subscription struct {
	qos    byte
	handle func(payload []byte)
}

func clientOptions(o Options, onConnect pahomqtt.OnConnectHandler) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetConnectTimeout(timeout).
		SetAutoReconnect(true).
		SetOnConnectHandler(onConnect).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			fmt.Fprintf(os.Stderr, "mqtt: connection lost: %v\n", err)
		})

	if o.Username != "" {
		opts.SetUsername(o.Username)
	}
	if o.Password != "" {
		opts.SetPassword(o.Password)
	}
	return opts
}

// Connect dials the broker and waits up to five seconds for the session.
func Connect(o Options) (*Client, error) {
	cl := &Client{subs: make(map[string]subscription)}
	cl.c = pahomqtt.NewClient(clientOptions(o, cl.resubscribe))

	tok := cl.c.Connect()
	if !tok.WaitTimeout(timeout) {
		cl.c.Disconnect(0)
		return nil, fmt.Errorf("mqtt: connect timeout")
	}
	if tok.Error() != nil {
		return nil, fmt.Errorf("mqtt: connect: %w", tok.Error())
	}
	return cl, nil
}

// resubscribe runs on every (re)connect.
func (cl *Client) resubscribe(c pahomqtt.Client) {
	cl.mu.Lock()
	subs := make(map[string]subscription, len(cl.subs))
	for k, v := range cl.subs {
		subs[k] = v
	}
	cl.mu.Unlock()
	for topic, s := range subs {
		if tok := c.Subscribe(topic, s.qos, messageHandler(s.handle)); tok.WaitTimeout(timeout) && tok.Error() != nil {
			fmt.Fprintf(os.Stderr, "mqtt: resubscribe %s: %v\n", topic, tok.Error())
		}
	}
}

func messageHandler(handle func([]byte)) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		handle(msg.Payload())
	}
}

// Subscribe delivers every payload on topic to handle. Handlers run on the
// client's goroutine and must not block.
func (cl *Client) Subscribe(topic string, qos byte, handle func(payload []byte)) error {
	tok := cl.c.Subscribe(topic, qos, messageHandler(handle))
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt: subscribe timeout")
	}
	if tok.Error() != nil {
		return fmt.Errorf("mqtt: subscribe %s: %w", topic, tok.Error())
	}
	cl.mu.Lock()
	cl.subs[topic] = subscription{qos: qos, handle: handle}
	cl.mu.Unlock()
	return nil
}

// Publish sends one message and waits for it to leave.
func (cl *Client) Publish(topic string, qos byte, retain bool, payload []byte) error {
	pub := cl.c.Publish(topic, qos, retain, payload)
	if !pub.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt: publish timeout")
	}
	if pub.Error() != nil {
		return fmt.Errorf("mqtt: publish: %w", pub.Error())
	}
	return nil
}

// Close disconnects, allowing 250ms for in-flight work.
func (cl *Client) Close() {
	cl.c.Disconnect(250)
}
