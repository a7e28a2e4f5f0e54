package fireboard

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-logr/logr"

	"github.com/joshp123/gohome-fireboard/internal/core"
)

const commandTimeout = 10 * time.Second

// Publisher is the slice of an MQTT client the bridge needs.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string
	Username string
	Password string
}

// MQTTClient adapts paho to Publisher.
type MQTTClient struct {
	client mqtt.Client
}

func NewMQTTClient(cfg MQTTConfig) (*MQTTClient, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt broker is required")
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(randomClientID())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return &MQTTClient{client: client}, nil
}

func (c *MQTTClient) Publish(topic string, retained bool, payload []byte) error {
	if token := c.client.Publish(topic, 1, retained, payload); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *MQTTClient) Subscribe(topic string, handler func(topic string, payload []byte)) error {
	token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return token.Error()
	}
	return nil
}

func (c *MQTTClient) Close() {
	c.client.Disconnect(250)
}

func randomClientID() string {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "gohome-fireboard"
	}
	return "gohome-fireboard-" + hex.EncodeToString(buf)
}

// Bridge mirrors published snapshots to MQTT and turns drive/set messages
// into drive writes.
type Bridge struct {
	prefix    string
	publisher Publisher
	instances *core.Instances[*Coordinator]
	logger    logr.Logger

	mu      sync.Mutex
	pending map[string]Snapshot
	wake    chan struct{}

	commands chan driveCommand
}

type driveCommand struct {
	entry   string
	uuid    string
	payload string
}

func NewBridge(publisher Publisher, prefix string, instances *core.Instances[*Coordinator], logger logr.Logger) *Bridge {
	return &Bridge{
		prefix:    strings.TrimRight(prefix, "/"),
		publisher: publisher,
		instances: instances,
		logger:    logger.WithName("mqtt"),
		pending:   make(map[string]Snapshot),
		wake:      make(chan struct{}, 1),
		commands:  make(chan driveCommand, 16),
	}
}

// StateTopic is where a device's JSON state is retained.
func (b *Bridge) StateTopic(entry, uuid string) string {
	return fmt.Sprintf("%s/%s/%s/state", b.prefix, entry, uuid)
}

// CommandTopic accepts an integer percentage for a device's Drive.
func (b *Bridge) CommandTopic(entry, uuid string) string {
	return fmt.Sprintf("%s/%s/%s/drive/set", b.prefix, entry, uuid)
}

// Run subscribes to drive commands, hooks every coordinator, and publishes
// until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.publisher.Subscribe(b.prefix+"/+/+/drive/set", b.handleCommand); err != nil {
		return fmt.Errorf("subscribe drive commands: %w", err)
	}
	for _, coordinator := range b.instances.All() {
		entry := coordinator.EntryID()
		coordinator.OnSnapshot(func(snapshot Snapshot) {
			b.enqueue(entry, snapshot)
		})
		if coordinator.Snapshot().Len() > 0 {
			b.enqueue(entry, coordinator.Snapshot())
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.wake:
			b.flush()
		case cmd := <-b.commands:
			b.apply(ctx, cmd)
		}
	}
}

func (b *Bridge) enqueue(entry string, snapshot Snapshot) {
	b.mu.Lock()
	b.pending[entry] = snapshot
	b.mu.Unlock()
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) flush() {
	b.mu.Lock()
	pending := b.pending
	b.pending = make(map[string]Snapshot)
	b.mu.Unlock()

	for entry, snapshot := range pending {
		for _, uuid := range snapshot.UUIDs() {
			payload, err := json.Marshal(snapshot.Devices[uuid])
			if err != nil {
				b.logger.Error(err, "encode device state", "entry", entry, "device", uuid)
				continue
			}
			if err := b.publisher.Publish(b.StateTopic(entry, uuid), true, payload); err != nil {
				b.logger.Error(err, "publish device state", "entry", entry, "device", uuid)
			}
		}
	}
}

func (b *Bridge) handleCommand(topic string, payload []byte) {
	entry, uuid, ok := b.parseCommandTopic(topic)
	if !ok {
		b.logger.V(1).Info("ignoring unexpected topic", "topic", topic)
		return
	}
	select {
	case b.commands <- driveCommand{entry: entry, uuid: uuid, payload: string(payload)}:
	default:
		b.logger.Info("dropping drive command, queue full", "entry", entry, "device", uuid)
	}
}

func (b *Bridge) parseCommandTopic(topic string) (string, string, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 4 || parts[2] != "drive" || parts[3] != "set" || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (b *Bridge) apply(ctx context.Context, cmd driveCommand) {
	coordinator, ok := b.instances.Get(cmd.entry)
	if !ok {
		b.logger.Info("drive command for unknown entry", "entry", cmd.entry)
		return
	}
	percent, err := strconv.Atoi(strings.TrimSpace(cmd.payload))
	if err != nil {
		b.logger.Info("drive command is not an integer", "entry", cmd.entry, "device", cmd.uuid, "payload", cmd.payload)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()
	if err := coordinator.SetDriveOutput(ctx, cmd.uuid, percent); err != nil {
		b.logger.Error(err, "drive command failed", "entry", cmd.entry, "device", cmd.uuid, "kind", failureKind(err))
	}
}
