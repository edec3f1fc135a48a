package downstream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/JaimeStill/geofeed/internal/features"
	"github.com/JaimeStill/geofeed/pkg/lifecycle"
)

type mqttDriver struct {
	client         mqtt.Client
	broker         string
	prefix         string
	qos            byte
	encoding       string
	connectTimeout time.Duration
	now            func() time.Time
	logger         *slog.Logger
}

func newMQTT(cfg *MQTTConfig, logger *slog.Logger) (*mqttDriver, error) {
	d := &mqttDriver{
		broker:         cfg.Broker,
		prefix:         strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:            byte(cfg.QoS),
		encoding:       cfg.Encoding,
		connectTimeout: cfg.ConnectTimeoutDuration(),
		now:            time.Now,
		logger:         logger,
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(brokerURL(cfg.Broker))
	opts.SetClientID(cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetCleanSession(false)

	opts.OnConnect = func(mqtt.Client) {
		d.logger.Info("mqtt connection established", "broker", d.broker)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		d.logger.Warn("mqtt connection lost", "broker", d.broker, "error", err)
	}

	d.client = mqtt.NewClient(opts)
	return d, nil
}

func (d *mqttDriver) Driver() string { return DriverMQTT }

// Start connects in the background. A broker that is down at startup is not
// fatal; the client keeps retrying and Probe reports it unreachable meanwhile.
func (d *mqttDriver) Start(lc *lifecycle.Coordinator) error {
	d.logger.Info("starting downstream", "broker", d.broker)

	lc.OnStartup(func() {
		token := d.client.Connect()
		if !token.WaitTimeout(d.connectTimeout) {
			d.logger.Warn("mqtt broker not reachable yet, retrying in background", "broker", d.broker)
			return
		}
		if err := token.Error(); err != nil {
			d.logger.Error("mqtt connect failed", "broker", d.broker, "error", err)
		}
	})

	lc.OnShutdown(func() {
		<-lc.Context().Done()
		d.client.Disconnect(250)
		d.logger.Info("downstream closed")
	})
	return nil
}

// Deliver publishes the GeoJSON feature to <prefix>/<object_class> and waits
// for the broker acknowledgement or ctx, whichever comes first.
func (d *mqttDriver) Deliver(ctx context.Context, f features.Feature) error {
	if !d.client.IsConnectionOpen() {
		return fmt.Errorf("%w: mqtt not connected", ErrUnreachable)
	}

	payload, err := encode(d.encoding, f.GeoJSON(d.now()))
	if err != nil {
		return fmt.Errorf("encode feature %s: %w", f.FeatureID, err)
	}

	topic := d.topic(f.Provenance.ObjectClass)
	token := d.client.Publish(topic, d.qos, false, payload)

	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: publish %s: %w", ErrUnreachable, topic, err)
		}
		d.logger.Debug("feature published", "feature_id", f.FeatureID, "topic", topic, "size", len(payload))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: publish %s: %w", ErrUnreachable, topic, ctx.Err())
	}
}

func (d *mqttDriver) Probe(context.Context) error {
	if !d.client.IsConnectionOpen() {
		return fmt.Errorf("%w: mqtt not connected", ErrUnreachable)
	}
	return nil
}

func (d *mqttDriver) topic(objectClass string) string {
	class := strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_").Replace(strings.ToLower(objectClass))
	if class == "" {
		class = "unknown"
	}
	return d.prefix + "/" + class
}

func brokerURL(broker string) string {
	if strings.Contains(broker, "://") {
		return broker
	}
	return "tcp://" + broker
}
