package downstream

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	DriverHTTP  = "http"
	DriverMQTT  = "mqtt"
	DriverKafka = "kafka"
)

// Config selects and configures the downstream driver.
type Config struct {
	Driver string      `toml:"driver"`
	HTTP   HTTPConfig  `toml:"http"`
	MQTT   MQTTConfig  `toml:"mqtt"`
	Kafka  KafkaConfig `toml:"kafka"`
}

// HTTPConfig posts GeoJSON features to URL and probes HealthURL.
type HTTPConfig struct {
	URL       string `toml:"url"`
	HealthURL string `toml:"health_url"`
}

// MQTTConfig publishes features to <TopicPrefix>/<object_class>. QoS 0 is not
// accepted since it gives no delivery acknowledgement.
type MQTTConfig struct {
	Broker         string `toml:"broker"`
	ClientID       string `toml:"client_id"`
	TopicPrefix    string `toml:"topic_prefix"`
	QoS            int    `toml:"qos"`
	Encoding       string `toml:"encoding"`
	ConnectTimeout string `toml:"connect_timeout"`
}

// ConnectTimeoutDuration returns ConnectTimeout as a time.Duration.
func (c *MQTTConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ConnectTimeout)
	return d
}

// KafkaConfig produces features to Topic keyed by feature ID.
type KafkaConfig struct {
	BootstrapServers string `toml:"bootstrap_servers"`
	Topic            string `toml:"topic"`
	Acks             string `toml:"acks"`
	CompressionType  string `toml:"compression_type"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Driver                string
	HTTPURL               string
	HTTPHealthURL         string
	MQTTBroker            string
	MQTTClientID          string
	MQTTTopicPrefix       string
	MQTTQoS               string
	MQTTEncoding          string
	KafkaBootstrapServers string
	KafkaTopic            string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		if err := c.loadEnv(env); err != nil {
			return err
		}
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Driver != "" {
		c.Driver = overlay.Driver
	}
	if overlay.HTTP.URL != "" {
		c.HTTP.URL = overlay.HTTP.URL
	}
	if overlay.HTTP.HealthURL != "" {
		c.HTTP.HealthURL = overlay.HTTP.HealthURL
	}
	if overlay.MQTT.Broker != "" {
		c.MQTT.Broker = overlay.MQTT.Broker
	}
	if overlay.MQTT.ClientID != "" {
		c.MQTT.ClientID = overlay.MQTT.ClientID
	}
	if overlay.MQTT.TopicPrefix != "" {
		c.MQTT.TopicPrefix = overlay.MQTT.TopicPrefix
	}
	if overlay.MQTT.QoS != 0 {
		c.MQTT.QoS = overlay.MQTT.QoS
	}
	if overlay.MQTT.Encoding != "" {
		c.MQTT.Encoding = overlay.MQTT.Encoding
	}
	if overlay.MQTT.ConnectTimeout != "" {
		c.MQTT.ConnectTimeout = overlay.MQTT.ConnectTimeout
	}
	if overlay.Kafka.BootstrapServers != "" {
		c.Kafka.BootstrapServers = overlay.Kafka.BootstrapServers
	}
	if overlay.Kafka.Topic != "" {
		c.Kafka.Topic = overlay.Kafka.Topic
	}
	if overlay.Kafka.Acks != "" {
		c.Kafka.Acks = overlay.Kafka.Acks
	}
	if overlay.Kafka.CompressionType != "" {
		c.Kafka.CompressionType = overlay.Kafka.CompressionType
	}
}

func (c *Config) loadDefaults() {
	if c.Driver == "" {
		c.Driver = DriverHTTP
	}
	if c.HTTP.URL == "" {
		c.HTTP.URL = "http://localhost:9000/features"
	}
	if c.HTTP.HealthURL == "" {
		c.HTTP.HealthURL = c.HTTP.URL
	}
	if c.MQTT.Broker == "" {
		c.MQTT.Broker = "localhost:1883"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "geofeed"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "geofeed/features"
	}
	if c.MQTT.QoS == 0 {
		c.MQTT.QoS = 1
	}
	if c.MQTT.Encoding == "" {
		c.MQTT.Encoding = EncodingJSON
	}
	if c.MQTT.ConnectTimeout == "" {
		c.MQTT.ConnectTimeout = "5s"
	}
	if c.Kafka.BootstrapServers == "" {
		c.Kafka.BootstrapServers = "localhost:9092"
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "geofeed.features"
	}
	if c.Kafka.Acks == "" {
		c.Kafka.Acks = "all"
	}
	if c.Kafka.CompressionType == "" {
		c.Kafka.CompressionType = "snappy"
	}
}

func (c *Config) loadEnv(env *Env) error {
	set := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	set(env.Driver, &c.Driver)
	c.Driver = strings.ToLower(c.Driver)
	set(env.HTTPURL, &c.HTTP.URL)
	set(env.HTTPHealthURL, &c.HTTP.HealthURL)
	set(env.MQTTBroker, &c.MQTT.Broker)
	set(env.MQTTClientID, &c.MQTT.ClientID)
	set(env.MQTTTopicPrefix, &c.MQTT.TopicPrefix)
	set(env.MQTTEncoding, &c.MQTT.Encoding)
	set(env.KafkaBootstrapServers, &c.Kafka.BootstrapServers)
	set(env.KafkaTopic, &c.Kafka.Topic)

	if env.MQTTQoS != "" {
		if v := os.Getenv(env.MQTTQoS); v != "" {
			qos, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid mqtt qos: %w", err)
			}
			c.MQTT.QoS = qos
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Driver {
	case DriverHTTP:
		if c.HTTP.URL == "" {
			return fmt.Errorf("http url required")
		}
	case DriverMQTT:
		if c.MQTT.QoS < 1 || c.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt qos must be 1 or 2")
		}
		if c.MQTT.Encoding != EncodingJSON && c.MQTT.Encoding != EncodingMsgpack {
			return fmt.Errorf("unsupported mqtt encoding: %q", c.MQTT.Encoding)
		}
		if _, err := time.ParseDuration(c.MQTT.ConnectTimeout); err != nil {
			return fmt.Errorf("invalid mqtt connect_timeout: %w", err)
		}
	case DriverKafka:
		if c.Kafka.BootstrapServers == "" || c.Kafka.Topic == "" {
			return fmt.Errorf("kafka bootstrap_servers and topic required")
		}
	default:
		return fmt.Errorf("unsupported downstream driver: %q", c.Driver)
	}
	return nil
}
