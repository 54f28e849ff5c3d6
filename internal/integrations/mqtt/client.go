// Package mqtt publishes accepted attendance marks to a broker so campus
// dashboards and notification bots can react without polling the API.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"rollcall-go/config"
	"rollcall-go/internal/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// Publisher is a write-only MQTT client. It satisfies the attendance
// engine's EventPublisher interface.
type Publisher struct {
	config      config.MQTTConfig
	client      mqtt.Client
	isConnected bool
}

// markMessage is the wire payload for one accepted ledger mutation.
type markMessage struct {
	RollNo        string    `json:"roll_no"`
	Name          string    `json:"name"`
	LectureNumber int       `json:"lecture_number"`
	Date          string    `json:"date"`
	Subject       string    `json:"subject,omitempty"`
	Status        string    `json:"status"`
	Method        string    `json:"method"`
	MarkedAt      time.Time `json:"marked_at"`
}

// NewPublisher creates an unconnected publisher; call Start before use.
func NewPublisher(cfg config.MQTTConfig) *Publisher {
	return &Publisher{config: cfg}
}

// Start connects to the broker. A disabled configuration is not an error;
// the publisher just stays inert.
func (p *Publisher) Start() error {
	if !p.config.Enabled {
		log.Info("MQTT publishing is disabled in configuration")
		return nil
	}

	opts := mqtt.NewClientOptions()
	brokerURL := fmt.Sprintf("tcp://%s:%d", p.config.Broker, p.config.Port)
	opts.AddBroker(brokerURL)
	opts.SetClientID(p.config.ClientID)

	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
		opts.SetPassword(p.config.Password)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Infof("Connected to MQTT broker at %s:%d", p.config.Broker, p.config.Port)
		p.isConnected = true
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Errorf("MQTT connection lost: %v", err)
		p.isConnected = false
	})

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(1 * time.Minute)

	p.client = mqtt.NewClient(opts)

	log.Infof("Connecting to MQTT broker at %s", brokerURL)
	if token := p.client.Connect(); token.Wait() && token.Error() != nil {
		log.Errorf("Failed to connect to MQTT broker: %v", token.Error())
		return token.Error()
	}
	return nil
}

// Stop disconnects from the broker.
func (p *Publisher) Stop() {
	if p.client != nil && p.client.IsConnected() {
		log.Info("Disconnecting MQTT publisher...")
		p.client.Disconnect(250)
		p.isConnected = false
	}
}

// IsConnected reports whether the broker connection is up.
func (p *Publisher) IsConnected() bool {
	return p.client != nil && p.client.IsConnected()
}

// PublishMark sends one accepted mark to the configured topic. Publishing
// is best-effort: the ledger write already succeeded, so broker trouble
// is logged and swallowed.
func (p *Publisher) PublishMark(rec models.AttendanceRecord) {
	if !p.IsConnected() {
		return
	}

	payload, err := json.Marshal(markMessage{
		RollNo:        rec.RollNo,
		Name:          rec.Name,
		LectureNumber: rec.LectureNumber,
		Date:          rec.Date,
		Subject:       rec.Subject,
		Status:        string(rec.Status),
		Method:        string(rec.Method),
		MarkedAt:      rec.MarkedAt,
	})
	if err != nil {
		log.Errorf("Failed to marshal attendance mark for MQTT: %v", err)
		return
	}

	token := p.client.Publish(p.config.Topic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		log.Errorf("Failed to publish attendance mark to %s: %v", p.config.Topic, token.Error())
		return
	}
	log.Debugf("Published attendance mark for %s to %s", rec.RollNo, p.config.Topic)
}
