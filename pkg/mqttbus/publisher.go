package mqttbus

import (
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// IPublisher is the publish side of the bus. PublishMessage targets the
// publisher's bound topic; PublishToQos publishes to an arbitrary topic
// with an explicit QoS.
type IPublisher interface {
	PublishMessage(payload string) error
	PublishToQos(topic string, qos byte, retained bool, payload string) error
	Close()
}

// Publisher publishes through a shared MQTT client.
type Publisher struct {
	client mqtt.Client
	topic  string
}

func NewPublisher(client mqtt.Client, topic string) *Publisher {
	return &Publisher{client: client, topic: topic}
}

// PublishMessage publishes to the bound topic at its default QoS.
func (p *Publisher) PublishMessage(payload string) error {
	return p.PublishToQos(p.topic, qosFor(p.topic), false, payload)
}

// PublishToQos publishes a payload to an explicit topic/QoS.
func (p *Publisher) PublishToQos(topic string, qos byte, retained bool, payload string) error {
	token := p.client.Publish(topic, qos, retained, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects the underlying client.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
		log.Println("mqttbus: publisher disconnected")
	}
}
