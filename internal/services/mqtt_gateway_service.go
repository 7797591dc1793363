package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/benmeehan/devmon/internal/bus"
	"github.com/benmeehan/devmon/internal/constants"
	"github.com/benmeehan/devmon/internal/models"
	"github.com/benmeehan/devmon/pkg/mqtt"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// outboundTopics are the local bus topics mirrored to the broker. Command
// topics are deliberately absent so inbound commands are never echoed back.
var outboundTopics = []string{
	constants.TopicDeviceAdded,
	constants.TopicDeviceRemoved,
	constants.TopicDeviceUpdated,
	constants.TopicDevicesChecked,
	constants.TopicDevicesListed,
	constants.TopicCheckIntervalUpdated,
	constants.TopicSystemMetrics,
	constants.TopicHandlerError,
	constants.ErrorTopic(constants.TopicAddDevice),
	constants.ErrorTopic(constants.TopicRemoveDevice),
	constants.ErrorTopic(constants.TopicEnableDevice),
	constants.ErrorTopic(constants.TopicDisableDevice),
	constants.ErrorTopic(constants.TopicCheckAllDevices),
	constants.ErrorTopic(constants.TopicGetDevices),
	constants.ErrorTopic(constants.TopicSetCheckInterval),
}

// MQTTGatewayService bridges the in-process bus and an external MQTT broker.
// Outcome events are republished as JSON to <prefix>/events/<topic>; JSON
// command messages on <prefix>/commands/<topic> are decoded into typed
// payloads and published on the local bus. The gateway is a transport
// adapter at the process edge; the controller remains the only component
// that interprets bus events.
type MQTTGatewayService struct {
	bus         *bus.EventBus
	mqttClient  mqtt.MQTTClient
	topicPrefix string
	qos         int
	logger      zerolog.Logger

	subscriptions []bus.Subscription
	running       bool
}

// NewMQTTGatewayService initializes a new MQTTGatewayService.
func NewMQTTGatewayService(eventBus *bus.EventBus, mqttClient mqtt.MQTTClient, topicPrefix string, qos int, logger zerolog.Logger) *MQTTGatewayService {
	return &MQTTGatewayService{
		bus:         eventBus,
		mqttClient:  mqttClient,
		topicPrefix: strings.TrimSuffix(topicPrefix, "/"),
		qos:         qos,
		logger:      logger.With().Str("component", "mqtt_gateway").Logger(),
	}
}

// Start wires the bridge in both directions.
func (s *MQTTGatewayService) Start() error {
	if s.running {
		s.logger.Warn().Msg("MQTTGatewayService is already running")
		return errors.New("mqtt gateway service is already running")
	}

	for _, topic := range outboundTopics {
		s.subscriptions = append(s.subscriptions, s.bus.Subscribe(topic, s.republish))
	}

	commandFilter := s.topicPrefix + "/commands/+"
	token := s.mqttClient.Subscribe(commandFilter, byte(s.qos), s.handleCommand)
	if token.Wait() && token.Error() != nil {
		for _, sub := range s.subscriptions {
			s.bus.Unsubscribe(sub)
		}
		s.subscriptions = nil
		return fmt.Errorf("failed to subscribe to %s: %w", commandFilter, token.Error())
	}

	s.running = true
	s.logger.Info().Str("prefix", s.topicPrefix).Msg("MQTTGatewayService started successfully")
	return nil
}

// Stop detaches the bridge from both the bus and the broker.
func (s *MQTTGatewayService) Stop() error {
	if !s.running {
		s.logger.Warn().Msg("MQTTGatewayService is not running")
		return errors.New("mqtt gateway service is not running")
	}

	for _, sub := range s.subscriptions {
		s.bus.Unsubscribe(sub)
	}
	s.subscriptions = nil

	token := s.mqttClient.Unsubscribe(s.topicPrefix + "/commands/+")
	token.Wait()
	if err := token.Error(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to unsubscribe from command topic")
	}

	s.running = false
	s.logger.Info().Msg("MQTTGatewayService stopped successfully")
	return nil
}

// republish mirrors one bus event to the broker. A returned error is
// contained by the bus's handler isolation.
func (s *MQTTGatewayService) republish(event models.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to serialize %s payload: %w", event.Topic, err)
	}

	mqttTopic := s.topicPrefix + "/events/" + event.Topic
	token := s.mqttClient.Publish(mqttTopic, byte(s.qos), false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", mqttTopic, err)
	}

	s.logger.Debug().Str("topic", mqttTopic).Msg("Event republished to broker")
	return nil
}

// handleCommand decodes one inbound broker message into its typed command
// payload and publishes it on the local bus.
func (s *MQTTGatewayService) handleCommand(_ pahomqtt.Client, msg pahomqtt.Message) {
	command := strings.TrimPrefix(msg.Topic(), s.topicPrefix+"/commands/")

	switch command {
	case constants.TopicAddDevice:
		var spec models.DeviceSpec
		if err := json.Unmarshal(msg.Payload(), &spec); err != nil {
			s.logger.Warn().Err(err).Str("command", command).Msg("Discarding malformed command payload")
			return
		}
		s.bus.Publish(command, spec)

	case constants.TopicRemoveDevice, constants.TopicEnableDevice, constants.TopicDisableDevice:
		var ref struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(msg.Payload(), &ref); err != nil {
			s.logger.Warn().Err(err).Str("command", command).Msg("Discarding malformed command payload")
			return
		}
		s.bus.Publish(command, ref.ID)

	case constants.TopicCheckAllDevices, constants.TopicGetDevices:
		s.bus.Publish(command, nil)

	case constants.TopicSetCheckInterval:
		var body struct {
			Seconds int `json:"seconds"`
		}
		if err := json.Unmarshal(msg.Payload(), &body); err != nil {
			s.logger.Warn().Err(err).Str("command", command).Msg("Discarding malformed command payload")
			return
		}
		s.bus.Publish(command, body.Seconds)

	default:
		s.logger.Warn().Str("command", command).Msg("Unknown command topic")
	}
}
