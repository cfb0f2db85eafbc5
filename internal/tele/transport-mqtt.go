package tele

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/temoto/twibridge/helpers"
	tele_config "github.com/temoto/twibridge/internal/tele/config"
	"github.com/temoto/twibridge/log2"
)

type transportMqtt struct {
	log       *log2.Log
	onCommand func([]byte)
	m         mqtt.Client
	qos       byte
	timeout   time.Duration

	topicOnline    string
	topicTelemetry string
	topicRelays    string
	topicCommand   string
	topicResponse  string
}

func (self *transportMqtt) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, onCommand CommandCallback) error {
	self.log = log
	mqtt.ERROR = log
	mqtt.CRITICAL = log
	mqtt.WARN = log
	if teleConfig.LogDebug {
		mqtt.DEBUG = log
	}

	if teleConfig.Broker == "" {
		return errors.NotValidf("tele broker empty")
	}
	if teleConfig.Qos < 0 || teleConfig.Qos > 2 {
		return errors.NotValidf("tele qos=%d", teleConfig.Qos)
	}
	self.qos = byte(teleConfig.Qos)
	self.timeout = helpers.IntSecondDefault(teleConfig.NetworkTimeout, DefaultNetworkTimeout)
	clientID := teleConfig.ClientID
	if clientID == "" {
		clientID = "twibridge-" + uuid.New().String()
	}

	self.onCommand = func(payload []byte) { onCommand(ctx, payload) }
	prefix := teleConfig.TopicPrefix
	self.topicOnline = fmt.Sprintf("%s/online", prefix)
	self.topicTelemetry = fmt.Sprintf("%s/telemetry", prefix)
	self.topicRelays = fmt.Sprintf("%s/relays", prefix)
	self.topicCommand = fmt.Sprintf("%s/command", prefix)
	self.topicResponse = fmt.Sprintf("%s/command/result", prefix)
	keepAlive := helpers.IntSecondDefault(teleConfig.KeepaliveSec, 60*time.Second)

	mopt := mqtt.NewClientOptions().
		AddBroker(teleConfig.Broker).
		SetClientID(clientID).
		SetUsername(teleConfig.Username).
		SetPassword(teleConfig.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetKeepAlive(keepAlive).
		SetPingTimeout(self.timeout).
		SetWill(self.topicOnline, "0", self.qos, true).
		SetOnConnectHandler(self.onConnectHandler).
		SetConnectionLostHandler(self.connectLostHandler)
	self.m = mqtt.NewClient(mopt)
	// network may be absent now, Send* will connect later
	if err := self.connect(); err != nil {
		self.log.Errorf("mqtt connect broker=%s err=%v", teleConfig.Broker, err)
	}
	return nil
}

func (self *transportMqtt) Close() {
	if self.m == nil {
		return
	}
	if self.m.IsConnected() {
		self.m.Publish(self.topicOnline, self.qos, true, "0").WaitTimeout(self.timeout)
	}
	self.m.Disconnect(uint(self.timeout / time.Millisecond))
	self.log.Infof("mqtt disconnected")
}

func (self *transportMqtt) SendTelemetry(payload []byte) bool {
	return self.publish(self.topicTelemetry, false, payload)
}

func (self *transportMqtt) SendRelays(payload []byte) bool {
	return self.publish(self.topicRelays, true, payload)
}

func (self *transportMqtt) SendCommandResponse(payload []byte) bool {
	return self.publish(self.topicResponse, false, payload)
}

func (self *transportMqtt) connect() error {
	token := self.m.Connect()
	if !token.WaitTimeout(self.timeout) {
		return errors.Timeoutf("mqtt connect")
	}
	return token.Error()
}

func (self *transportMqtt) publish(topic string, retained bool, payload []byte) bool {
	if !self.m.IsConnected() {
		if err := self.connect(); err != nil {
			self.log.Debugf("mqtt publish topic=%s not connected err=%v", topic, err)
			return false
		}
	}
	token := self.m.Publish(topic, self.qos, retained, payload)
	if !token.WaitTimeout(self.timeout) {
		self.log.Errorf("mqtt publish topic=%s timeout=%s", topic, self.timeout)
		return false
	}
	if err := token.Error(); err != nil {
		self.log.Errorf("mqtt publish topic=%s err=%v", topic, err)
		return false
	}
	return true
}

func (self *transportMqtt) messageHandler(c mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	self.log.Infof("mqtt income topic=%s message=%q", msg.Topic(), payload)
	self.onCommand(payload)
}

func (self *transportMqtt) connectLostHandler(c mqtt.Client, err error) {
	self.log.Infof("mqtt disconnect err=%v", err)
}

func (self *transportMqtt) onConnectHandler(c mqtt.Client) {
	self.log.Infof("mqtt connect")
	if token := c.Subscribe(self.topicCommand, self.qos, self.messageHandler); token.WaitTimeout(self.timeout) && token.Error() != nil {
		self.log.Errorf("mqtt subscribe topic=%s err=%v", self.topicCommand, token.Error())
		return
	}
	c.Publish(self.topicOnline, self.qos, true, "1")
}
