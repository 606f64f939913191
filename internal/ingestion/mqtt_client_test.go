package ingestion

import (
	"errors"
	"testing"

	pkgmqtt "medication-adherence-monitor/pkg/mqtt"
)

type fakeSubscriber struct {
	handlers     map[string]pkgmqtt.MessageHandler
	failTopic    string
	disconnected bool
	unsubscribed []string
}

func (f *fakeSubscriber) Connect() error { return nil }

func (f *fakeSubscriber) Subscribe(topic string, _ byte, handler pkgmqtt.MessageHandler) error {
	if topic == f.failTopic {
		return errors.New("not authorized")
	}
	if f.handlers == nil {
		f.handlers = make(map[string]pkgmqtt.MessageHandler)
	}
	f.handlers[topic] = handler
	return nil
}

func (f *fakeSubscriber) Unsubscribe(topics ...string) error {
	f.unsubscribed = append(f.unsubscribed, topics...)
	return nil
}

func (f *fakeSubscriber) Disconnect() { f.disconnected = true }

func testConfig() *MQTTIngestionConfig {
	return &MQTTIngestionConfig{
		ClientConfig:   &pkgmqtt.Config{},
		HeartbeatTopic: "devices/+/heartbeat",
		DoseTopic:      "devices/+/dose",
		QoS:            1,
	}
}

func TestMQTTIngestionClient_RoutesTopics(t *testing.T) {
	hb, marker := &fakeHeartbeats{}, &fakeMarker{}
	p := NewProcessor(hb, marker, ProcessorConfig{WorkerCount: 1, BufferSize: 8})
	sub := &fakeSubscriber{}

	c, err := newMQTTIngestionClient(testConfig(), sub, p)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	p.Start()

	sub.handlers["devices/+/heartbeat"]("devices/DISP-7/heartbeat", []byte(`{"battery_level":55}`))
	sub.handlers["devices/+/dose"]("devices/DISP-7/dose", []byte(`{"dose_id":"abc","status":"Dispensed"}`))
	sub.handlers["devices/+/dose"]("devices/DISP-7/dose", []byte(`{"device_id":"OTHER","dose_id":"abc","status":"taken"}`))
	sub.handlers["devices/+/dose"]("devices/DISP-7/dose", []byte(`not json`))
	p.Stop()

	if len(hb.reqs) != 1 || hb.reqs[0].DeviceID != "DISP-7" {
		t.Errorf("heartbeats = %+v", hb.reqs)
	}
	if len(marker.marks) != 1 || marker.marks[0].Status != "dispensed" || marker.marks[0].DeviceID != "DISP-7" {
		t.Errorf("marks = %+v", marker.marks)
	}
	if got := p.GetMetrics(); got.MessagesFailed != 2 {
		t.Errorf("expected 2 rejected payloads, got %+v", got)
	}

	c.Stop()
	if !sub.disconnected || len(sub.unsubscribed) != 2 {
		t.Errorf("stop: disconnected=%v unsubscribed=%v", sub.disconnected, sub.unsubscribed)
	}
}

func TestMQTTIngestionClient_StartErrors(t *testing.T) {
	p := NewProcessor(&fakeHeartbeats{}, &fakeMarker{}, ProcessorConfig{})

	c, _ := newMQTTIngestionClient(&MQTTIngestionConfig{ClientConfig: &pkgmqtt.Config{}}, &fakeSubscriber{}, p)
	if err := c.Start(); err == nil {
		t.Error("expected an error without topics")
	}

	sub := &fakeSubscriber{failTopic: "devices/+/dose"}
	c, _ = newMQTTIngestionClient(testConfig(), sub, p)
	if err := c.Start(); err == nil || !sub.disconnected {
		t.Errorf("subscribe failure: err=%v disconnected=%v", err, sub.disconnected)
	}

	if _, err := newMQTTIngestionClient(testConfig(), sub, nil); err == nil {
		t.Error("expected an error without a processor")
	}
}
