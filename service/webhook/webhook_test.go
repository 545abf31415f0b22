package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.viam.com/test"
)

func TestHTTPPostsJSON(t *testing.T) {
	var (
		mu       sync.Mutex
		received map[string]interface{}
		ctype    string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		defer mu.Unlock()
		ctype = r.Header.Get("Content-Type")
		_ = json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	svc := NewHTTP(srv.URL, time.Second)
	defer svc.Close()

	err := svc.Post(context.Background(), map[string]interface{}{"current": 3, "camera": "0"})
	test.That(t, err, test.ShouldBeNil)

	mu.Lock()
	defer mu.Unlock()
	test.That(t, ctype, test.ShouldEqual, "application/json")
	test.That(t, received["camera"], test.ShouldEqual, "0")
	test.That(t, received["current"], test.ShouldEqual, 3.0)
}

func TestHTTPRejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTP(srv.URL, time.Second).Post(context.Background(), map[string]interface{}{})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "502")
}

func TestHTTPUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	err := NewHTTP(url, time.Second).Post(context.Background(), map[string]interface{}{})
	test.That(t, err, test.ShouldNotBeNil)
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, complete bool) *fakeToken {
	tok := &fakeToken{done: make(chan struct{}), err: err}
	if complete {
		close(tok.done)
	}
	return tok
}

func (tok *fakeToken) Wait() bool {
	<-tok.done
	return true
}

func (tok *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-tok.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (tok *fakeToken) Done() <-chan struct{} {
	return tok.done
}

func (tok *fakeToken) Error() error {
	return tok.err
}

type fakePublisher struct {
	connected    bool
	token        *fakeToken
	topic        string
	qos          byte
	payload      []byte
	disconnected bool
}

func (p *fakePublisher) IsConnected() bool {
	return p.connected
}

func (p *fakePublisher) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	p.topic = topic
	p.qos = qos
	p.payload = payload.([]byte)
	return p.token
}

func (p *fakePublisher) Disconnect(_ uint) {
	p.disconnected = true
	p.connected = false
}

func TestMQTTPublishesJSON(t *testing.T) {
	pub := &fakePublisher{connected: true, token: newFakeToken(nil, true)}
	svc := newMQTT(pub, "vs-sentry/transitions", time.Second)

	err := svc.Post(context.Background(), map[string]interface{}{"identifier": "abc"})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pub.topic, test.ShouldEqual, "vs-sentry/transitions")
	test.That(t, pub.qos, test.ShouldEqual, byte(1))

	var decoded map[string]interface{}
	test.That(t, json.Unmarshal(pub.payload, &decoded), test.ShouldBeNil)
	test.That(t, decoded["identifier"], test.ShouldEqual, "abc")

	test.That(t, svc.Close(), test.ShouldBeNil)
	test.That(t, pub.disconnected, test.ShouldBeTrue)
}

func TestMQTTFailures(t *testing.T) {
	offline := newMQTT(&fakePublisher{}, "t", time.Second)
	test.That(t, offline.Post(context.Background(), nil), test.ShouldNotBeNil)

	failing := newMQTT(&fakePublisher{connected: true, token: newFakeToken(errors.New("not authorized"), true)}, "t", time.Second)
	err := failing.Post(context.Background(), nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not authorized")

	stuck := newMQTT(&fakePublisher{connected: true, token: newFakeToken(nil, false)}, "t", 20*time.Millisecond)
	err = stuck.Post(context.Background(), nil)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "timed out")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	stuck = newMQTT(&fakePublisher{connected: true, token: newFakeToken(nil, false)}, "t", time.Minute)
	test.That(t, errors.Is(stuck.Post(ctx, nil), context.Canceled), test.ShouldBeTrue)
}
