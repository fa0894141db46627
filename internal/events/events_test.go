package events

import "testing"

func TestNilPublisherIsNoOp(t *testing.T) {
	var p *Publisher

	if err := p.PublishFetchCompleted(FetchCompleted{RunID: "r1"}); err != nil {
		t.Errorf("PublishFetchCompleted on nil publisher: %v", err)
	}
	if err := p.PublishLoadCompleted(LoadCompleted{RunID: "r1"}); err != nil {
		t.Errorf("PublishLoadCompleted on nil publisher: %v", err)
	}
	p.Close()
}
