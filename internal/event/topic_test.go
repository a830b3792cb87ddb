package event

import "testing"

func TestTopic_PublishOrder(t *testing.T) {
	t.Parallel()
	var topic Topic[int]
	var got []int
	topic.Subscribe(func(v int) { got = append(got, v) })
	topic.Subscribe(func(v int) { got = append(got, v*10) })

	topic.Publish(3)
	if len(got) != 2 || got[0] != 3 || got[1] != 30 {
		t.Errorf("got %v, want [3 30]", got)
	}
	if topic.Count() != 2 {
		t.Errorf("Count = %d, want 2", topic.Count())
	}
}

func TestTopic_Unsubscribe(t *testing.T) {
	t.Parallel()
	var topic Topic[string]
	calls := 0
	id := topic.Subscribe(func(string) { calls++ })
	if !topic.Unsubscribe(id) {
		t.Fatal("Unsubscribe should report a registered handler")
	}
	if topic.Unsubscribe(id) {
		t.Error("second Unsubscribe should report false")
	}
	topic.Publish("x")
	if calls != 0 {
		t.Errorf("calls = %d after unsubscribe", calls)
	}
}

func TestTopic_UnsubscribeDuringPublish(t *testing.T) {
	t.Parallel()
	var topic Topic[int]
	var second int
	var id Subscription
	id = topic.Subscribe(func(int) { topic.Unsubscribe(id) })
	topic.Subscribe(func(int) { second++ })

	topic.Publish(1)
	topic.Publish(2)
	if second != 2 {
		t.Errorf("second handler called %d times, want 2", second)
	}
	if topic.Count() != 1 {
		t.Errorf("Count = %d, want 1", topic.Count())
	}
}

func TestTopic_Close(t *testing.T) {
	t.Parallel()
	var topic Topic[int]
	calls := 0
	topic.Subscribe(func(int) { calls++ })
	topic.Close()
	topic.Publish(1)
	if id := topic.Subscribe(func(int) { calls++ }); id != 0 {
		t.Errorf("Subscribe after Close returned %d, want 0", id)
	}
	topic.Publish(2)
	if calls != 0 || topic.Count() != 0 {
		t.Errorf("calls=%d count=%d after Close", calls, topic.Count())
	}
}

func TestAny(t *testing.T) {
	t.Parallel()
	var a, b Topic[int]
	if Any(&a, &b) {
		t.Error("Any with no listeners should be false")
	}
	b.Subscribe(func(int) {})
	if !Any(&a, &b) {
		t.Error("Any should see the listener on b")
	}
}
