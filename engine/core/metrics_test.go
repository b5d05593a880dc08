package core

import "testing"

func TestMetricsAverage(t *testing.T) {
	m := NewMetrics()
	for i := 0; i < AVG_COUNT-1; i++ {
		m.Update(0.010)
	}
	if m.FrameTime() != 0 {
		t.Fatalf("average before a full window:\nhave %v\nwant 0", m.FrameTime())
	}
	m.Update(0.010)
	if ft := m.FrameTime(); ft < 9.999 || ft > 10.001 {
		t.Fatalf("FrameTime:\nhave %v\nwant 10", ft)
	}
	for i := 0; i < AVG_COUNT; i++ {
		m.Update(0.020)
	}
	if ft := m.FrameTime(); ft < 19.999 || ft > 20.001 {
		t.Fatalf("FrameTime after window rolled:\nhave %v\nwant 20", ft)
	}
}

func TestMetricsFPS(t *testing.T) {
	m := NewMetrics()
	// 101 frames of 10ms crosses the one second mark once.
	for i := 0; i < 101; i++ {
		m.Update(0.010)
	}
	if m.FPS() != 100 {
		t.Fatalf("FPS:\nhave %v\nwant 100", m.FPS())
	}
}

func TestEventBus(t *testing.T) {
	eb := NewEventBus()
	var order []int
	eb.Register(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		order = append(order, 1)
		return false
	})
	eb.Register(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		order = append(order, 2)
		return true
	})
	eb.Register(EVENT_CODE_RESIZED, func(ctx EventContext) bool {
		order = append(order, 3)
		return false
	})

	eb.Post(EventContext{Type: EVENT_CODE_RESIZED, Data: &ResizeEvent{Width: 1, Height: 1}})
	if len(order) != 0 {
		t.Fatal("Post should not deliver before Dispatch")
	}
	eb.Dispatch()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("delivery order:\nhave %v\nwant [1 2]", order)
	}
	if eb.Fire(EventContext{Type: EVENT_CODE_APPLICATION_QUIT}) {
		t.Fatal("event with no listeners reported as handled")
	}
}
