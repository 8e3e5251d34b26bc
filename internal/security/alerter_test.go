package security

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestAlerter(t *testing.T) *AuditAlerter {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewAuditAlerter(client, "test:alerts")
}

func TestAuditAlerterObserveTriggers(t *testing.T) {
	alerter := newTestAlerter(t)
	var last AlertResult
	for i := 0; i < 10; i++ {
		res, err := alerter.Observe(context.Background(), "auth.login", "fail", "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		last = res
	}
	if !last.Triggered || last.Count != 10 {
		t.Fatalf("expected alert at 10 failures, got %+v", last)
	}
}

func TestAuditAlerterIgnoresSuccessAndUnknownRules(t *testing.T) {
	alerter := newTestAlerter(t)
	for _, ev := range [][2]string{{"auth.login", "success"}, {"auth.custom", "fail"}} {
		res, err := alerter.Observe(context.Background(), ev[0], ev[1], "127.0.0.1")
		if err != nil {
			t.Fatalf("observe: %v", err)
		}
		if res.Triggered || res.Count != 0 {
			t.Fatalf("unexpected result for %v: %+v", ev, res)
		}
	}
}

func TestNilAlerterIsNoop(t *testing.T) {
	var a *AuditAlerter
	if NewAuditAlerter(nil, "") != nil {
		t.Fatalf("expected nil alerter without client")
	}
	if res, err := a.Observe(context.Background(), "auth.login", "fail", "ip"); err != nil || res.Triggered {
		t.Fatalf("nil alerter: %+v %v", res, err)
	}
}
