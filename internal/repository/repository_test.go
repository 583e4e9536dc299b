package repository

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"SignalFuse/internal/domain/models"
	pkgkafka "SignalFuse/pkg/kafka"
)

func sampleAnalysis() *models.Analysis {
	return &models.Analysis{
		ID:     "a-1",
		Symbol: "XAUUSD",
		AsOf:   time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC),
		Scalp:  &models.FinalSignal{Horizon: models.HorizonScalp, Direction: models.DirectionBuy, Confidence: 61.5, RiskRewardRatio: 2.79},
		Swing:  &models.FinalSignal{Horizon: models.HorizonSwing, Direction: models.DirectionSell, Confidence: 40, RiskRewardRatio: 3},
	}
}

func TestCandlesQuery(t *testing.T) {
	q := candlesQuery("market.candles", true)
	if !strings.Contains(q, "bucket <= ?") || !strings.Contains(q, "FROM market.candles FINAL") {
		t.Fatalf("unexpected bounded query %s", q)
	}
	if strings.Contains(candlesQuery("market.candles", false), "bucket <=") {
		t.Fatalf("unbounded query must not filter on bucket")
	}
}

func TestCandlesSchema(t *testing.T) {
	stmts := CandlesSchema("market", "candles")
	if len(stmts) != 2 || !strings.Contains(stmts[1], "market.candles") {
		t.Fatalf("unexpected schema %v", stmts)
	}
}

func TestReverseCandles(t *testing.T) {
	c := []models.Candle{{Close: 3}, {Close: 2}, {Close: 1}}
	reverseCandles(c)
	if c[0].Close != 1 || c[2].Close != 3 {
		t.Fatalf("not reversed: %+v", c)
	}
}

func TestRecordArgs(t *testing.T) {
	recs := sampleAnalysis().Records()
	if len(recs) != 2 || recs[0].Signal.Horizon != models.HorizonScalp {
		t.Fatalf("unexpected records %+v", recs)
	}
	args, err := recordArgs(recs[1])
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(args) != 8 || args[1] != "swing" || args[4] != "SELL" {
		t.Fatalf("unexpected args %v", args)
	}
	if ts := args[3].(time.Time); !ts.Equal(time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC)) {
		t.Fatalf("unexpected as_of %v", ts)
	}
	var back models.FinalSignal
	if err := json.Unmarshal(args[7].([]byte), &back); err != nil || back.Confidence != 40 {
		t.Fatalf("payload round trip failed: %v %+v", err, back)
	}
}

type fakeBatchProducer struct {
	topic string
	msgs  []pkgkafka.Message
}

func (f *fakeBatchProducer) PublishBatch(_ context.Context, topic string, msgs []pkgkafka.Message) error {
	f.topic = topic
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeBatchProducer) Close() error { return nil }

func TestKafkaSignalPublisher(t *testing.T) {
	fp := &fakeBatchProducer{}
	p := &KafkaSignalPublisher{producer: fp, topic: "signals.final"}

	a := sampleAnalysis()
	a.Swing = nil
	if err := p.Publish(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.topic != "signals.final" || len(fp.msgs) != 1 {
		t.Fatalf("unexpected publish %q %d", fp.topic, len(fp.msgs))
	}
	m := fp.msgs[0]
	if string(m.Key) != "XAUUSD" || string(m.Headers[0].Value) != "scalp" {
		t.Fatalf("unexpected message %+v", m)
	}
	if rec, ok := m.Value.(models.SignalRecord); !ok || rec.AnalysisID != "a-1" {
		t.Fatalf("unexpected value %#v", m.Value)
	}

	if err := p.Publish(context.Background(), &models.Analysis{Symbol: "X"}); err != nil || len(fp.msgs) != 1 {
		t.Fatalf("empty analysis must not publish")
	}
}
