package compareevents

import (
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func sample() Event {
	return Event{
		TS:            time.Unix(1_700_000_000, 0).UTC(),
		Pair:          "0xweth/0xusdc/EXACT_INPUT/1",
		Strategy:      "WETH/USDC",
		Threshold:     decimal.RequireFromString("3"),
		Amount:        decimal.RequireFromString("2.5"),
		ServedRouteID: "a",
		FreshRouteID:  "b",
		ServedQuote:   decimal.RequireFromString("1000"),
		FreshQuote:    decimal.RequireFromString("1001"),
		DeltaBps:      -9.99,
	}
}

func TestKafkaPublisher_EncodesAndSends(t *testing.T) {
	cfg := sarama.NewConfig()
	prod := mocks.NewAsyncProducer(t, cfg)
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if _, err := uuid.Parse(ev.ID); err != nil {
			return fmt.Errorf("id %q: %w", ev.ID, err)
		}
		if ev.Strategy != "WETH/USDC" || !ev.FreshQuote.Equal(decimal.RequireFromString("1001")) {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		return nil
	})

	p := newWithProducer(nil, prod, "route-compare", 4)
	p.Publish(sample())
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestKafkaPublisher_KeepsExistingID(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, sarama.NewConfig())
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.ID != "fixed" {
			return fmt.Errorf("id=%q", ev.ID)
		}
		return nil
	})

	p := newWithProducer(nil, prod, "t", 1)
	ev := sample()
	ev.ID = "fixed"
	p.Publish(ev)
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestKafkaPublisher_ProducerErrorsDoNotBlockClose(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, sarama.NewConfig())
	prod.ExpectInputAndFail(sarama.ErrOutOfBrokers)

	p := newWithProducer(nil, prod, "t", 1)
	p.Publish(sample())

	done := make(chan error, 1)
	go func() { done <- p.Close() }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close blocked")
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	p.Publish(sample())
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
}
