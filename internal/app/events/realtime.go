package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/muraguri00/zalora-luxury/pkg/logger"
	"github.com/muraguri00/zalora-luxury/supabase/client"
)

// SourceRealtime marks events relayed from database change feeds.
const SourceRealtime = "realtime"

// ChangeSource delivers row changes. *client.RealtimeClient satisfies it.
type ChangeSource interface {
	Connect(ctx context.Context) error
	Subscribe(schema, table string, handler client.ChangeHandler) error
	Close() error
}

var bridgedTables = []string{"orders", "products", "store_applications", "wallet_settings", "user_profiles"}

// RealtimeBridge relays hosted-database row changes into a Publisher so that
// writes made outside this process still reach dashboard subscribers.
type RealtimeBridge struct {
	source ChangeSource
	pub    Publisher
	schema string
	log    *logger.Logger

	mu      sync.Mutex
	running bool
}

// NewRealtimeBridge creates a bridge over the public schema.
func NewRealtimeBridge(source ChangeSource, pub Publisher, log *logger.Logger) *RealtimeBridge {
	if log == nil {
		log = logger.NewDefault("realtime")
	}
	return &RealtimeBridge{source: source, pub: pub, schema: "public", log: log}
}

func (b *RealtimeBridge) Name() string { return "realtime-bridge" }

func (b *RealtimeBridge) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return nil
	}
	for _, table := range bridgedTables {
		if err := b.source.Subscribe(b.schema, table, b.handle); err != nil {
			return fmt.Errorf("subscribe %s: %w", table, err)
		}
	}
	if err := b.source.Connect(ctx); err != nil {
		return err
	}
	b.running = true
	b.log.WithField("tables", len(bridgedTables)).Info("realtime bridge connected")
	return nil
}

func (b *RealtimeBridge) Stop(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		return nil
	}
	b.running = false
	return b.source.Close()
}

func (b *RealtimeBridge) handle(change client.ChangeEvent) {
	ev, ok := translate(change)
	if !ok {
		return
	}
	b.log.WithField("table", change.Table).WithField("type", change.Type).WithField("entity_id", ev.EntityID).Debug("relaying row change")
	b.pub.Publish(ev)
}

// translate maps a row change onto a domain event. Changes without a domain
// meaning are dropped.
func translate(change client.ChangeEvent) (Event, bool) {
	rec := change.Record
	if change.Type == "DELETE" {
		rec = change.OldRecord
	}
	ev := Event{
		EntityID: rec.Get("id").String(),
		Source:   SourceRealtime,
		Payload:  rec.Value(),
	}
	if at, err := time.Parse(time.RFC3339, change.CommitAt); err == nil {
		ev.At = at.UTC()
	}

	switch change.Table {
	case "orders":
		ev.StoreID = rec.Get("store_id").String()
		ev.UserID = rec.Get("user_id").String()
		switch {
		case change.Type == "INSERT":
			ev.Type = OrderCreated
		case change.Type == "UPDATE" && rec.Get("status").String() == "cancelled":
			ev.Type = OrderCancelled
		case change.Type == "UPDATE":
			ev.Type = OrderStatusChanged
		default:
			return Event{}, false
		}
	case "products":
		ev.StoreID = rec.Get("store_id").String()
		prev := change.OldRecord.Get("stock")
		if change.Type != "UPDATE" || (prev.Exists() && prev.Int() == rec.Get("stock").Int()) {
			return Event{}, false
		}
		ev.Type = StockChanged
	case "store_applications":
		ev.UserID = rec.Get("user_id").String()
		switch change.Type {
		case "INSERT":
			ev.Type = ApplicationCreated
		case "UPDATE":
			ev.Type = ApplicationReviewed
		default:
			return Event{}, false
		}
	case "wallet_settings":
		ev.Type = WalletChanged
	case "user_profiles":
		if change.Type != "UPDATE" || !change.OldRecord.Get("role").Exists() || rec.Get("role").String() == change.OldRecord.Get("role").String() {
			return Event{}, false
		}
		ev.UserID = ev.EntityID
		ev.Type = ProfileRoleChanged
	default:
		return Event{}, false
	}
	return ev, true
}
