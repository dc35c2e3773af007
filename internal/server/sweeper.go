package server

import (
	"context"
	"log"
	"time"

	"github.com/talkdrop/talkdrop/internal/config"
)

// Sweeper periodically purges expired messages and, when the policy is
// enabled, deletes rooms that have been inactive past the threshold.
type Sweeper struct {
	store Store
	hub   *Hub
	cfg   config.Config
	now   func() time.Time
}

// NewSweeper creates a sweeper over the given store and hub.
func NewSweeper(st Store, hub *Hub, cfg config.Config) *Sweeper {
	return &Sweeper{store: st, hub: hub, cfg: cfg, now: time.Now}
}

// Run sweeps on the configured interval until the context is cancelled.
func (sw *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(sw.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			purged, rooms := sw.SweepOnce(ctx)
			if purged > 0 || rooms > 0 {
				log.Printf("sweep: purged %d expired messages, deleted %d inactive rooms", purged, rooms)
			}
		}
	}
}

// SweepOnce runs a single sweep cycle and returns how many messages were
// purged and how many rooms deleted. Failures are isolated per message and
// per room: one bad entry never aborts the cycle.
func (sw *Sweeper) SweepOnce(ctx context.Context) (purged, roomsDeleted int) {
	now := sw.now()

	expired, err := sw.store.ListExpired(ctx, now)
	if err != nil {
		log.Printf("sweep: list expired: %v", err)
	}
	for _, ref := range expired {
		if err := sw.store.DeleteMessage(ctx, ref.RoomID, ref.MessageID); err != nil {
			log.Printf("sweep: delete message %s/%s: %v", ref.RoomID, ref.MessageID, err)
			continue
		}
		if s := sw.hub.Session(ref.RoomID); s != nil {
			s.DropMessage(ref.MessageID)
		}
		purged++
	}

	if sw.cfg.AutoDeleteInactiveRooms {
		roomsDeleted = sw.sweepInactiveRooms(ctx, now)
	}
	return purged, roomsDeleted
}

func (sw *Sweeper) sweepInactiveRooms(ctx context.Context, now time.Time) int {
	rooms, err := sw.store.ListRooms(ctx)
	if err != nil {
		log.Printf("sweep: list rooms: %v", err)
		return 0
	}
	deleted := 0
	for _, room := range rooms {
		if s := sw.hub.Session(room.ID); s != nil && s.OnlineCount() > 0 {
			continue
		}
		last, err := sw.store.LastActivity(ctx, room.ID)
		if err != nil {
			log.Printf("sweep: last activity for %s: %v", room.ID, err)
			continue
		}
		if last.IsZero() || now.Sub(last) < sw.cfg.InactiveThreshold {
			continue
		}
		if err := sw.store.DeleteRoom(ctx, room.ID); err != nil {
			log.Printf("sweep: delete room %s: %v", room.ID, err)
			continue
		}
		sw.hub.TearDown(room.ID)
		deleted++
	}
	return deleted
}
