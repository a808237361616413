package notify

import (
	"context"
	"fmt"
	"log"

	"github.com/stw-baltyk/baltyk-manager/internal/config"
	"github.com/stw-baltyk/baltyk-manager/internal/queue"
)

// Sender is implemented by Ntfy.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// Notifier turns queue events into push notifications for the board.
type Notifier struct {
	sender Sender
	cfg    config.NtfyConfig
}

// NewNotifier wires a notifier.
func NewNotifier(sender Sender, cfg config.NtfyConfig) *Notifier {
	return &Notifier{sender: sender, cfg: cfg}
}

// Handle is a queue.Handler. Unknown event types are logged and acknowledged.
func (n *Notifier) Handle(ctx context.Context, ev queue.Event) error {
	msg, ok, err := n.Render(ev)
	if err != nil {
		return err
	}
	if !ok {
		log.Printf("notifier: ignoring event %s (%s)", ev.ID, ev.Type)
		return nil
	}
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s: %w", ev.Type, err)
	}
	log.Printf("notifier: sent %s %s", ev.Type, ev.ID)
	return nil
}

// Render builds the message for ev. ok is false for event types that are
// not pushed.
func (n *Notifier) Render(ev queue.Event) (Message, bool, error) {
	switch ev.Type {
	case queue.TypeFeePaid:
		var p queue.FeePaid
		if err := ev.Decode(&p); err != nil {
			return Message{}, false, err
		}
		return Message{
			Title:    "Wpłata: " + p.MemberName,
			Body:     fmt.Sprintf("%s: %s PLN\nData: %s", p.FeeTypeName, p.Amount, p.PaidDate),
			Priority: n.cfg.PriorityNormal,
			Tags:     []string{"moneybag"},
		}, true, nil

	case queue.TypeParticipantPromoted:
		var p queue.ParticipantPromoted
		if err := ev.Decode(&p); err != nil {
			return Message{}, false, err
		}
		return Message{
			Title:    "Awans z listy rezerwowej: " + p.EventName,
			Body:     p.MemberName + " otrzymuje miejsce na wydarzeniu.",
			Priority: n.cfg.PriorityNormal,
			Tags:     []string{"tada"},
		}, true, nil

	case queue.TypeReservationConfirmed, queue.TypeReservationCancelled:
		var p queue.ReservationChanged
		if err := ev.Decode(&p); err != nil {
			return Message{}, false, err
		}
		title, tag := "Rezerwacja potwierdzona", "white_check_mark"
		if ev.Type == queue.TypeReservationCancelled {
			title, tag = "Rezerwacja anulowana", "x"
		}
		return Message{
			Title:    title + ": " + p.EquipmentName,
			Body:     fmt.Sprintf("%s\n%s - %s", p.MemberName, p.Start, p.End),
			Priority: n.cfg.PriorityNormal,
			Tags:     []string{tag, "canoe"},
		}, true, nil

	case queue.TypeImportConfirmed:
		var p queue.ImportConfirmed
		if err := ev.Decode(&p); err != nil {
			return Message{}, false, err
		}
		unmatched := p.Created - p.Matched
		prio := n.cfg.PriorityNormal
		if unmatched > 0 {
			prio = n.cfg.PriorityHigh
		}
		return Message{
			Title:    "Import wyciągu bankowego",
			Body:     fmt.Sprintf("Łącznie: %d\nSparowane: %d\nDo ręcznego: %d\nPominięte: %d", p.Created, p.Matched, unmatched, p.Skipped),
			Priority: prio,
			Tags:     []string{"bank", "inbox_tray"},
		}, true, nil
	}
	return Message{}, false, nil
}
