package dispatcher

import (
	"fmt"

	"github.com/BearBump/CrewTrack/internal/broker/messages"
	"github.com/BearBump/CrewTrack/internal/integrations/notify"
	"github.com/BearBump/CrewTrack/internal/models"
)

// DispatchChannel is the push audience for operations alerts.
const DispatchChannel = "dispatch"

type LinkBuilder interface {
	URL(ref models.JobRef, jobCode string) string
}

// clientSMS lists the checkpoints a client hears about, per kind.
var clientSMS = map[models.JobKind]map[string]string{
	models.JobKindMove: {
		models.StatusEnRouteToPickup:      "Your moving crew is on the way.",
		models.StatusArrivedAtPickup:      "Your moving crew has arrived.",
		models.StatusEnRouteToDestination: "Your belongings are on the way to the destination.",
		models.StatusCompleted:            "Your move is complete. Thank you!",
	},
	models.JobKindDelivery: {
		models.StatusEnRoute:   "Your delivery is on the way.",
		models.StatusArrived:   "Your delivery crew has arrived.",
		models.StatusCompleted: "Your delivery is complete. Thank you!",
	},
}

// Compose turns one checkpoint event into the notifications it triggers.
func Compose(evt messages.CheckpointRecorded, links LinkBuilder) []notify.Message {
	var out []notify.Message
	kind := models.JobKind(evt.JobKind)

	if text, ok := clientSMS[kind][evt.Status]; ok && evt.ClientPhone != nil && *evt.ClientPhone != "" && !evt.Synthetic {
		m := notify.Message{
			Channel:  notify.ChannelSMS,
			To:       *evt.ClientPhone,
			Body:     text,
			DedupKey: dedupKey(evt, notify.ChannelSMS),
		}
		if links != nil && evt.JobCode != "" && evt.Status != models.StatusCompleted {
			m.TrackingURL = links.URL(models.JobRef{Kind: kind, ID: evt.JobID}, evt.JobCode)
			m.Body += " Track: " + m.TrackingURL
		}
		out = append(out, m)
	}

	switch {
	case evt.Status == models.StatusIdle:
		out = append(out, notify.Message{
			Channel:  notify.ChannelPush,
			To:       DispatchChannel,
			Title:    "Crew idle",
			Body:     fmt.Sprintf("Team %s has not moved for a while on %s %s.", evt.TeamID, evt.JobKind, jobLabel(evt)),
			DedupKey: dedupKey(evt, notify.ChannelPush),
		})
	case evt.Status == models.StatusCompleted:
		out = append(out, notify.Message{
			Channel:  notify.ChannelPush,
			To:       DispatchChannel,
			Title:    "Job completed",
			Body:     fmt.Sprintf("Team %s completed %s %s.", evt.TeamID, evt.JobKind, jobLabel(evt)),
			DedupKey: dedupKey(evt, notify.ChannelPush),
		})
	}
	return out
}

func jobLabel(evt messages.CheckpointRecorded) string {
	if evt.JobCode != "" {
		return evt.JobCode
	}
	return evt.JobID
}

func dedupKey(evt messages.CheckpointRecorded, channel string) string {
	return fmt.Sprintf("%s:%s:%d:%s", evt.SessionID, evt.Status, evt.At.UnixMilli(), channel)
}
