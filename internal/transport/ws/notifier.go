package ws

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/logger"
	"github.com/jasonhq/relay/internal/protocol"
)

// HubNotifier implements service.Notifier on top of the hub.
type HubNotifier struct {
	hub *Hub
	log *zap.SugaredLogger
}

func NewHubNotifier(hub *Hub, log *zap.SugaredLogger) *HubNotifier {
	if log == nil {
		log = logger.Nop()
	}
	return &HubNotifier{hub: hub, log: log}
}

func (n *HubNotifier) NewMessage(msg *domain.Message) {
	evt, err := protocol.NewEvent(protocol.TypeNewMessage, protocol.NewMessagePayload{Message: *msg})
	if err != nil {
		n.log.Errorw("marshal new_message", "error", err)
		return
	}
	n.hub.BroadcastToChannel(msg.ChannelID, evt, "")
}

func (n *HubNotifier) MessageEdited(msg *domain.Message) {
	evt, err := protocol.NewEvent(protocol.TypeMessageEdited, protocol.NewMessagePayload{Message: *msg})
	if err != nil {
		n.log.Errorw("marshal message_edited", "error", err)
		return
	}
	n.hub.BroadcastToChannel(msg.ChannelID, evt, "")
}

func (n *HubNotifier) MessageDeleted(channelID, messageID string) {
	evt, err := protocol.NewEvent(protocol.TypeMessageDeleted, protocol.MessageDeletedPayload{
		MessageID: messageID,
		ChannelID: channelID,
	})
	if err != nil {
		return
	}
	n.hub.BroadcastToChannel(channelID, evt, "")
}

// NewDirectMessage delivers the DM to both parties. The receiver also
// gets fresh unread counts and a sound cue; the sender gets the echo
// that confirms the optimistic append.
func (n *HubNotifier) NewDirectMessage(dm *domain.DirectMessage, receiverUnread map[string]int) {
	inbound, err := protocol.NewEvent(protocol.TypeNewDirectMessage, protocol.DirectMessageEventPayload{DirectMessage: *dm})
	if err != nil {
		n.log.Errorw("marshal new_direct_message", "error", err)
		return
	}
	n.hub.BroadcastToUser(dm.ReceiverID, inbound)
	n.hub.BroadcastToUser(dm.ReceiverID, &protocol.Event{Type: protocol.TypeNotificationSound})
	if receiverUnread != nil {
		if counts, err := protocol.NewEvent(protocol.TypeUnreadCountsUpdated, protocol.UnreadCountsPayload{Counts: receiverUnread}); err == nil {
			n.hub.BroadcastToUser(dm.ReceiverID, counts)
		}
	}

	echo, err := protocol.NewEvent(protocol.TypeDirectMessageSent, protocol.DirectMessageEventPayload{DirectMessage: *dm})
	if err != nil {
		return
	}
	n.hub.BroadcastToUser(dm.SenderID, echo)
}

// DMRead tells both sides the thread was read: the reader's other
// sessions clear the badge, the sender sees the receipt.
func (n *HubNotifier) DMRead(readerID, senderID string) {
	evt, err := protocol.NewEvent(protocol.TypeDMRead, protocol.DMReadPayload{
		ReaderID: readerID,
		SenderID: senderID,
	})
	if err != nil {
		return
	}
	n.hub.BroadcastToUser(readerID, evt)
	n.hub.BroadcastToUser(senderID, evt)
}

func (n *HubNotifier) FileUploaded(up *domain.Upload) {
	evt, err := protocol.NewEvent(protocol.TypeFileUploaded, protocol.FileUploadedPayload{Upload: *up})
	if err != nil {
		return
	}
	n.hub.BroadcastToUser(up.UserID, evt)
}

func (n *HubNotifier) ResumeParsed(userID, fileID string, data json.RawMessage, failed bool) {
	evt, err := protocol.NewEvent(protocol.TypeResumeParsed, protocol.ResumeParsedPayload{
		FileID:     fileID,
		ParsedData: data,
		Failed:     failed,
	})
	if err != nil {
		return
	}
	n.hub.BroadcastToUser(userID, evt)
}
