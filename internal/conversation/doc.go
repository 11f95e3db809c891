// Package conversation answers the read side of friend messaging.
//
// # Engine
//
// Engine derives per-peer views from the message cache:
//
//	engine := conversation.New(db, messages, friends, logger)
//
// Key operations:
//
//   - ListConversationMessages(ctx, viewer, peer, since, limit): oldest first,
//     paging forward with since
//   - GetLatestMessageCreatedAt(ctx, viewer, peer): newest timestamp, if any
//   - ListInbox(ctx, viewer, limit): newest message and unread count per peer
//   - MarkRead(ctx, messageID, viewer): read receipt through the cache
//
// Unread counts only include messages addressed to the viewer.
//
// # Broadcasting
//
// Broadcaster fans written messages out to in-process subscribers keyed by
// user id. Both the sender and the recipient of a message are notified.
// Delivery is best effort; a subscriber whose buffer is full misses messages
// and should re-read the conversation.
package conversation
