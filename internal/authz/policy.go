// Package authz holds every authorization decision for feedback items and
// API capabilities, independent of transport.
package authz

import "feedbackdesk/internal/domain"

// CanView reports whether actor may read item. Every authenticated actor can.
func CanView(_ domain.FeedbackItem, actor domain.Actor) bool {
	return actor.UserID != ""
}

// CanModify reports whether actor may change item: system-ingested items are
// open to any authenticated actor, owned items to their owner and admins.
func CanModify(item domain.FeedbackItem, actor domain.Actor) bool {
	if actor.UserID == "" {
		return false
	}
	if item.SystemOwned() || actor.IsAdmin() {
		return true
	}
	return item.UserID == actor.UserID
}

// CanTransition reports whether actor may move an item from one status to
// another. Reopening (a backward move) is reserved for admins.
func CanTransition(from, to domain.Status, actor domain.Actor) bool {
	if !from.CanTransitionTo(to) {
		return false
	}
	if from.IsBackward(to) {
		return actor.IsAdmin()
	}
	return true
}
