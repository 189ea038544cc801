package repositories

import "eventmaster/domain"

const (
	eventsPrefix  = "events_"
	chatsPrefix   = "@App:Chats_"
	counterPrefix = "counter:events_"
	SyncPrefix    = "sync_"
	corruptInfix  = ".corrupt."
)

func EventsKey(ns domain.Namespace) string {
	return eventsPrefix + ns.String()
}

func ChatsKey(ns domain.Namespace) string {
	return chatsPrefix + ns.String()
}

func CounterKey(ns domain.Namespace) string {
	return counterPrefix + ns.String()
}

func SyncKey(ns domain.Namespace) string {
	return SyncPrefix + ns.String()
}
