package rpc

// Route name constants for the RPC routes used by the core (spec §6).
const (
	RouteRegister            = "account/user/register"
	RouteLogin                = "account/user/login"
	RouteSyncEntities         = "entity/sync_entities"
	RouteGetChannelPts        = "sync/get_channel_pts"
	RouteBatchGetChannelPts   = "sync/batch_get_channel_pts"
	RouteGetDifference        = "sync/get_difference"
	RouteMessageSend          = "message/send"
	RouteMessageRevoke        = "message/revoke"
	RouteMessageHistoryGet    = "message/history/get"
	RouteFriendApply          = "contact/friend/apply"
	RouteGroupCreate          = "group/group/create"
	RoutePresenceSubscribe    = "presence/subscribe"
	RouteDeviceUpdatePushState = "device/update_push_state"
)

// Push biz_type values are reserved negative numbers so the Receive
// Dispatcher can classify a server-pushed envelope without decoding its
// body first (spec §4.8): a server commit carries pts, a presence or
// typing notification is routed to its own cache, anything else is a
// system event. -1 and -2 are reserved by internal/connection for
// heartbeat/auth control envelopes.
const (
	PushBizTypeCommit   int32 = -3
	PushBizTypePresence int32 = -4
	PushBizTypeTyping   int32 = -5
	PushBizTypeSystem   int32 = -6
)
