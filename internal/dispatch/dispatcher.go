// Package dispatch implements the Receive Dispatcher (spec §4.8): it is
// registered as the RPC Router's push handler and classifies every
// server-pushed envelope (no matching pending request id, per spec §4.2)
// into a server commit, a presence notification, a typing notification,
// or a system event, deduplicating commits by (channel_id, server_msg_id)
// before any side effect. Shaped like a single narrow interface between
// the transport-facing handler and the business logic it feeds,
// re-purposed here from "marshal and publish outbound" to "unmarshal
// and classify inbound".
package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	stdsync "sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	"github.com/privchat/privchat-sdk-go/internal/presence"
	"github.com/privchat/privchat-sdk-go/internal/rpc"
	"github.com/privchat/privchat-sdk-go/internal/sync"
	"github.com/privchat/privchat-sdk-go/internal/transport"
)

// dedupKey implements spec §4.8's "(channel_id, server_msg_id)" dedup key.
type dedupKey struct {
	ChannelID   uint64
	ServerMsgID uint64
}

const dedupCacheSize = 4096

// Dispatcher is the Receive Dispatcher. One instance is wired as the RPC
// Router's push handler for the lifetime of a session.
type Dispatcher struct {
	log *slog.Logger

	syncEngine *sync.Engine
	presenceMgr *presence.Manager
	typingMgr   *presence.TypingManager

	seen *lru.Cache[dedupKey, struct{}]

	systemMu        stdsync.Mutex
	systemListeners []func(json.RawMessage)
}

func New(log *slog.Logger, syncEngine *sync.Engine, presenceMgr *presence.Manager, typingMgr *presence.TypingManager) *Dispatcher {
	seen, _ := lru.New[dedupKey, struct{}](dedupCacheSize)
	return &Dispatcher{log: log, syncEngine: syncEngine, presenceMgr: presenceMgr, typingMgr: typingMgr, seen: seen}
}

// OnSystemEvent registers a callback for envelopes classified as a system
// event (anything that is neither a commit, presence, nor typing push).
func (d *Dispatcher) OnSystemEvent(cb func(json.RawMessage)) {
	d.systemMu.Lock()
	d.systemListeners = append(d.systemListeners, cb)
	d.systemMu.Unlock()
}

// Handle classifies env by its reserved push biz_type and routes it to
// the appropriate collaborator (spec §4.8). It is safe to register
// directly as *rpc.Router's SetPushHandler.
func (d *Dispatcher) Handle(env transport.Envelope) {
	ctx := context.Background()
	switch env.BizType {
	case rpc.PushBizTypeCommit:
		d.handleCommit(ctx, env.Body)
	case rpc.PushBizTypePresence:
		d.handlePresence(env.Body)
	case rpc.PushBizTypeTyping:
		d.handleTyping(env.Body)
	default:
		d.handleSystem(env.Body)
	}
}

func (d *Dispatcher) handleCommit(ctx context.Context, body []byte) {
	var c model.Commit
	if err := json.Unmarshal(body, &c); err != nil {
		d.log.Error("dispatcher: malformed commit push", slog.Any("err", err))
		return
	}

	key := dedupKey{ChannelID: c.ChannelID, ServerMsgID: c.ServerMsgID}
	if _, dup := d.seen.Get(key); dup {
		d.log.Debug("dispatcher: duplicate commit discarded", slog.Uint64("server_msg_id", c.ServerMsgID))
		return
	}
	d.seen.Add(key, struct{}{})

	if err := d.syncEngine.HandlePush(ctx, c); err != nil {
		d.log.Error("dispatcher: applying pushed commit failed", slog.Any("err", err))
	}
}

func (d *Dispatcher) handlePresence(body []byte) {
	var n presence.OnlineStatusChangeNotification
	if err := json.Unmarshal(body, &n); err != nil {
		d.log.Error("dispatcher: malformed presence push", slog.Any("err", err))
		return
	}
	d.presenceMgr.HandleNotification(n)
}

type typingPush struct {
	ChannelID uint64                `json:"channel_id"`
	UserID    int64                 `json:"user_id"`
	Action    presence.TypingAction `json:"action"`
}

func (d *Dispatcher) handleTyping(body []byte) {
	var t typingPush
	if err := json.Unmarshal(body, &t); err != nil {
		d.log.Error("dispatcher: malformed typing push", slog.Any("err", err))
		return
	}
	d.typingMgr.HandleNotification(presence.TypingEvent{ChannelID: t.ChannelID, UserID: t.UserID, Action: t.Action})
}

func (d *Dispatcher) handleSystem(body []byte) {
	d.systemMu.Lock()
	listeners := append([]func(json.RawMessage){}, d.systemListeners...)
	d.systemMu.Unlock()
	for _, l := range listeners {
		l(body)
	}
}
