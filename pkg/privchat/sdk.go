// Package privchat is the SDK's single exported entrypoint (spec §9 open
// question: "A strict reimplementation should collapse [PrivchatSDK and
// PrivchatClient] into one typed façade"). *SDK composes every internal
// component named in spec §2's layer table; none of those components are
// re-exported as a second public "client" type.
package privchat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/privchat/privchat-sdk-go/internal/bootstrap"
	"github.com/privchat/privchat-sdk-go/internal/config"
	"github.com/privchat/privchat-sdk-go/internal/connection"
	"github.com/privchat/privchat-sdk-go/internal/dispatch"
	"github.com/privchat/privchat-sdk-go/internal/domain/model"
	ierr "github.com/privchat/privchat-sdk-go/internal/errors"
	"github.com/privchat/privchat-sdk-go/internal/idgen"
	"github.com/privchat/privchat-sdk-go/internal/lifecycle"
	"github.com/privchat/privchat-sdk-go/internal/observer"
	"github.com/privchat/privchat-sdk-go/internal/presence"
	"github.com/privchat/privchat-sdk-go/internal/queue"
	"github.com/privchat/privchat-sdk-go/internal/rpc"
	"github.com/privchat/privchat-sdk-go/internal/storage"
	"github.com/privchat/privchat-sdk-go/internal/sync"
	"github.com/privchat/privchat-sdk-go/internal/upload"
)

// Re-exported so callers never need to import internal packages directly.
type (
	Config           = config.Config
	ConfigBuilder    = config.Builder
	Endpoint         = model.Endpoint
	ChannelType      = model.ChannelType
	DeviceInfo       = model.DeviceInfo
	TimelineEvent    = observer.TimelineEvent
	ChannelListEvent = observer.ChannelListEvent
	ObserverToken    = observer.Token
	TypingAction     = presence.TypingAction
)

const (
	ChannelDirect = model.ChannelDirect
	ChannelGroup  = model.ChannelGroup

	TypingStart = presence.TypingStart
	TypingStop  = presence.TypingStop
)

func NewConfigBuilder() *ConfigBuilder { return config.NewBuilder() }

// maxMessageBytes bounds content size; a message failing this check is
// never enqueued and is therefore never retried (spec §8: "Send of a
// message whose content fails a size check -> Failed (not retried)").
const maxMessageBytes = 64 * 1024

// SDK is the sole façade type. Connect/Authenticate/SendMessage and every
// other spec §4 operation are methods on *SDK.
type SDK struct {
	log *slog.Logger
	cfg *config.Config

	conn      *connection.Manager
	router    *rpc.Router
	lifecycle *lifecycle.Manager
	hub       *observer.Hub
	ids       *idgen.Generator

	mu           stdsync.RWMutex
	userID       int64
	store        *storage.Store
	sendQueue    *queue.SendQueue
	fileQueue    *queue.FileSendQueue
	pts          *sync.PtsManager
	applier      *sync.CommitApplier
	syncEngine   *sync.Engine
	entityEngine *sync.EntityEngine
	orchestrator *bootstrap.Orchestrator
	presenceMgr  *presence.Manager
	typingMgr    *presence.TypingManager
	dispatcher   *dispatch.Dispatcher

	cancelPump context.CancelFunc
}

// New constructs the façade from a validated Config; nothing touches the
// network or disk until Connect/Authenticate are called.
func New(log *slog.Logger, cfg *config.Config) *SDK {
	conn := connection.NewManager(log, connection.Config{
		Endpoints:         cfg.Endpoints,
		ConnectTimeout:    cfg.ConnectTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})
	router := rpc.New(log, conn, cfg.RPCTimeout)

	return &SDK{
		log:       log,
		cfg:       cfg,
		conn:      conn,
		router:    router,
		lifecycle: lifecycle.NewManager(log),
		hub:       observer.NewHub(log),
		ids:       idgen.New(),
	}
}

// Connect implements spec §4.1 connect(): iterates cfg.Endpoints in
// order, the first successful handshake wins.
func (s *SDK) Connect(ctx context.Context) error {
	return s.conn.Connect(ctx, s.cfg.Endpoints)
}

// IsConnected reflects the last observed transport state (spec §4.1).
func (s *SDK) IsConnected() bool { return s.conn.IsConnected() }

type registerRequest struct {
	Username   string           `json:"username"`
	Password   string           `json:"password"`
	DeviceUUID string           `json:"device_uuid"`
	DeviceInfo model.DeviceInfo `json:"device_info"`
}

type registerResponse struct {
	UserID int64  `json:"user_id"`
	Token  string `json:"token"`
}

// Register implements the account/user/register route (spec §6). It
// requires a live (but not yet authenticated) transport.
func (s *SDK) Register(ctx context.Context, username, password, deviceUUID string, info model.DeviceInfo) (userID int64, token string, err error) {
	var resp registerResponse
	if err := s.router.Call(ctx, rpc.RouteRegister, registerRequest{username, password, deviceUUID, info}, &resp); err != nil {
		return 0, "", err
	}
	return resp.UserID, resp.Token, nil
}

// Authenticate implements spec §4.1 authenticate(): on success it opens
// this user's encrypted store and wires every L2-L4 component, then
// emits Authenticated via the connection state stream.
func (s *SDK) Authenticate(ctx context.Context, userID int64, token string, deviceID uuid.UUID, info model.DeviceInfo) error {
	if err := s.conn.Authenticate(ctx, userID, token, deviceID, info); err != nil {
		return err
	}
	return s.initForUser(ctx, userID)
}

func (s *SDK) initForUser(ctx context.Context, userID int64) error {
	store, err := storage.Open(ctx, s.log, storage.Config{
		DataRoot:     s.cfg.DataRoot,
		UserID:       userID,
		MasterSecret: s.cfg.MasterSecret,
	})
	if err != nil {
		return err
	}

	pts := sync.NewPtsManager(store)
	applier := sync.NewCommitApplier(s.log, store, pts, s.hub)
	syncEngine := sync.NewEngine(s.log, s.router, pts, applier)
	entityEngine := sync.NewEntityEngine(s.log, s.router, store, store)
	orchestrator := bootstrap.NewOrchestrator(s.log, entityEngine, syncEngine, store)

	presenceMgr := presence.NewManager(s.log, presence.Config{
		CacheSize: s.cfg.PresenceCacheSize,
		CacheTTL:  s.cfg.PresenceCacheTTL,
		Caller:    s.router,
	})
	typingMgr := presence.NewTypingManager(presence.TypingConfig{
		DebounceWindow: s.cfg.TypingDebounceWindow,
		AutoClear:      s.cfg.TypingAutoClear,
	})

	dispatcher := dispatch.New(s.log, syncEngine, presenceMgr, typingMgr)
	s.router.SetPushHandler(dispatcher.Handle)
	s.router.RunCancelOnDisconnect(ctx)

	s.mu.Lock()
	s.userID, s.store = userID, store
	s.pts, s.applier, s.syncEngine, s.entityEngine, s.orchestrator = pts, applier, syncEngine, entityEngine, orchestrator
	s.presenceMgr, s.typingMgr, s.dispatcher = presenceMgr, typingMgr, dispatcher
	s.mu.Unlock()

	s.lifecycle.Register(lifecycle.NewPushHook(s.router, s.conn))

	pumpCtx, cancel := context.WithCancel(ctx)
	s.cancelPump = cancel
	go s.pumpInbound(pumpCtx)

	if err := s.startSendQueue(ctx); err != nil {
		return err
	}
	return nil
}

// pumpInbound feeds every non-control envelope from the Connection
// Manager into the RPC Router's correlation table / push handler (spec
// §4.2, §4.8).
func (s *SDK) pumpInbound(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-s.conn.RawEnvelopes():
			if !ok {
				return
			}
			s.router.Deliver(env)
		}
	}
}

// currentToken supplies the bearer token the Uploader attaches to each
// media upload request, read fresh on every call since a reconnect may
// have rotated it.
func (s *SDK) currentToken() string {
	sess := s.conn.Session()
	if sess == nil {
		return ""
	}
	return sess.Token
}

func (s *SDK) startSendQueue(ctx context.Context) error {
	s.mu.RLock()
	store, userID := s.store, s.userID
	s.mu.RUnlock()

	sq := queue.New(s.log, store, queue.Config{
		UserID:    userID,
		Namespace: "message",
		Workers:   s.cfg.SendQueueWorkers,
		Effect:    s.sendEffect,
		Reauthenticate: func(ctx context.Context) error {
			return ierr.New(ierr.Authentication, "reauthentication required; call Authenticate again")
		},
	})
	if err := sq.Start(ctx); err != nil {
		return err
	}

	fq := queue.NewFileSendQueue(s.log, store, queue.FileQueueConfig{
		UserID:   userID,
		Workers:  s.cfg.FileQueueWorkers,
		Uploader: upload.NewHTTPUploader(s.cfg.MediaBaseURL, s.currentToken),
		EnqueueCommit: func(ctx context.Context, task model.FileTask, remoteURL string) error {
			return s.enqueueFileCommit(ctx, task, remoteURL)
		},
	})
	if err := fq.Start(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	s.sendQueue, s.fileQueue = sq, fq
	s.mu.Unlock()
	return nil
}

type sendMessageRequest struct {
	ChannelID      uint64            `json:"channel_id"`
	ChannelType    model.ChannelType `json:"channel_type"`
	Content        string            `json:"content"`
	MessageType    string            `json:"message_type"`
	LocalMessageID uint64            `json:"local_message_id"`
}

// sendEffect performs the bound effect for a queued message send or
// revoke task (spec §4.3 step 1).
func (s *SDK) sendEffect(ctx context.Context, item model.QueueItem) error {
	switch item.TaskType {
	case model.TaskSendMessage:
		var req sendMessageRequest
		if err := json.Unmarshal(item.Data, &req); err != nil {
			return &queue.EffectError{Reason: queue.ReasonUnknown, Err: err}
		}
		if err := s.router.Call(ctx, rpc.RouteMessageSend, req, nil); err != nil {
			return classifyRPCErr(err)
		}
		return nil

	case model.TaskRevoke:
		var req struct {
			MessageID uint64 `json:"message_id"`
		}
		if err := json.Unmarshal(item.Data, &req); err != nil {
			return &queue.EffectError{Reason: queue.ReasonUnknown, Err: err}
		}
		if err := s.router.Call(ctx, rpc.RouteMessageRevoke, req, nil); err != nil {
			return classifyRPCErr(err)
		}
		return nil

	default:
		return &queue.EffectError{Reason: queue.ReasonUnknown, Err: ierr.New(ierr.Generic, "unhandled task type "+string(item.TaskType))}
	}
}

// classifyRPCErr maps the error taxonomy (spec §7) onto the send
// pipeline's retry/failed classification (spec §4.3). InvalidParameter
// (caller-supplied data rejected) is never retried, matching spec §7's
// propagation policy verbatim.
func classifyRPCErr(err error) error {
	var e *ierr.Error
	switch {
	case errors.As(err, &e) && e.Kind == ierr.Timeout:
		return &queue.EffectError{Reason: queue.ReasonNetworkTimeout, Err: err}
	case errors.As(err, &e) && e.Kind == ierr.Network && e.Code >= 500:
		return &queue.EffectError{Reason: queue.ReasonServerError, HTTPStatus: e.Code, Err: err}
	case errors.As(err, &e) && e.Kind == ierr.Network:
		return &queue.EffectError{Reason: queue.ReasonNetworkUnavailable, Err: err}
	case errors.As(err, &e) && e.Kind == ierr.Authentication:
		return &queue.EffectError{Reason: queue.ReasonAuthFailure, Err: err}
	case errors.As(err, &e) && e.Kind == ierr.InvalidParameter:
		return &queue.EffectError{Reason: queue.ReasonForbidden, Err: err}
	case errors.As(err, &e) && e.Kind == ierr.Disconnected:
		return &queue.EffectError{Reason: queue.ReasonNetworkUnavailable, Err: err}
	default:
		return &queue.EffectError{Reason: queue.ReasonUnknown, Err: err}
	}
}

// SendMessage implements spec §4.3/§6 message/send: it is enqueued onto
// the durable Send Queue under the priority class derived from
// messageType (spec §4.3) and returns the client-generated
// local_message_id used for idempotent dedup of the echo (spec §3).
func (s *SDK) SendMessage(ctx context.Context, channelID uint64, channelType model.ChannelType, content string, messageType model.CommitType) (localMessageID uint64, err error) {
	if len(content) > maxMessageBytes {
		return 0, ierr.NewInvalidParameter("content", "message exceeds maximum size")
	}

	localMessageID = s.ids.NextUint64()
	req := sendMessageRequest{
		ChannelID: channelID, ChannelType: channelType, Content: content,
		MessageType: string(messageType), LocalMessageID: localMessageID,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return 0, ierr.Wrap(ierr.Generic, err, "encoding send_message task")
	}

	s.mu.RLock()
	sq := s.sendQueue
	s.mu.RUnlock()
	if sq == nil {
		return 0, ierr.New(ierr.Disconnected, "not authenticated")
	}

	err = sq.Enqueue(ctx, model.QueueItem{
		TaskType: model.TaskSendMessage,
		Data:     data,
		Priority: model.FromMessageType(messageType),
	})
	return localMessageID, err
}

// RevokeMessage implements spec §6 message/revoke, Critical priority
// (spec §4.3).
func (s *SDK) RevokeMessage(ctx context.Context, messageID uint64) error {
	data, err := json.Marshal(struct {
		MessageID uint64 `json:"message_id"`
	}{messageID})
	if err != nil {
		return ierr.Wrap(ierr.Generic, err, "encoding revoke task")
	}

	s.mu.RLock()
	sq := s.sendQueue
	s.mu.RUnlock()
	if sq == nil {
		return ierr.New(ierr.Disconnected, "not authenticated")
	}

	return sq.Enqueue(ctx, model.QueueItem{
		TaskType: model.TaskRevoke,
		Data:     data,
		Priority: model.FromOperationType(model.TaskRevoke),
	})
}

type fileCommitRequest struct {
	ChannelID      uint64            `json:"channel_id"`
	ChannelType    model.ChannelType `json:"channel_type"`
	FromUID        int64             `json:"from_uid"`
	LocalMessageID uint64            `json:"local_message_id"`
	MessageType    string            `json:"message_type"`
	RemoteURL      string            `json:"remote_url"`
	ThumbnailID    string            `json:"thumbnail_id,omitempty"`
	Timestamp      int64             `json:"timestamp"`
}

// enqueueFileCommit submits the send-commit for an uploaded file onto the
// message queue, kept separate from the File Send Queue's own persistence
// (spec §4.4: "must never block the message queue").
func (s *SDK) enqueueFileCommit(ctx context.Context, task model.FileTask, remoteURL string) error {
	data, err := json.Marshal(fileCommitRequest{
		ChannelID: task.ChannelID, ChannelType: task.ChannelType, FromUID: task.FromUID,
		LocalMessageID: task.LocalMessageID, MessageType: string(task.MessageType),
		RemoteURL: remoteURL, ThumbnailID: task.PreUploadedThumbID, Timestamp: task.Timestamp,
	})
	if err != nil {
		return ierr.Wrap(ierr.Generic, err, "encoding file commit task")
	}

	s.mu.RLock()
	sq := s.sendQueue
	s.mu.RUnlock()
	if sq == nil {
		return ierr.New(ierr.Disconnected, "not authenticated")
	}
	return sq.Enqueue(ctx, model.QueueItem{
		TaskType: model.TaskSendMessage,
		Data:     data,
		Priority: model.FromMessageType(task.MessageType),
	})
}

// SendFile implements spec §4.4's file-task ingestion, queued onto the
// File Send Queue's own independent worker pool and persistence.
func (s *SDK) SendFile(ctx context.Context, task model.FileTask) error {
	s.mu.RLock()
	fq := s.fileQueue
	s.mu.RUnlock()
	if fq == nil {
		return ierr.New(ierr.Disconnected, "not authenticated")
	}
	return fq.Enqueue(ctx, task)
}

// RunBootstrapSync implements spec §4.7's bootstrap sequence.
func (s *SDK) RunBootstrapSync(ctx context.Context) error {
	s.mu.RLock()
	orch, userID := s.orchestrator, s.userID
	s.mu.RUnlock()
	if orch == nil {
		return ierr.New(ierr.Disconnected, "not authenticated")
	}
	return orch.Run(ctx, userID)
}

// SyncChannel implements spec §4.5 sync_channel.
func (s *SDK) SyncChannel(ctx context.Context, channelID uint64, channelType model.ChannelType) sync.Status {
	s.mu.RLock()
	engine := s.syncEngine
	s.mu.RUnlock()
	if engine == nil {
		return sync.StatusFailed
	}
	return engine.SyncChannel(ctx, channelID, channelType)
}

// SyncEntities implements spec §4.6's single entrypoint.
func (s *SDK) SyncEntities(ctx context.Context, entityType model.EntityType, scope string) error {
	s.mu.RLock()
	engine := s.entityEngine
	s.mu.RUnlock()
	if engine == nil {
		return ierr.New(ierr.Disconnected, "not authenticated")
	}
	return engine.SyncEntities(ctx, entityType, scope)
}

// StartTyping implements spec §4.10/§8 scenario 5.
func (s *SDK) StartTyping(channelID uint64) bool {
	s.mu.RLock()
	typingMgr := s.typingMgr
	s.mu.RUnlock()
	if typingMgr == nil {
		return false
	}
	return typingMgr.StartTyping(channelID, time.Now())
}

// SubscribePresence implements spec §6 presence/subscribe.
func (s *SDK) SubscribePresence(ctx context.Context, userIDs []int64) error {
	s.mu.RLock()
	presenceMgr := s.presenceMgr
	s.mu.RUnlock()
	if presenceMgr == nil {
		return ierr.New(ierr.Disconnected, "not authenticated")
	}
	return presenceMgr.Subscribe(ctx, userIDs)
}

// GetPresence returns the cached presence entry for userID, if known.
func (s *SDK) GetPresence(userID int64) (presence.Entry, bool) {
	s.mu.RLock()
	presenceMgr := s.presenceMgr
	s.mu.RUnlock()
	if presenceMgr == nil {
		return presence.Entry{}, false
	}
	return presenceMgr.Get(userID)
}

// ObserveTimeline implements spec §4.9's Timeline observer.
func (s *SDK) ObserveTimeline(channelID uint64, cb observer.TimelineCallback) observer.Token {
	return s.hub.ObserveTimeline(channelID, cb)
}

// UnobserveTimeline is idempotent (spec §4.9, §8).
func (s *SDK) UnobserveTimeline(tok observer.Token) bool { return s.hub.UnobserveTimeline(tok) }

// ObserveChannelList implements spec §4.9's channel-list observer.
func (s *SDK) ObserveChannelList(cb observer.ChannelListCallback) observer.Token {
	return s.hub.ObserveChannelList(cb)
}

func (s *SDK) UnobserveChannelList(tok observer.Token) bool { return s.hub.UnobserveChannelList(tok) }

// OnAppForeground/OnAppBackground implement spec §8 scenario 6.
func (s *SDK) OnAppForeground(ctx context.Context) { s.lifecycle.OnAppForeground(ctx) }
func (s *SDK) OnAppBackground(ctx context.Context) { s.lifecycle.OnAppBackground(ctx) }

// Disconnect implements spec §4.1 disconnect(): it cancels every pending
// RPC, releases the Send Queue and File Send Queue workers, and closes
// the user's encrypted store.
func (s *SDK) Disconnect(reason string) error {
	s.mu.Lock()
	sq, fq, store := s.sendQueue, s.fileQueue, s.store
	s.sendQueue, s.fileQueue, s.store = nil, nil, nil
	s.mu.Unlock()

	if s.cancelPump != nil {
		s.cancelPump()
	}
	s.router.CancelAll()
	if sq != nil {
		sq.Shutdown()
	}
	if fq != nil {
		fq.Shutdown()
	}
	if err := s.conn.Disconnect(reason); err != nil {
		return err
	}
	if store != nil {
		return store.Close()
	}
	return nil
}
