// Package sessionmanager implements SessionManager: the process-wide
// registry of SessionEngines, bounded concurrent creation via per-session
// mutexes, the async init task table, and the coordinated-reinit protocol
// that ties plugin socket pushes back to SessionEngine.Reinitialize (spec
// §4.12). Each process-wide map named in spec §3 ("Process-wide") is its
// own field guarded by its own lock, matching the "ambient global state"
// re-architecture note in spec §9: no single giant mutex.
package sessionmanager

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/taleweave/memoryd/pkg/apierr"
	"github.com/taleweave/memoryd/pkg/channel"
	"github.com/taleweave/memoryd/pkg/extraction"
	"github.com/taleweave/memoryd/pkg/sessionengine"
	"github.com/taleweave/memoryd/pkg/storage"
)

// EngineDefaults configures every SessionEngine the Manager creates.
type EngineDefaults struct {
	WindowCapacity int
	WindowDelay    int
	HotMemorySize  int
	Agent          *extraction.Agent // nil when no LLM configured
	UseAgent       bool
}

// CharacterSubmission is one `tavern.submit_character` / POST
// /tavern/submit_character payload (spec §6.1, §4.12 coordinated_reinit).
type CharacterSubmission struct {
	CharacterID   string
	CharacterName string
	CharacterCard sessionengine.CharacterCard
	WorldInfo     string
	Timestamp     time.Time
}

// Manager is SessionManager.
type Manager struct {
	sessionsMu sync.RWMutex
	sessions   map[string]*sessionengine.Engine

	creationMu    sync.Mutex
	creationLocks map[string]*sync.Mutex

	tasksMu sync.Mutex
	tasks   map[string]*Task

	pluginMu     sync.Mutex
	pluginData   map[string]CharacterSubmission // character_id -> latest submission
	pluginByName map[string]CharacterSubmission // character name -> latest submission

	pendingMu sync.Mutex
	pending   map[string]struct{} // session ids awaiting coordinated reinit

	tavernModeActive atomic.Bool

	lastTavernMu      sync.Mutex
	lastTavernSession string

	storage  *storage.Manager
	ch       *channel.Channel
	defaults EngineDefaults
}

// New builds a Manager. tavernMode sets the initial gate state.
func New(st *storage.Manager, ch *channel.Channel, defaults EngineDefaults, tavernMode bool) *Manager {
	m := &Manager{
		sessions:      make(map[string]*sessionengine.Engine),
		creationLocks: make(map[string]*sync.Mutex),
		tasks:         make(map[string]*Task),
		pluginData:    make(map[string]CharacterSubmission),
		pluginByName:  make(map[string]CharacterSubmission),
		pending:       make(map[string]struct{}),
		storage:       st,
		ch:            ch,
		defaults:      defaults,
	}
	m.tavernModeActive.Store(tavernMode)
	ch.SetDisconnectHandler(m.clearPending)
	return m
}

// TavernModeActive reads the process-wide gate. A single atomic flag so
// reads never block (spec §5 shared-resource policy).
func (m *Manager) TavernModeActive() bool {
	return m.tavernModeActive.Load()
}

// SetTavernModeActive flips the gate.
func (m *Manager) SetTavernModeActive(active bool) {
	m.tavernModeActive.Store(active)
}

// Get returns the engine for sessionID, if registered.
func (m *Manager) Get(sessionID string) (*sessionengine.Engine, bool) {
	m.sessionsMu.RLock()
	defer m.sessionsMu.RUnlock()
	e, ok := m.sessions[sessionID]
	return e, ok
}

// sessionLock returns the creation mutex for sessionID, allocating one if
// needed. The allocation itself is guarded by creationMu; the returned
// mutex is then used (outside creationMu) to serialize engine creation for
// that specific session — the double-checked-locking pattern spec §4.12
// describes.
func (m *Manager) sessionLock(sessionID string) *sync.Mutex {
	m.creationMu.Lock()
	defer m.creationMu.Unlock()
	lock, ok := m.creationLocks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		m.creationLocks[sessionID] = lock
	}
	return lock
}

// GetOrCreate returns the engine for sessionID, creating it with the given
// character mapping key if absent. enableAgent overrides the process-wide
// EngineDefaults.UseAgent for this session when non-nil — spec §6.1 POST
// /initialize's enable_agent field (nil means "use the server default").
// Uses double-checked creation: only the first caller for a given session
// id pays the creation cost; concurrent callers block on the per-session
// lock and then observe the already-published engine (spec §4.12).
func (m *Manager) GetOrCreate(sessionID, characterMappingKey string, isTest bool, enableAgent *bool) (*sessionengine.Engine, bool) {
	if e, ok := m.Get(sessionID); ok {
		return e, false
	}

	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	if e, ok := m.Get(sessionID); ok {
		return e, false
	}

	useAgent := m.defaults.UseAgent
	if enableAgent != nil {
		useAgent = *enableAgent
	}

	e := sessionengine.New(sessionengine.Config{
		ID:                  sessionID,
		CharacterMappingKey: characterMappingKey,
		IsTest:              isTest,
		HotMemorySize:       m.defaults.HotMemorySize,
		WindowCapacity:      m.defaults.WindowCapacity,
		WindowDelay:         m.defaults.WindowDelay,
		Agent:               m.defaults.Agent,
		UseAgent:            useAgent,
	})
	e.SetPersistHook(func() { m.persist(e) })

	m.sessionsMu.Lock()
	m.sessions[sessionID] = e
	m.sessionsMu.Unlock()

	return e, true
}

// Initialize runs the bootstrap synchronously (spec §6.1 POST
// /initialize). If the session already exists with a populated graph it
// returns the current stats without re-bootstrapping — idempotence law
// (spec §8).
func (m *Manager) Initialize(ctx context.Context, sessionID, characterMappingKey string, card sessionengine.CharacterCard, worldInfo string, isTest bool, enableAgent *bool) (*sessionengine.Engine, sessionengine.BootstrapStats, bool) {
	e, created := m.GetOrCreate(sessionID, characterMappingKey, isTest, enableAgent)
	if !created && !e.IsEmpty() {
		return e, sessionengine.BootstrapStats{
			NodesAdded:    0,
			EdgesAdded:    0,
			Method:        "cached",
			CharacterName: e.LastCharacterName(),
		}, false
	}

	if _, err := m.storage.RegisterCharacter(characterMappingKey, card.Name, sessionID, isTest); err != nil {
		slog.Error("session manager: register character failed", "session_id", sessionID, "error", err)
	}

	stats := e.InitializeFromCharacter(ctx, card, worldInfo)
	m.persist(e)
	return e, stats, true
}

// InitializeAsync enqueues the bootstrap on a worker goroutine and returns
// a task id immediately (spec §4.12, §6.1 POST /initialize_async).
func (m *Manager) InitializeAsync(sessionID, characterMappingKey string, card sessionengine.CharacterCard, worldInfo string, isTest bool, enableAgent *bool) string {
	taskID := uuid.NewString()
	task := newTask(taskID)

	m.tasksMu.Lock()
	m.tasks[taskID] = task
	m.tasksMu.Unlock()

	go func() {
		ctx := context.Background()
		task.Progress(0.1, "allocating session")

		e, created := m.GetOrCreate(sessionID, characterMappingKey, isTest, enableAgent)
		task.Progress(0.2, "registering character")

		if created || e.IsEmpty() {
			if _, err := m.storage.RegisterCharacter(characterMappingKey, card.Name, sessionID, isTest); err != nil {
				task.Fail(fmt.Sprintf("register character: %v", err))
				return
			}

			task.Progress(0.6, "running bootstrap")
			stats := e.InitializeFromCharacter(ctx, card, worldInfo)

			task.Progress(0.8, "persisting graph")
			m.persist(e)

			task.Progress(1.0, "bootstrap complete")
			task.Complete(sessionID, stats)
		} else {
			task.Progress(1.0, "session already initialized")
			task.Complete(sessionID, sessionengine.BootstrapStats{Method: "cached", CharacterName: e.LastCharacterName()})
		}

		m.ch.Send(sessionID, channel.EventInitializationComplete, map[string]any{"session_id": sessionID, "task_id": taskID})
	}()

	return taskID
}

// GetTask returns the snapshot for taskID.
func (m *Manager) GetTask(taskID string) (TaskSnapshot, bool) {
	m.tasksMu.Lock()
	task, ok := m.tasks[taskID]
	m.tasksMu.Unlock()
	if !ok {
		return TaskSnapshot{}, false
	}
	return task.Snapshot(), true
}

// persist saves the session's graph and entities mirror, logging (not
// failing the caller) on write error — spec §4.14 "KnowledgeGraph write
// failures surface as StorageError; in-memory state remains authoritative
// and retried on next persist."
func (m *Manager) persist(e *sessionengine.Engine) {
	graphPath := m.storage.GetGraphPath(e.ID, e.IsTest)
	mirrorPath := m.storage.GetEntitiesMirrorPath(e.ID, e.IsTest)
	if err := e.Persist(graphPath, mirrorPath); err != nil {
		slog.Error("session manager: persist failed", "session_id", e.ID, "error", err)
	}
}

// CoordinatedReinit requests that the plugin bound to sessionID resubmit
// the character card, then reinitializes on receipt (spec §4.12). Returns
// apierr.Conflict if no socket is currently bound.
func (m *Manager) CoordinatedReinit(sessionID string) error {
	if !m.ch.IsBound(sessionID) {
		return apierr.Conflict(fmt.Sprintf("no active plugin connection for session %s", sessionID))
	}

	m.pendingMu.Lock()
	m.pending[sessionID] = struct{}{}
	m.pendingMu.Unlock()

	m.ch.Send(sessionID, channel.EventRequestCharacterSubmission, map[string]any{"session_id": sessionID})
	return nil
}

// SubmitCharacterData records sub and, if it matches a pending coordinated
// reinit (by character id, by name, or by session-id prefix), removes the
// match from the pending set and dispatches SessionEngine.Reinitialize on a
// worker, pushing auto_reinitialization_complete on completion (spec
// §4.12). Reinitialize falls back to the minimal bootstrap and never fails,
// so auto_reinitialization_failed is not pushed from here.
func (m *Manager) SubmitCharacterData(sub CharacterSubmission) {
	m.pluginMu.Lock()
	if sub.CharacterID != "" {
		m.pluginData[sub.CharacterID] = sub
	}
	if sub.CharacterName != "" {
		m.pluginByName[sub.CharacterName] = sub
	}
	m.pluginMu.Unlock()

	sessionID, ok := m.matchPending(sub)
	if !ok {
		return
	}

	m.pendingMu.Lock()
	delete(m.pending, sessionID)
	m.pendingMu.Unlock()

	e, ok := m.Get(sessionID)
	if !ok {
		return
	}

	go func() {
		stats := e.Reinitialize(context.Background(), sub.CharacterCard, sub.WorldInfo)
		m.persist(e)
		m.ch.Send(sessionID, channel.EventAutoReinitComplete, map[string]any{
			"session_id":     sessionID,
			"character_name": stats.CharacterName,
			"nodes_created":  stats.NodesAdded,
			"edges_created":  stats.EdgesAdded,
		})
	}()
}

// matchPending finds the pending session id that sub's submission
// corresponds to: by matching a registered session's character mapping key
// against CharacterID, by matching LastCharacterName against
// CharacterName, or by a session-id prefix match against CharacterID.
func (m *Manager) matchPending(sub CharacterSubmission) (string, bool) {
	m.pendingMu.Lock()
	candidates := make([]string, 0, len(m.pending))
	for id := range m.pending {
		candidates = append(candidates, id)
	}
	m.pendingMu.Unlock()

	for _, sessionID := range candidates {
		e, ok := m.Get(sessionID)
		if !ok {
			continue
		}
		if sub.CharacterID != "" && e.CharacterMappingKey == sub.CharacterID {
			return sessionID, true
		}
		if sub.CharacterName != "" && e.LastCharacterName() == sub.CharacterName {
			return sessionID, true
		}
		if sub.CharacterID != "" && strings.HasPrefix(sessionID, sub.CharacterID) {
			return sessionID, true
		}
	}
	return "", false
}

// clearPending drops sessionID from the pending coordinated-reinit set —
// called on socket disconnect (spec §5 "Coordinated reinit liveness").
func (m *Manager) clearPending(sessionID string) {
	m.pendingMu.Lock()
	delete(m.pending, sessionID)
	m.pendingMu.Unlock()
}

// RecordTavernSession marks sessionID as the most recent session to bind a
// plugin socket (spec §6.1 GET /tavern/current_session "the most recent
// tavern_* session").
func (m *Manager) RecordTavernSession(sessionID string) {
	m.lastTavernMu.Lock()
	m.lastTavernSession = sessionID
	m.lastTavernMu.Unlock()
}

// LastTavernSession returns the most recently bound plugin session id, if any.
func (m *Manager) LastTavernSession() (string, bool) {
	m.lastTavernMu.Lock()
	defer m.lastTavernMu.Unlock()
	return m.lastTavernSession, m.lastTavernSession != ""
}

// ListCharacters lists every registered character mapping key.
func (m *Manager) ListCharacters() []string {
	return m.storage.ListCharacters()
}

// IsPendingReinit reports whether sessionID is awaiting a coordinated
// reinit submission.
func (m *Manager) IsPendingReinit(sessionID string) bool {
	m.pendingMu.Lock()
	defer m.pendingMu.Unlock()
	_, ok := m.pending[sessionID]
	return ok
}

// resetMaps closes every bound socket and drops every process-wide map.
// Shared by FullReset and QuickReset, which differ only in whether storage
// is wiped too (spec §4.12).
func (m *Manager) resetMaps() (sessionsDropped, tasksDropped int) {
	m.ch.CloseAll()

	m.sessionsMu.Lock()
	sessionsDropped = len(m.sessions)
	m.sessions = make(map[string]*sessionengine.Engine)
	m.sessionsMu.Unlock()

	m.tasksMu.Lock()
	tasksDropped = len(m.tasks)
	m.tasks = make(map[string]*Task)
	m.tasksMu.Unlock()

	m.pluginMu.Lock()
	m.pluginData = make(map[string]CharacterSubmission)
	m.pluginByName = make(map[string]CharacterSubmission)
	m.pluginMu.Unlock()

	m.pendingMu.Lock()
	m.pending = make(map[string]struct{})
	m.pendingMu.Unlock()

	m.creationMu.Lock()
	m.creationLocks = make(map[string]*sync.Mutex)
	m.creationMu.Unlock()

	m.lastTavernMu.Lock()
	m.lastTavernSession = ""
	m.lastTavernMu.Unlock()

	return sessionsDropped, tasksDropped
}

// FullReset closes every bound socket, drops every process-wide map, and
// wipes the on-disk storage layout (spec §4.12, §6.1 POST /system/full_reset).
// Returns counts of what was dropped. A storage wipe failure is logged but
// does not prevent the in-memory maps from being dropped.
func (m *Manager) FullReset() (sessionsDropped, tasksDropped int) {
	sessionsDropped, tasksDropped = m.resetMaps()
	if err := m.storage.Reinitialize(); err != nil {
		slog.Error("sessionmanager: full_reset storage reinitialize failed", "error", err)
	}
	return sessionsDropped, tasksDropped
}

// QuickReset drops the same maps as FullReset but does not touch storage
// (spec §4.12: "same minus storage reinit").
func (m *Manager) QuickReset() (sessionsDropped, tasksDropped int) {
	return m.resetMaps()
}
