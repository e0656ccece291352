package supervisor

import (
	"context"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/modelagent"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/tracing"
	"github.com/nextlevelbuilder/goclaw/pkg/protocol"
)

// mergedItem is one entry on the merged channel spec.md §4.7 step 5
// describes: exactly one of modelEvent or permEvent is set.
type mergedItem struct {
	modelEvent *modelagent.Event
	permEvent  *store.PermissionRequest
}

// turnState accumulates what a turn's merged-item handler needs across
// iterations: the pending assistant message, tool-loop detection, and
// whether this is a brand-new session awaiting its first init event.
type turnState struct {
	isNewSession  bool
	firstUserText string
	start         time.Time
	loop          toolLoopState
	pendingBlocks []protocol.ContentBlock
}

// runTurn is the per-turn coroutine: it maintains the merged event channel
// (reader + forwarder tasks), processes each merged item, and tears down
// the live handle on every exit path (spec.md §4.7 steps 5-6, §5, §9).
func (s *Supervisor) runTurn(ctx context.Context, ag *store.Agent, req StartTurnRequest, lt *liveTurn, out chan protocol.Event) {
	turnCtx, span := tracing.StartTurn(ctx, lt.sessCtx.Key(), ag.ID)

	st := &turnState{
		isNewSession:  req.ResumeSessionID == "",
		firstUserText: req.Text,
		start:         time.Now(),
	}

	merged := make(chan mergedItem, 16)
	readerDone := make(chan struct{})
	go s.readModelEvents(turnCtx, lt.handle, merged, readerDone)
	go s.forwardPermissionEvents(turnCtx, lt.sessCtx, merged)

	var turnErr error
loop:
	for {
		select {
		case <-readerDone:
			// The reader has already queued every model event it read;
			// process those before ending the turn.
			for {
				select {
				case item := <-merged:
					done, err := s.handleMergedItem(turnCtx, ag, lt, st, item, out)
					if err != nil {
						turnErr = err
					}
					if done {
						break loop
					}
				default:
					break loop
				}
			}
		case item := <-merged:
			done, err := s.handleMergedItem(turnCtx, ag, lt, st, item, out)
			if err != nil {
				turnErr = err
			}
			if done {
				break loop
			}
		}
	}

	tracing.End(span, turnErr)

	s.mu.Lock()
	delete(s.live, lt.sessCtx.Key())
	s.mu.Unlock()
	lt.cancel()
	close(out)
}

// readModelEvents copies the model agent's own event stream into merged,
// closing readerDone once the model agent's channel closes or ctx is
// cancelled — the sentinel spec.md §4.7 step 5 describes.
func (s *Supervisor) readModelEvents(ctx context.Context, handle modelagent.Handle, merged chan<- mergedItem, readerDone chan<- struct{}) {
	defer close(readerDone)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-handle.Events():
			if !ok {
				return
			}
			select {
			case merged <- mergedItem{modelEvent: &ev}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// forwardPermissionEvents drains the broker's global queue: items matching
// this turn's current session key are pushed into merged, everything else
// is put back for another turn's forwarder to see (spec.md §4.7 step 5).
func (s *Supervisor) forwardPermissionEvents(ctx context.Context, sessCtx *sessionContext, merged chan<- mergedItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-s.broker.Events():
			if !ok {
				return
			}
			if req.SessionID != sessCtx.Key() {
				s.broker.PutBack(req)
				continue
			}
			select {
			case merged <- mergedItem{permEvent: req}:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handleMergedItem processes one merged item (spec.md §4.7 step 6),
// returning done=true once the turn has reached a terminal state
// (result, error, or ask_user_question).
func (s *Supervisor) handleMergedItem(ctx context.Context, ag *store.Agent, lt *liveTurn, st *turnState, item mergedItem, out chan<- protocol.Event) (bool, error) {
	if item.permEvent != nil {
		s.sendEvent(ctx, out, protocol.Event{
			Type:      protocol.EventPermissionRequest,
			SessionID: lt.sessCtx.Key(),
			Timestamp: time.Now().UTC(),
			Payload: protocol.PermissionRequestPayload{
				RequestID: item.permEvent.ID,
				ToolName:  item.permEvent.ToolName,
				ToolInput: item.permEvent.ToolInput,
				Reason:    item.permEvent.Reason,
			},
		})
		return false, nil
	}

	ev := item.modelEvent
	switch ev.Kind {
	case modelagent.EventInit:
		return s.handleInit(ctx, ag, lt, st, ev, out), nil

	case modelagent.EventAssistant:
		return s.handleAssistant(ctx, lt, st, ev, out)

	case modelagent.EventResult:
		s.handleResult(ctx, lt, st, ev, out)
		return true, ev.Err

	case modelagent.EventError:
		s.sendEvent(ctx, out, protocol.Event{
			Type:      protocol.EventError,
			SessionID: lt.sessCtx.Key(),
			Timestamp: time.Now().UTC(),
			Payload:   protocol.ErrorPayload{Message: ev.Err.Error()},
		})
		return true, ev.Err
	}
	return false, nil
}

// handleInit records the model-assigned session id into the shared
// context, re-keys the live-session handle map, and — on a brand-new
// session's first init — emits session_start and persists the session
// plus the first user message (spec.md §4.7 step 6).
func (s *Supervisor) handleInit(ctx context.Context, ag *store.Agent, lt *liveTurn, st *turnState, ev *modelagent.Event, out chan<- protocol.Event) bool {
	oldKey := lt.sessCtx.Key()
	lt.sessCtx.SetKey(ev.SessionID)

	s.mu.Lock()
	delete(s.live, oldKey)
	s.live[ev.SessionID] = lt
	s.mu.Unlock()

	if st.isNewSession {
		if _, err := s.repo.Sessions.Create(ctx, &store.Session{ID: ev.SessionID, AgentID: ag.ID, Key: oldKey}); err != nil {
			s.log.Error("persist new session failed", "session_id", ev.SessionID, "error", err)
		}
		if _, err := s.repo.Sessions.AppendMessage(ctx, &store.Message{SessionID: ev.SessionID, Role: "user", Content: st.firstUserText}); err != nil {
			s.log.Error("persist first user message failed", "session_id", ev.SessionID, "error", err)
		}
		s.sendEvent(ctx, out, protocol.Event{
			Type:      protocol.EventSessionStart,
			SessionID: ev.SessionID,
			Timestamp: time.Now().UTC(),
			Payload:   protocol.SessionStartPayload{SessionID: ev.SessionID, AgentID: ag.ID},
		})
	}
	return false
}

// askUserQuestionTool is the tool_use block name that terminates a turn
// awaiting continue_with_answer, per spec.md §4.7 step 6.
const askUserQuestionTool = "AskUserQuestion"

// handleAssistant accumulates content blocks into the pending assistant
// message, runs tool-loop detection over tool_use blocks, and forwards
// the event — unless a block is an AskUserQuestion, which persists the
// message so far and terminates the turn.
func (s *Supervisor) handleAssistant(ctx context.Context, lt *liveTurn, st *turnState, ev *modelagent.Event, out chan<- protocol.Event) (bool, error) {
	st.pendingBlocks = append(st.pendingBlocks, ev.Blocks...)

	for _, b := range ev.Blocks {
		if b.Kind == protocol.BlockToolUse {
			if b.ToolName == askUserQuestionTool {
				s.persistPendingAssistant(ctx, lt.sessCtx.Key(), st)
				question, _ := b.ToolInput["question"].(string)
				var choices []string
				if raw, ok := b.ToolInput["choices"].([]any); ok {
					for _, c := range raw {
						if cs, ok := c.(string); ok {
							choices = append(choices, cs)
						}
					}
				}
				s.sendEvent(ctx, out, protocol.Event{
					Type:      protocol.EventAskUserQuestion,
					SessionID: lt.sessCtx.Key(),
					Timestamp: time.Now().UTC(),
					Payload:   protocol.AskUserQuestionPayload{Question: question, Choices: choices},
				})
				return true, nil
			}

			hash := argsHash(b.ToolName, b.ToolInput)
			if level, msg := st.loop.detect(b.ToolName, hash); level == "critical" {
				s.log.Warn("tool loop critical, interrupting turn", "session_id", lt.sessCtx.Key(), "tool", b.ToolName)
				_ = lt.handle.Interrupt(ctx)
				s.persistPendingAssistant(ctx, lt.sessCtx.Key(), st)
				s.sendEvent(ctx, out, protocol.Event{
					Type:      protocol.EventError,
					SessionID: lt.sessCtx.Key(),
					Timestamp: time.Now().UTC(),
					Payload:   protocol.ErrorPayload{Message: msg},
				})
				return true, nil
			} else if level == "warning" {
				s.log.Warn("tool loop warning", "session_id", lt.sessCtx.Key(), "tool", b.ToolName, "message", msg)
			}
		}
	}

	s.sendEvent(ctx, out, protocol.Event{
		Type:      protocol.EventAssistant,
		SessionID: lt.sessCtx.Key(),
		Timestamp: time.Now().UTC(),
		Payload:   protocol.AssistantPayload{Blocks: ev.Blocks},
	})
	return false, nil
}

// handleResult persists the final assistant message and emits the
// terminal result event (spec.md §4.7 step 6).
func (s *Supervisor) handleResult(ctx context.Context, lt *liveTurn, st *turnState, ev *modelagent.Event, out chan<- protocol.Event) {
	s.persistPendingAssistant(ctx, lt.sessCtx.Key(), st)

	payload := protocol.ResultPayload{SessionID: lt.sessCtx.Key(), Duration: time.Since(st.start)}
	if ev.Result != nil {
		payload.Duration = ev.Result.Duration
		payload.CostUSD = ev.Result.CostUSD
		payload.NumTurns = ev.Result.NumTurns
	}
	s.sendEvent(ctx, out, protocol.Event{
		Type:      protocol.EventResult,
		SessionID: lt.sessCtx.Key(),
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	})
}

// persistPendingAssistant flushes the accumulated content blocks as one
// assistant message, the same buffered-then-flushed-at-turn-end pattern
// the teacher's pendingMsgs uses. A no-op if nothing has accumulated yet.
func (s *Supervisor) persistPendingAssistant(ctx context.Context, sessionID string, st *turnState) {
	if len(st.pendingBlocks) == 0 {
		return
	}
	var text string
	for _, b := range st.pendingBlocks {
		if b.Kind == protocol.BlockText {
			text += b.Text
		}
	}
	if _, err := s.repo.Sessions.AppendMessage(ctx, &store.Message{SessionID: sessionID, Role: "assistant", Content: text}); err != nil {
		s.log.Error("persist assistant message failed", "session_id", sessionID, "error", err)
	}
	st.pendingBlocks = nil
}

func (s *Supervisor) sendEvent(ctx context.Context, out chan<- protocol.Event, ev protocol.Event) {
	select {
	case out <- ev:
	case <-ctx.Done():
	}
}
