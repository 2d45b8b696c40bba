package web

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/lexicard/internal/domain"
	"github.com/conorfennell/lexicard/internal/session"
)

type sessionRequest struct {
	Size int    `json:"size" validate:"omitempty,min=1,max=500"`
	Mode string `json:"mode" validate:"omitempty,oneof=term-to-translation translation-to-term phonetic listen"`
}

type gradeRequest struct {
	Grade   domain.Grade `json:"grade" validate:"required"`
	Latency float64      `json:"latency" validate:"min=0,max=86400"`
}

// promptView is the current item as shown to the learner. The card is only
// included once the answer has been revealed.
type promptView struct {
	CardID string          `json:"cardId"`
	Mode   domain.QuizMode `json:"mode"`
	Prompt string          `json:"prompt"`
	New    bool            `json:"new"`
	Card   *domain.Card    `json:"card,omitempty"`
}

type sessionView struct {
	ID        string      `json:"id"`
	Remaining int         `json:"remaining"`
	Graded    int         `json:"graded"`
	Revealed  bool        `json:"revealed"`
	Current   *promptView `json:"current,omitempty"`
}

type gradeView struct {
	Result  session.Result `json:"result"`
	Session sessionView    `json:"session"`
}

// handlePostSession composes a new practice session.
func (s *Server) handlePostSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if r.ContentLength != 0 && !s.decode(w, r, &req) {
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		size := req.Size
		if size == 0 {
			size = s.SessionSize
		}
		mode := domain.QuizMode(req.Mode)
		if mode == "" {
			mode = s.Mode
		}

		items, err := s.Composer.Compose(r.Context(), size, mode)
		if err != nil {
			s.Logger.Error("Error composing session", "error", err)
			writeError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		sess := session.New(uuid.NewString(), items, s.DB, s.Clock)
		if !sess.Done() {
			s.register(sess)
		}
		s.Logger.Info("Session started", "session", sess.ID, "items", len(items))
		writeJSON(w, http.StatusCreated, viewOf(sess))
	}
}

func (s *Server) handleGetSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.lookup(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, viewOf(sess))
	}
}

func (s *Server) handleReveal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.lookup(w, r)
		if !ok {
			return
		}
		if err := sess.Reveal(); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, viewOf(sess))
	}
}

// handleGrade grades the current item. Grading before reveal is a 409 and
// is not recorded. A finished session is dropped from the registry.
func (s *Server) handleGrade() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.lookup(w, r)
		if !ok {
			return
		}
		var req gradeRequest
		if !s.decode(w, r, &req) {
			return
		}
		if err := s.validate.Struct(req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		res, err := sess.Grade(r.Context(), req.Grade, req.Latency)
		switch {
		case errors.Is(err, session.ErrNotRevealed), errors.Is(err, session.ErrSessionDone):
			writeError(w, http.StatusConflict, err.Error())
			return
		case errors.Is(err, domain.ErrInvalidGrade):
			writeError(w, http.StatusBadRequest, err.Error())
			return
		case err != nil:
			s.Logger.Error("Error recording review", "session", sess.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to record review")
			return
		}

		if sess.Done() {
			s.drop(sess.ID)
			s.Logger.Info("Session finished", "session", sess.ID, "graded", sess.Graded())
		}
		writeJSON(w, http.StatusOK, gradeView{Result: res, Session: viewOf(sess)})
	}
}

// handleDeleteSession abandons a session. Attempts already graded stay
// recorded.
func (s *Server) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.drop(r.PathValue("id")) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// liveSession is a registered session and when it was last used.
type liveSession struct {
	sess     *session.Session
	lastUsed time.Time
}

// register adds sess to the registry after dropping idle sessions. When the
// registry is still full the least recently used session makes room.
func (s *Server) register(sess *session.Session) {
	now := s.Clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, live := range s.sessions {
		if now.Sub(live.lastUsed) >= s.SessionIdle {
			delete(s.sessions, id)
			s.Logger.Info("Session expired", "session", id)
		}
	}
	for len(s.sessions) >= s.MaxSessions {
		var oldest string
		for id, live := range s.sessions {
			if oldest == "" || live.lastUsed.Before(s.sessions[oldest].lastUsed) {
				oldest = id
			}
		}
		s.Logger.Info("Session evicted", "session", oldest)
		delete(s.sessions, oldest)
	}
	s.sessions[sess.ID] = &liveSession{sess: sess, lastUsed: now}
}

// lookup returns the session named in the path. An idle session is dropped
// and reported as not found.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := r.PathValue("id")
	now := s.Clock.Now()

	s.mu.Lock()
	live, ok := s.sessions[id]
	if ok && now.Sub(live.lastUsed) >= s.SessionIdle {
		delete(s.sessions, id)
		ok = false
	}
	if ok {
		live.lastUsed = now
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return live.sess, true
}

func (s *Server) drop(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

func viewOf(sess *session.Session) sessionView {
	v := sessionView{
		ID:        sess.ID,
		Remaining: sess.Remaining(),
		Graded:    sess.Graded(),
		Revealed:  sess.Revealed(),
	}
	item, ok := sess.Current()
	if !ok {
		return v
	}
	p := &promptView{CardID: item.Card.ID, Mode: item.Mode, Prompt: item.Prompt(), New: item.State.IsNew()}
	if v.Revealed {
		card := item.Card
		p.Card = &card
	}
	v.Current = p
	return v
}
