// Package recorder manages audio recording sessions. While a session is
// active, captured chunks accumulate; stopping packages everything as a
// single payload handed out exactly once. Only one session may be active
// at a time.
package recorder

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	ErrSessionActive  = errors.New("a recording session is already active")
	ErrNoSession      = errors.New("no active recording session")
	ErrUnknownSession = errors.New("unknown recording session")
)

const defaultMIME = "audio/webm"

// Recorder owns at most one active session.
type Recorder struct {
	mu     sync.Mutex
	active *session
}

type session struct {
	id        string
	mime      string
	buf       bytes.Buffer
	startedAt time.Time
}

func New() *Recorder {
	return &Recorder{}
}

// Start opens a new session and returns its id. Fails while another
// session is active.
func (r *Recorder) Start(mime string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active != nil {
		return "", ErrSessionActive
	}
	if mime == "" {
		mime = defaultMIME
	}
	r.active = &session{
		id:        newSessionID(),
		mime:      mime,
		startedAt: time.Now(),
	}
	return r.active.id, nil
}

// Append adds a captured chunk to the active session.
func (r *Recorder) Append(id string, chunk []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return ErrNoSession
	}
	if r.active.id != id {
		return ErrUnknownSession
	}
	_, _ = r.active.buf.Write(chunk)
	return nil
}

// Stop closes the session and returns the accumulated payload with its
// MIME type. The session is gone afterwards; a second Stop fails.
func (r *Recorder) Stop(id string) ([]byte, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.active == nil {
		return nil, "", ErrNoSession
	}
	if r.active.id != id {
		return nil, "", ErrUnknownSession
	}
	payload := r.active.buf.Bytes()
	mime := r.active.mime
	r.active = nil
	return payload, mime, nil
}

// Recording reports whether a session is currently active.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

func newSessionID() string {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("rec_%d", time.Now().UnixNano())
	}
	return "rec_" + hex.EncodeToString(b)
}
