// Package dialogue drives the phased interview state machine.
package dialogue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"postflow/internal/catalog"
	"postflow/internal/classifier"
	"postflow/internal/generate"
	"postflow/internal/models"
	"postflow/internal/storage"
)

const (
	alreadyCompletedResponse = "Your post schedule has already been created. " +
		"Ask for your schedule to see it, or reset the conversation to start over."
	retryResponse = "I ran into trouble generating your posts. " +
		"Send me any message and I'll try again."
	countCorrection = "Please enter a whole number greater than 0 for how many posts you'd like (e.g., 5)."
)

// Reply is the outcome of handling one inbound message. Responses holds the
// bot messages in send order; a phase transition produces two of them.
type Reply struct {
	Responses []string
	Completed bool
	Phase     models.Phase
	Role      classifier.RoleLabel
	Schedule  []models.Post
}

// Engine is the dialogue state machine. It carries no per-session state of
// its own: every call loads the latest persisted session, operates, saves.
type Engine struct {
	store *storage.Store
	cls   *classifier.Classifier
	pipe  *generate.Pipeline
}

// NewEngine wires the engine to its collaborators.
func NewEngine(store *storage.Store, cls *classifier.Classifier, pipe *generate.Pipeline) *Engine {
	return &Engine{store: store, cls: cls, pipe: pipe}
}

// Handle processes one inbound message to completion. State and the
// history entries of the turn are committed together only after the
// response is computed; on error nothing is persisted and the same message
// can be retried safely.
func (e *Engine) Handle(ctx context.Context, userID int64, text string) (*Reply, error) {
	state, err := e.store.LoadSession(ctx, userID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		state = models.NewSessionState(userID)
	}

	reply, err := e.advance(ctx, state, text)
	if err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(reply.Responses)+1)
	entries = append(entries, models.HistoryEntry{UserID: userID, Message: text, Sender: models.SenderUser})
	for _, r := range reply.Responses {
		entries = append(entries, models.HistoryEntry{UserID: userID, Message: r, Sender: models.SenderBot})
	}
	if err := e.store.SaveTurn(ctx, state, entries); err != nil {
		return nil, err
	}
	return reply, nil
}

// advance runs the state machine over the loaded state. It mutates state in
// memory only; persistence is the caller's job.
func (e *Engine) advance(ctx context.Context, state *models.SessionState, text string) (*Reply, error) {
	if state.Completed {
		return &Reply{
			Responses: []string{alreadyCompletedResponse},
			Completed: true,
			Phase:     state.Phase,
		}, nil
	}

	questions := catalog.ForPhase(state.Phase)
	if questions == nil {
		panic(fmt.Sprintf("dialogue: unknown phase %q for user %d", state.Phase, state.UserID))
	}
	if state.QuestionIndex < 0 || state.QuestionIndex > len(questions) {
		panic(fmt.Sprintf("dialogue: question index %d out of bounds for phase %s", state.QuestionIndex, state.Phase))
	}

	// A persisted index at the end of the intake catalog is the retry point
	// of a failed generation run: attempt completion again without
	// consuming the message as an answer.
	if state.QuestionIndex == len(questions) {
		if state.Phase != models.PhaseIntake {
			panic(fmt.Sprintf("dialogue: phase %s persisted past its catalog for user %d", state.Phase, state.UserID))
		}
		return e.completeIntake(ctx, state)
	}

	// Blank input is a nudge: re-emit the current question, consume nothing.
	if strings.TrimSpace(text) == "" {
		return &Reply{
			Responses: []string{questions[state.QuestionIndex].Format()},
			Phase:     state.Phase,
		}, nil
	}

	question := questions[state.QuestionIndex]
	if question.Key == catalog.KeyPostCount {
		if n, err := strconv.Atoi(strings.TrimSpace(text)); err != nil || n <= 0 {
			return &Reply{
				Responses: []string{countCorrection},
				Phase:     state.Phase,
			}, nil
		}
	}

	state.Answers[question.Key] = text
	state.QuestionIndex++

	if state.QuestionIndex < len(questions) {
		return &Reply{
			Responses: []string{questions[state.QuestionIndex].Format()},
			Phase:     state.Phase,
		}, nil
	}

	switch state.Phase {
	case models.PhaseQualify:
		return e.transition(ctx, state), nil
	default:
		return e.completeIntake(ctx, state)
	}
}

// transition closes phase 1: classify, move to phase 2 and emit the
// transition message followed by the first intake question.
func (e *Engine) transition(ctx context.Context, state *models.SessionState) *Reply {
	summary := classifier.Summary(state.Answers)
	role := e.cls.Classify(ctx, summary, state.Answers)

	state.Phase = models.PhaseIntake
	state.QuestionIndex = 0

	transition := fmt.Sprintf(
		"Thanks for sharing your journey! Based on your experience you'd make a great %s. "+
			"Next, let's build the persona behind your posts.", role)
	return &Reply{
		Responses: []string{transition, catalog.Intake()[0].Format()},
		Phase:     models.PhaseIntake,
		Role:      role,
	}
}

// completeIntake closes phase 2 by running the generation pipeline. On
// pipeline failure the state stays at the end of the catalog so the next
// inbound message retries without re-asking anything.
func (e *Engine) completeIntake(ctx context.Context, state *models.SessionState) (*Reply, error) {
	persona, err := generate.BuildPersona(state.UserID, state.Answers)
	if err != nil {
		// Intake validation should have made this impossible.
		return nil, fmt.Errorf("build persona: %w", err)
	}

	posts, err := e.pipe.Run(ctx, persona)
	if err != nil {
		log.Printf("post generation failed for user %d: %v", state.UserID, err)
		return &Reply{
			Responses: []string{retryResponse},
			Phase:     state.Phase,
		}, nil
	}

	state.Completed = true
	done := fmt.Sprintf(
		"All set! I've written %d posts for you, spread over the next %d days. "+
			"Ask for your schedule anytime.", len(posts), persona.TimelineDays)
	return &Reply{
		Responses: []string{done},
		Completed: true,
		Phase:     state.Phase,
		Schedule:  posts,
	}, nil
}

// PhaseNumber maps the phase enum onto the numeric wire representation.
func PhaseNumber(phase models.Phase) int {
	if phase == models.PhaseIntake {
		return 2
	}
	return 1
}
