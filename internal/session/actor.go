package session

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/victornm/questiontime/internal/domain"
	"github.com/victornm/questiontime/internal/errors"
	"github.com/victornm/questiontime/internal/grader"
	"github.com/victornm/questiontime/internal/question"
	"github.com/victornm/questiontime/internal/telemetry"
)

const (
	msgPaused    = "Game is paused"
	msgCompleted = "Game is completed"
	msgCorrect   = "Correct!"
	msgIncorrect = "Incorrect answer, try again."
	msgFinished  = "Congratulations! You found the treasure."

	mailboxSize = 64
)

type submitReply struct {
	result domain.SubmitResult
	err    error
}

type submitRequest struct {
	answer string
	reply  chan submitReply
}

type gradeResult struct {
	req      submitRequest
	question domain.Question
	correct  bool
	err      error
}

// Actor runs one player's session. All state transitions happen on the
// actor's goroutine; the grading call is the only step that runs elsewhere and
// its result comes back through the graded channel.
type Actor struct {
	deps   *Service
	ticker Ticker
	tick   time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mailbox  chan func()
	graded   chan gradeResult
	exited   chan struct{}
	stopOnce sync.Once

	completed atomic.Bool
	// final is the terminal snapshot, served once the loop has exited.
	final atomic.Pointer[domain.SessionState]

	// Owned by the loop goroutine.
	state     domain.SessionState
	remaining time.Duration
	current   domain.Question
	grading   *submitRequest
	queue     []submitRequest
}

// loop serves the session until it is stopped or completed. A completed
// session releases its goroutine; later calls are answered from the final snapshot.
func (a *Actor) loop() {
	defer close(a.exited)
	defer a.cancel()
	defer a.ticker.Stop()

	tick := a.ticker.C()
	for !a.state.Completed {
		select {
		case <-a.ctx.Done():
			return
		case f := <-a.mailbox:
			f()
		case r := <-a.graded:
			a.finishSubmit(r)
			a.drain()
		case <-tick:
			a.onTick()
		}
	}

	a.rejectPending()
}

// rejectPending answers the submissions left behind by completion.
func (a *Actor) rejectPending() {
	completed := submitReply{result: domain.SubmitResult{Success: false, Message: msgCompleted}}
	if a.grading != nil {
		a.grading.reply <- completed
		a.grading = nil
	}
	for _, req := range a.queue {
		req.reply <- completed
	}
	a.queue = nil
}

func (a *Actor) send(ctx context.Context, f func()) error {
	select {
	case <-a.ctx.Done():
		return errStopped()
	default:
	}

	select {
	case a.mailbox <- f:
		return nil
	case <-a.ctx.Done():
		return errStopped()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Actor) onTick() {
	if a.state.Paused || a.state.Completed {
		return
	}

	a.remaining -= a.tick
	if a.remaining <= 0 {
		a.complete(domain.CompletionTimeout)
		return
	}

	a.state.TimeRemainingMs = remainingMs(a.remaining)
}

// remainingMs rounds up so a running session never reports zero time left.
func remainingMs(d time.Duration) int64 {
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}

// complete moves the session to its terminal state.
func (a *Actor) complete(reason domain.CompletionReason) {
	a.state.Completed = true
	a.remaining = 0
	a.state.TimeRemainingMs = 0
	final := a.state.Clone()
	a.final.Store(&final)
	a.completed.Store(true)
	a.ticker.Stop()

	slog.InfoContext(a.ctx, "session: completed",
		"player", a.state.Player,
		"session", a.state.SessionID,
		"reason", reason,
		"answered", a.state.QuestionsAnswered,
	)
	telemetry.SessionsCompleted.WithLabelValues(string(reason)).Inc()

	if a.deps.eb != nil {
		a.deps.eb.Publish(a.ctx, domain.EventSessionCompleted{
			State:  a.state.Clone(),
			Reason: reason,
		})
	}
}

func (a *Actor) pause() {
	if !a.state.Completed {
		a.state.Paused = true
	}
}

func (a *Actor) resume() {
	if !a.state.Completed {
		a.state.Paused = false
	}
}

func (a *Actor) submit(req submitRequest) {
	if a.grading != nil {
		a.queue = append(a.queue, req)
		return
	}

	if a.state.Paused {
		req.reply <- submitReply{result: domain.SubmitResult{Success: false, Message: msgPaused}}
		return
	}

	if a.state.Completed {
		req.reply <- submitReply{result: domain.SubmitResult{Success: false, Message: msgCompleted}}
		return
	}

	a.grading = &req
	q := a.current
	go func() {
		correct, err := a.deps.grader.Grade(a.ctx, q, req.answer)
		select {
		case a.graded <- gradeResult{req: req, question: q, correct: correct, err: err}:
		case <-a.ctx.Done():
		}
	}()
}

func (a *Actor) finishSubmit(r gradeResult) {
	a.grading = nil

	if r.err != nil {
		telemetry.GraderFailures.WithLabelValues(graderFailureKind(r.err)).Inc()
		slog.ErrorContext(a.ctx, "session: grade answer failed",
			"player", a.state.Player,
			"question", r.question.ID,
			"error", r.err,
		)
		r.req.reply <- submitReply{err: convertGraderError(r.err)}
		return
	}

	// The countdown may have ended while the answer was being graded.
	if a.state.Completed {
		r.req.reply <- submitReply{result: domain.SubmitResult{Success: false, Message: msgCompleted}}
		return
	}

	correct := r.correct
	a.state.LastAnswerCorrect = &correct
	telemetry.AnswersGraded.WithLabelValues(verdict(correct)).Inc()

	if !correct {
		r.req.reply <- submitReply{result: domain.SubmitResult{Success: false, Message: msgIncorrect}}
		return
	}

	a.deps.scores.record(a.state.Player, a.state.QuestionsAnswered+1)
	a.state.QuestionsAnswered++
	a.markAsked(r.question.ID)

	if a.state.QuestionsAnswered >= a.state.TotalQuestionsRequired {
		a.clearCurrent()
		a.complete(domain.CompletionAnswered)
		r.req.reply <- submitReply{result: domain.SubmitResult{Success: true, Message: msgFinished}}
		return
	}

	next, err := a.deps.pool.Select(a.state.AskedQuestionIDs)
	if err != nil {
		a.clearCurrent()
		a.complete(domain.CompletionExhausted)
		r.req.reply <- submitReply{err: convertPoolError(err)}
		return
	}

	a.setCurrent(next)
	r.req.reply <- submitReply{result: domain.SubmitResult{Success: true, Message: msgCorrect}}
}

// drain processes submissions queued behind a grading call, in arrival order.
func (a *Actor) drain() {
	for a.grading == nil && len(a.queue) > 0 {
		req := a.queue[0]
		a.queue = a.queue[1:]
		a.submit(req)
	}
}

func (a *Actor) clearCurrent() {
	a.current = domain.Question{}
	a.state.CurrentQuestionID = nil
	a.state.CurrentPrompt, a.state.CurrentHint = "", ""
}

func (a *Actor) setCurrent(q domain.Question) {
	id := q.ID
	a.current = q
	a.state.CurrentQuestionID = &id
	a.state.CurrentPrompt = q.Prompt
	a.state.CurrentHint = q.Hint
	a.markAsked(q.ID)
}

func (a *Actor) markAsked(id int) {
	for _, asked := range a.state.AskedQuestionIDs {
		if asked == id {
			return
		}
	}
	a.state.AskedQuestionIDs = append(a.state.AskedQuestionIDs, id)
}

// Pause stops the countdown. It is a no-op on a paused or completed session.
func (a *Actor) Pause(ctx context.Context) error {
	return a.call(ctx, a.pause)
}

// Resume restarts the countdown. It is a no-op on a running or completed session.
func (a *Actor) Resume(ctx context.Context) error {
	return a.call(ctx, a.resume)
}

// call runs f on the actor and waits until it has been applied. Once the
// session is completed and its loop has exited, f is skipped.
func (a *Actor) call(ctx context.Context, f func()) error {
	if a.final.Load() != nil {
		return nil
	}

	done := make(chan struct{})
	if err := a.send(ctx, func() { f(); close(done) }); err != nil {
		return a.frozen(err)
	}

	select {
	case <-done:
		return nil
	case <-a.exited:
		select {
		case <-done:
			return nil
		default:
		}
		return a.frozen(errStopped())
	case <-ctx.Done():
		return ctx.Err()
	}
}

// frozen turns err into success when the actor exited because the session completed.
func (a *Actor) frozen(err error) error {
	if a.final.Load() != nil {
		return nil
	}
	return err
}

// Submit grades answer against the current question. Submissions are served
// one at a time; a submission made while another is being graded waits for it.
func (a *Actor) Submit(ctx context.Context, answer string) (domain.SubmitResult, error) {
	completed := domain.SubmitResult{Success: false, Message: msgCompleted}
	if a.final.Load() != nil {
		return completed, nil
	}

	reply := make(chan submitReply, 1)
	req := submitRequest{answer: answer, reply: reply}
	if err := a.send(ctx, func() { a.submit(req) }); err != nil {
		if a.final.Load() != nil {
			return completed, nil
		}
		return domain.SubmitResult{}, err
	}

	select {
	case r := <-reply:
		return r.result, r.err
	case <-a.exited:
		select {
		case r := <-reply:
			return r.result, r.err
		default:
		}
		if a.final.Load() != nil {
			return completed, nil
		}
		return domain.SubmitResult{}, errStopped()
	case <-ctx.Done():
		return domain.SubmitResult{}, ctx.Err()
	}
}

// State returns a snapshot of the session.
func (a *Actor) State(ctx context.Context) (domain.SessionState, error) {
	var st domain.SessionState
	if err := a.call(ctx, func() { st = a.state.Clone() }); err != nil {
		return st, err
	}

	// The loop exited before serving the call; the session is completed.
	if final := a.final.Load(); final != nil && st.SessionID == "" {
		st = final.Clone()
	}
	return st, nil
}

// Completed reports whether the session reached its terminal state.
func (a *Actor) Completed() bool {
	return a.completed.Load()
}

// Stop terminates the actor goroutine and any grading in flight.
func (a *Actor) Stop() {
	a.stopOnce.Do(a.cancel)
	<-a.exited
}

func errStopped() error {
	return errors.New(errors.CodeUnavailable, errors.WithMessagef("session stopped"))
}

func convertGraderError(err error) error {
	switch {
	case stderrors.Is(err, grader.ErrProtocol):
		return errors.New(errors.CodeAborted,
			errors.WithMessagef("grader returned an unreadable verdict, please retry"),
			errors.WithCause(err),
		)
	default:
		return errors.New(errors.CodeUnavailable,
			errors.WithMessagef("grader unavailable, please retry"),
			errors.WithCause(err),
		)
	}
}

func convertPoolError(err error) error {
	if stderrors.Is(err, question.ErrExhausted) {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("no question left in the pool"),
			errors.WithCause(err),
		)
	}
	return errors.Internal(err)
}

func graderFailureKind(err error) string {
	if stderrors.Is(err, grader.ErrProtocol) {
		return "protocol"
	}
	return "unavailable"
}

func verdict(correct bool) string {
	if correct {
		return "correct"
	}
	return "incorrect"
}
