// Package pipeline executes one job run: quota, fetch, filter, script,
// audio, finalize. Every stage failure is recorded on the run and its
// podcast; Execute only returns an error when the failure itself could not
// be recorded.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"feedcast/internal/apperr"
	"feedcast/internal/db"
	"feedcast/internal/filter"
	"feedcast/internal/llm"
	"feedcast/internal/models"
	"feedcast/internal/storage"
	"feedcast/internal/usage"
)

const (
	DefaultHostVoice  = "alloy"
	DefaultGuestVoice = "onyx"
	DefaultHostName   = "Alex"
	DefaultGuestName  = "Sam"

	audioContentType = "audio/mpeg"
)

type Store interface {
	GetRun(ctx context.Context, id int64) (*models.JobRun, error)
	GetJob(ctx context.Context, id int64) (*models.Job, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	GetVoice(ctx context.Context, id int64) (*models.Voice, error)
	MarkRunRunning(ctx context.Context, id int64, startedAt time.Time) error
	FailRun(ctx context.Context, id int64, reason models.FailureReason, message string, finishedAt time.Time) error
	SetSelectedArticles(ctx context.Context, id int64, articles models.Articles) error
	SeenArticleURLs(ctx context.Context, jobID int64) ([]string, error)
	CreatePodcast(ctx context.Context, userID, jobID int64, title string) (*models.Podcast, error)
	AttachPodcast(ctx context.Context, runID, podcastID int64) error
	MarkPodcastProcessing(ctx context.Context, id int64, script models.Script) error
	FailPodcast(ctx context.Context, id int64, message string) error
	FinalizeRun(ctx context.Context, p db.FinalizeParams) error
}

type Quota interface {
	CheckUsageLimit(ctx context.Context, userID int64) (usage.Status, error)
	Month() string
}

type Fetcher interface {
	Fetch(ctx context.Context, sources models.Sources) ([]models.Article, error)
}

type ScriptGenerator interface {
	Generate(ctx context.Context, req llm.ScriptRequest) (models.Script, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

type DurationProber interface {
	AudioDuration(ctx context.Context, path string) float64
}

type Notifier interface {
	Published(ctx context.Context, user *models.User, job *models.Job, podcast *models.Podcast) error
}

// Deps wires the orchestrator. Notifier may be nil.
type Deps struct {
	Store       Store
	Quota       Quota
	Fetcher     Fetcher
	Generator   ScriptGenerator
	Synthesizer Synthesizer
	Prober      DurationProber
	Storage     storage.Storage
	Notifier    Notifier
	Now         func() time.Time
	TempDir     string
}

type Orchestrator struct {
	Deps
}

func New(deps Deps) *Orchestrator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Orchestrator{Deps: deps}
}

// Result is the outcome of a run as recorded in the database.
type Result struct {
	RunID     int64
	Status    models.RunStatus
	Reason    models.FailureReason
	PodcastID int64
	StartedAt time.Time
}

// stageError is a failure that ends the run with reason. message, when set,
// replaces the reason's fixed text and must not carry upstream output.
type stageError struct {
	reason  models.FailureReason
	message string
	err     error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

func fail(reason models.FailureReason, err error) error {
	return &stageError{reason: reason, err: err}
}

func failWith(reason models.FailureReason, message string) error {
	return &stageError{reason: reason, message: message, err: errors.New(message)}
}

func (e *stageError) userMessage() string {
	if e.message != "" {
		return e.message
	}
	return e.reason.Message()
}

type runState struct {
	run     *models.JobRun
	job     *models.Job
	user    *models.User
	podcast *models.Podcast
	key     string
	result  Result
}

// Execute runs the stages of a queued run in order.
func (o *Orchestrator) Execute(ctx context.Context, runID int64) (Result, error) {
	run, err := o.Store.GetRun(ctx, runID)
	if err != nil {
		return Result{RunID: runID}, err
	}
	if run.Status != models.RunQueued {
		return Result{RunID: runID, Status: run.Status}, fmt.Errorf("run %d is %s, not queued: %w", runID, run.Status, db.ErrInvalidTransition)
	}
	job, err := o.Store.GetJob(ctx, run.JobID)
	if err != nil {
		return Result{RunID: runID}, err
	}

	started := o.Now()
	if err := o.Store.MarkRunRunning(ctx, runID, started); err != nil {
		return Result{RunID: runID}, err
	}
	st := &runState{run: run, job: job, result: Result{RunID: runID, Status: models.RunRunning, StartedAt: started}}
	logger := log.WithFields(log.Fields{"run": runID, "job": job.ID, "user": job.UserID})
	logger.Info("Run started")

	if err := o.stages(ctx, st); err != nil {
		var se *stageError
		if !errors.As(err, &se) {
			se = &stageError{reason: models.ReasonInternal, err: err}
		}
		logger.WithField("reason", se.reason).Warnf("Run failed: %v", se.err)
		return o.recordFailure(ctx, st, se)
	}

	st.result.Status = models.RunSucceeded
	logger.WithField("podcast", st.podcast.ID).Info("Run succeeded")
	o.notify(ctx, st)
	return st.result, nil
}

func (o *Orchestrator) stages(ctx context.Context, st *runState) error {
	job := st.job

	status, err := o.Quota.CheckUsageLimit(ctx, job.UserID)
	if err != nil {
		return err
	}
	if !status.Allowed {
		return failWith(models.ReasonQuotaExceeded, fmt.Sprintf("Monthly limit of %d episodes reached", status.Limit))
	}
	st.user, err = o.Store.GetUserByID(ctx, job.UserID)
	if err != nil {
		return err
	}

	items, err := o.Fetcher.Fetch(ctx, job.Sources)
	if err != nil {
		return fail(models.ReasonFetchFailed, err)
	}

	seen := map[string]bool{}
	if job.FilterConfig.SkipSeen {
		urls, err := o.Store.SeenArticleURLs(ctx, job.ID)
		if err != nil {
			return err
		}
		for _, u := range urls {
			seen[u] = true
		}
	}
	selected := filter.Apply(items, job.FilterConfig, seen, o.Now())
	if err := o.Store.SetSelectedArticles(ctx, st.run.ID, selected); err != nil {
		return err
	}
	if len(selected) == 0 {
		return failWith(models.ReasonNoContent, fmt.Sprintf("Nothing to publish: %d items fetched, none passed the filters", len(items)))
	}

	st.podcast, err = o.Store.CreatePodcast(ctx, job.UserID, job.ID, fmt.Sprintf("%s %s", job.Name, o.Now().UTC().Format("2006-01-02")))
	if err != nil {
		return err
	}
	st.result.PodcastID = st.podcast.ID
	if err := o.Store.AttachPodcast(ctx, st.run.ID, st.podcast.ID); err != nil {
		return err
	}

	hostVoice, guestVoice, err := o.voices(ctx, job)
	if err != nil {
		return fail(models.ReasonGenerationFailed, err)
	}
	gen := job.GenerationConfig
	script, err := o.Generator.Generate(ctx, llm.ScriptRequest{
		JobName:   job.Name,
		HostName:  orDefault(gen.HostName, DefaultHostName),
		GuestName: orDefault(gen.GuestName, DefaultGuestName),
		Config:    gen,
		Articles:  selected,
	})
	if err != nil {
		return fail(models.ReasonGenerationFailed, err)
	}
	if script.Title == "" {
		script.Title = st.podcast.Title
	}
	if err := o.Store.MarkPodcastProcessing(ctx, st.podcast.ID, script); err != nil {
		return err
	}
	st.podcast.Title, st.podcast.Description, st.podcast.Script = script.Title, script.Description, script
	st.podcast.Status = models.PodcastProcessing

	audio, err := o.synthesize(ctx, script, hostVoice, guestVoice)
	if err != nil {
		return fail(models.ReasonSynthesisFailed, err)
	}
	duration := o.probe(ctx, audio)

	st.key = fmt.Sprintf("podcasts/%s.mp3", uuid.NewString())
	url, err := o.Storage.Put(ctx, st.key, audio, audioContentType)
	if err != nil {
		st.key = ""
		return fail(models.ReasonStorageFailed, err)
	}

	finished := o.Now()
	err = o.Store.FinalizeRun(ctx, db.FinalizeParams{
		RunID:      st.run.ID,
		PodcastID:  st.podcast.ID,
		UserID:     job.UserID,
		Month:      o.Quota.Month(),
		AudioURL:   url,
		AudioKey:   st.key,
		AudioSize:  int64(len(audio)),
		Duration:   duration,
		FinishedAt: finished,
	})
	if err != nil {
		return err
	}
	st.podcast.Status = models.PodcastDone
	st.podcast.AudioURL, st.podcast.AudioKey = url, st.key
	st.podcast.AudioSize, st.podcast.Duration = int64(len(audio)), duration
	return nil
}

// voices resolves the provider voice ids. Voice profiles must belong to the
// job's owner; a foreign profile is reported as missing.
func (o *Orchestrator) voices(ctx context.Context, job *models.Job) (string, string, error) {
	host, err := o.voice(ctx, job.UserID, job.GenerationConfig.HostVoiceID, DefaultHostVoice)
	if err != nil {
		return "", "", err
	}
	guest, err := o.voice(ctx, job.UserID, job.GenerationConfig.GuestVoiceID, DefaultGuestVoice)
	if err != nil {
		return "", "", err
	}
	return host, guest, nil
}

func (o *Orchestrator) voice(ctx context.Context, userID, voiceID int64, fallback string) (string, error) {
	if voiceID == 0 {
		return fallback, nil
	}
	v, err := o.Store.GetVoice(ctx, voiceID)
	if err != nil {
		return "", err
	}
	if v.UserID != userID {
		return "", apperr.NotFound("voices.notFound")
	}
	return v.ProviderVoiceID, nil
}

func (o *Orchestrator) synthesize(ctx context.Context, script models.Script, hostVoice, guestVoice string) ([]byte, error) {
	var audio []byte
	for i, line := range script.Lines {
		voice := hostVoice
		if line.Speaker == models.SpeakerGuest {
			voice = guestVoice
		}
		chunk, err := o.Synthesizer.Synthesize(ctx, line.Text, voice)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		audio = append(audio, chunk...)
	}
	if len(audio) == 0 {
		return nil, errors.New("no audio produced")
	}
	return audio, nil
}

// probe writes audio to a temp file for ffprobe. Duration is best effort.
func (o *Orchestrator) probe(ctx context.Context, audio []byte) int {
	if o.Prober == nil {
		return 0
	}
	f, err := os.CreateTemp(o.TempDir, "episode-*.mp3")
	if err != nil {
		log.Printf("Error creating temp file for duration probe: %v", err)
		return 0
	}
	defer os.Remove(f.Name())
	_, werr := f.Write(audio)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		log.Printf("Error writing temp file for duration probe: %v", errors.Join(werr, cerr))
		return 0
	}
	return int(o.Prober.AudioDuration(ctx, f.Name()) + 0.5)
}

// recordFailure marks the podcast (if any) and the run failed. Recording uses
// a fresh context so a cancelled run is still written down.
func (o *Orchestrator) recordFailure(ctx context.Context, st *runState, se *stageError) (Result, error) {
	recordCtx := context.WithoutCancel(ctx)
	msg := se.userMessage()

	// The uploaded object is only removed once its podcast is known to be
	// failed; an ambiguous finalize may have marked it done.
	podcastFailed := st.podcast == nil
	if st.podcast != nil && st.podcast.Status != models.PodcastDone {
		if err := o.Store.FailPodcast(recordCtx, st.podcast.ID, msg); err != nil {
			log.Printf("Error failing podcast %d: %v", st.podcast.ID, err)
		} else {
			podcastFailed = true
		}
	}
	if st.key != "" && podcastFailed {
		if err := o.Storage.Delete(recordCtx, st.key); err != nil {
			log.Printf("Error deleting orphaned audio %s: %v", st.key, err)
		}
	}

	st.result.Status = models.RunFailed
	st.result.Reason = se.reason
	if err := o.Store.FailRun(recordCtx, st.run.ID, se.reason, msg, o.Now()); err != nil {
		return st.result, fmt.Errorf("record failure of run %d: %w", st.run.ID, err)
	}
	return st.result, nil
}

func (o *Orchestrator) notify(ctx context.Context, st *runState) {
	if o.Notifier == nil {
		return
	}
	if err := o.Notifier.Published(ctx, st.user, st.job, st.podcast); err != nil {
		log.Printf("Error publishing notifications for podcast %d: %v", st.podcast.ID, err)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
