package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feedcast/internal/apperr"
	"feedcast/internal/db"
	"feedcast/internal/llm"
	"feedcast/internal/models"
	"feedcast/internal/test"
	"feedcast/internal/upstream"
	"feedcast/internal/usage"
)

var now = time.Date(2026, 10, 14, 7, 0, 0, 0, time.UTC)

const month = "2026-10"

type fakeFetcher struct {
	items []models.Article
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, sources models.Sources) ([]models.Article, error) {
	f.calls++
	return f.items, f.err
}

type fakeGenerator struct {
	script models.Script
	err    error
	req    llm.ScriptRequest
	calls  int
}

func (f *fakeGenerator) Generate(ctx context.Context, req llm.ScriptRequest) (models.Script, error) {
	f.calls++
	f.req = req
	return f.script, f.err
}

type fakeSynth struct {
	voices []string
	err    error
}

func (f *fakeSynth) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.voices = append(f.voices, voice)
	return []byte(text), nil
}

type fakeProber struct{ seconds float64 }

func (f fakeProber) AudioDuration(ctx context.Context, path string) float64 { return f.seconds }

type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (m *memStorage) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (m *memStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

type fakeNotifier struct {
	published []int64
	err       error
}

func (f *fakeNotifier) Published(ctx context.Context, user *models.User, job *models.Job, podcast *models.Podcast) error {
	f.published = append(f.published, podcast.ID)
	return f.err
}

type harness struct {
	store    *test.MemStore
	fetcher  *fakeFetcher
	gen      *fakeGenerator
	synth    *fakeSynth
	storage  *memStorage
	notifier *fakeNotifier
	orch     *Orchestrator
	user     *models.User
	job      *models.Job
}

func articles(n int) []models.Article {
	var out []models.Article
	for i := 0; i < n; i++ {
		published := now.Add(-time.Duration(i+1) * time.Hour)
		out = append(out, models.Article{
			Title:       fmt.Sprintf("Story %d", i),
			URL:         fmt.Sprintf("https://news.example.com/%d", i),
			Content:     "content",
			PublishedAt: &published,
		})
	}
	return out
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := test.NewMemStore()
	h := &harness{
		store:   store,
		fetcher: &fakeFetcher{items: articles(3)},
		gen: &fakeGenerator{script: models.Script{
			Title: "Today in news",
			Lines: []models.DialogueLine{
				{Speaker: models.SpeakerHost, Text: "Hello."},
				{Speaker: models.SpeakerGuest, Text: "Hi!"},
			},
		}},
		synth:    &fakeSynth{},
		storage:  &memStorage{objects: map[string][]byte{}},
		notifier: &fakeNotifier{},
	}
	h.user = store.AddUser(&models.User{Plan: models.PlanFree})
	h.job = store.AddJob(&models.Job{
		UserID:  h.user.ID,
		Name:    "Daily",
		Sources: models.Sources{{Type: models.SourceRSS, URL: "https://news.example.com/feed"}},
	})

	clock := func() time.Time { return now }
	h.orch = New(Deps{
		Store:       store,
		Quota:       usage.NewLedger(store, nil, usage.WithClock(clock)),
		Fetcher:     h.fetcher,
		Generator:   h.gen,
		Synthesizer: h.synth,
		Prober:      fakeProber{seconds: 61.6},
		Storage:     h.storage,
		Notifier:    h.notifier,
		Now:         clock,
		TempDir:     t.TempDir(),
	})
	return h
}

func (h *harness) queue(t *testing.T) int64 {
	t.Helper()
	run, err := h.store.CreateQueuedRun(context.Background(), h.job.ID)
	require.NoError(t, err)
	return run.ID
}

func TestExecuteSuccess(t *testing.T) {
	h := newHarness(t)
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, res.Status)
	assert.Equal(t, now, res.StartedAt)

	run := h.store.Run(runID)
	assert.Equal(t, models.RunSucceeded, run.Status)
	require.NotNil(t, run.PodcastID)
	assert.Equal(t, res.PodcastID, *run.PodcastID)
	assert.Len(t, run.SelectedArticles, 3)

	podcast := h.store.Podcast(res.PodcastID)
	assert.Equal(t, models.PodcastDone, podcast.Status)
	assert.Equal(t, "Today in news", podcast.Title)
	assert.Equal(t, 62, podcast.Duration)
	assert.Equal(t, int64(len("Hello.Hi!")), podcast.AudioSize)
	assert.True(t, strings.HasPrefix(podcast.AudioURL, "https://cdn.example.com/podcasts/"))
	assert.Len(t, h.storage.objects, 1)

	assert.Equal(t, 1, h.store.UsageCount(h.user.ID, month))
	assert.Equal(t, 1, h.store.Increments)
	assert.Equal(t, []string{DefaultHostVoice, DefaultGuestVoice}, h.synth.voices)
	assert.Equal(t, DefaultHostName, h.gen.req.HostName)
	assert.Equal(t, []int64{res.PodcastID}, h.notifier.published)
}

func TestExecuteQuotaExceededStopsBeforeFetch(t *testing.T) {
	h := newHarness(t)
	h.store.SetUsage(h.user.ID, month, 5)
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, res.Status)
	assert.Equal(t, models.ReasonQuotaExceeded, res.Reason)

	assert.Equal(t, 0, h.fetcher.calls)
	assert.Equal(t, 0, h.gen.calls)
	assert.Empty(t, h.store.Podcasts)
	assert.Equal(t, string(models.ReasonQuotaExceeded), h.store.Run(runID).FailureReason)
	assert.Equal(t, 5, h.store.UsageCount(h.user.ID, month))
}

func TestExecuteFetchFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = apperr.Upstream("jobs.fetchFailed", errors.New("dns"))
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonFetchFailed, res.Reason)
	assert.Empty(t, h.store.Podcasts)
}

func TestExecuteNothingToPublish(t *testing.T) {
	h := newHarness(t)
	h.fetcher.items = articles(10)
	h.job.FilterConfig = models.FilterConfig{Keywords: []string{"no-such-topic"}}
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunFailed, res.Status)
	assert.Equal(t, models.ReasonNoContent, res.Reason)

	run := h.store.Run(runID)
	assert.NotNil(t, run.SelectedArticles)
	assert.Empty(t, run.SelectedArticles)
	assert.Contains(t, run.ErrorMessage, "Nothing to publish")
	assert.Empty(t, h.store.Podcasts)
	assert.Equal(t, 0, h.gen.calls)
}

func TestExecuteGenerationFailure(t *testing.T) {
	h := newHarness(t)
	h.gen.err = apperr.Upstream(llm.KeyGenerationFailed, errors.New("503"))
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonGenerationFailed, res.Reason)

	podcast := h.store.Podcast(res.PodcastID)
	assert.Equal(t, models.PodcastFailed, podcast.Status)
	assert.NotEmpty(t, podcast.ErrorMessage)
	assert.Equal(t, 0, h.store.Increments)
	assert.Empty(t, h.notifier.published)
}

func TestExecuteForeignVoiceIsRejected(t *testing.T) {
	h := newHarness(t)
	other := h.store.AddUser(&models.User{})
	voice := h.store.AddVoice(&models.Voice{UserID: other.ID, ProviderVoiceID: "shimmer"})
	h.job.GenerationConfig.HostVoiceID = voice.ID
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonGenerationFailed, res.Reason)
	assert.Equal(t, 0, h.gen.calls)
}

func TestExecuteOwnVoiceIsUsed(t *testing.T) {
	h := newHarness(t)
	voice := h.store.AddVoice(&models.Voice{UserID: h.user.ID, ProviderVoiceID: "shimmer"})
	h.job.GenerationConfig.GuestVoiceID = voice.ID
	runID := h.queue(t)

	_, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultHostVoice, "shimmer"}, h.synth.voices)
}

func TestExecuteSynthesisFailure(t *testing.T) {
	h := newHarness(t)
	h.synth.err = errors.New("tts down")
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonSynthesisFailed, res.Reason)
	assert.Equal(t, models.PodcastFailed, h.store.Podcast(res.PodcastID).Status)
	assert.Empty(t, h.storage.objects)
}

func TestExecuteStorageFailure(t *testing.T) {
	h := newHarness(t)
	h.storage.err = errors.New("bucket missing")
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonStorageFailed, res.Reason)
	assert.Equal(t, 0, h.store.Increments)
}

func TestExecuteFinalizeFailureRemovesAudio(t *testing.T) {
	h := newHarness(t)
	h.store.FinalizeErr = errors.New("connection reset")
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonInternal, res.Reason)
	assert.Equal(t, models.PodcastFailed, h.store.Podcast(res.PodcastID).Status)
	assert.Empty(t, h.storage.objects)
	assert.Equal(t, 0, h.store.Increments)
}

func TestExecuteFailureMessagesHideErrorDetails(t *testing.T) {
	providerBody := `{"error":{"message":"org-7f3a over quota","type":"insufficient_quota"}}`
	dbErr := `pq: duplicate key value violates unique constraint "podcasts_pkey"`

	t.Run("provider response", func(t *testing.T) {
		h := newHarness(t)
		h.gen.err = apperr.Upstream(llm.KeyGenerationFailed, fmt.Errorf("llm generate: %w", &upstream.StatusError{StatusCode: 500, Body: providerBody}))
		runID := h.queue(t)

		res, err := h.orch.Execute(context.Background(), runID)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonGenerationFailed, res.Reason)

		podcast := h.store.Podcast(res.PodcastID)
		run := h.store.Run(runID)
		assert.Equal(t, models.ReasonGenerationFailed.Message(), podcast.ErrorMessage)
		assert.Equal(t, models.ReasonGenerationFailed.Message(), run.ErrorMessage)
		assert.NotContains(t, podcast.ErrorMessage, "insufficient_quota")
		assert.NotContains(t, run.ErrorMessage, "http 500")
	})

	t.Run("database error", func(t *testing.T) {
		h := newHarness(t)
		h.store.FinalizeErr = errors.New(dbErr)
		runID := h.queue(t)

		res, err := h.orch.Execute(context.Background(), runID)
		require.NoError(t, err)
		assert.Equal(t, models.ReasonInternal, res.Reason)

		podcast := h.store.Podcast(res.PodcastID)
		run := h.store.Run(runID)
		assert.Equal(t, "Internal error", podcast.ErrorMessage)
		assert.Equal(t, "Internal error", run.ErrorMessage)
		assert.NotContains(t, run.ErrorMessage, "pq:")
	})
}

func TestExecuteNotificationFailureKeepsSuccess(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = errors.New("telegram down")
	runID := h.queue(t)

	res, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, models.RunSucceeded, res.Status)
}

func TestExecuteSkipsSeenArticles(t *testing.T) {
	h := newHarness(t)
	h.job.FilterConfig.SkipSeen = true
	first := h.queue(t)
	_, err := h.orch.Execute(context.Background(), first)
	require.NoError(t, err)

	second := h.queue(t)
	res, err := h.orch.Execute(context.Background(), second)
	require.NoError(t, err)
	assert.Equal(t, models.ReasonNoContent, res.Reason)
}

func TestExecuteRefusesTerminalRun(t *testing.T) {
	h := newHarness(t)
	runID := h.queue(t)
	_, err := h.orch.Execute(context.Background(), runID)
	require.NoError(t, err)

	_, err = h.orch.Execute(context.Background(), runID)
	assert.ErrorIs(t, err, db.ErrInvalidTransition)
	assert.Equal(t, models.RunSucceeded, h.store.Run(runID).Status)
	assert.Equal(t, 1, h.store.Increments)

	err = h.store.FailRun(context.Background(), runID, models.ReasonInterrupted, "late", now)
	assert.ErrorIs(t, err, db.ErrInvalidTransition)
}

func TestExecuteUsageMatchesDonePodcasts(t *testing.T) {
	h := newHarness(t)
	h.store.Users[h.user.ID].Plan = models.PlanPro

	for i := 0; i < 4; i++ {
		if i == 2 {
			h.synth.err = errors.New("flaky")
		} else {
			h.synth.err = nil
		}
		_, err := h.orch.Execute(context.Background(), h.queue(t))
		require.NoError(t, err)
	}

	done := 0
	for _, p := range h.store.Podcasts {
		if p.Status == models.PodcastDone {
			done++
		}
	}
	succeeded := 0
	for _, r := range h.store.Runs {
		if r.Status == models.RunSucceeded {
			succeeded++
		}
	}
	assert.Equal(t, 3, done)
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, 3, h.store.UsageCount(h.user.ID, month))
}
