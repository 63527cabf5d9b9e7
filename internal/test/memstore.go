package test

import (
	"context"
	"sort"
	"sync"
	"time"

	"feedcast/internal/apperr"
	"feedcast/internal/db"
	"feedcast/internal/models"
)

// MemStore is an in-memory stand-in for db.Store. Status updates follow the
// same compare-and-set rules as the SQL so tests observe the same transitions.
type MemStore struct {
	mu       sync.Mutex
	Users    map[int64]*models.User
	Jobs     map[int64]*models.Job
	Runs     map[int64]*models.JobRun
	Podcasts map[int64]*models.Podcast
	Voices   map[int64]*models.Voice
	Usage    map[int64]map[string]int

	// Increments counts every usage increment, including those inside a finalize.
	Increments int
	// FinalizeErr, when set, makes FinalizeRun fail without applying anything.
	FinalizeErr error
	// CreateRunErr, when set for a job id, is returned by CreateQueuedRun.
	CreateRunErr map[int64]error

	nextID int64
}

func NewMemStore() *MemStore {
	return &MemStore{
		Users:        map[int64]*models.User{},
		Jobs:         map[int64]*models.Job{},
		Runs:         map[int64]*models.JobRun{},
		Podcasts:     map[int64]*models.Podcast{},
		Voices:       map[int64]*models.Voice{},
		Usage:        map[int64]map[string]int{},
		CreateRunErr: map[int64]error{},
		nextID:       100,
	}
}

func (s *MemStore) id() int64 {
	s.nextID++
	return s.nextID
}

func (s *MemStore) AddUser(u *models.User) *models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == 0 {
		u.ID = s.id()
	}
	if u.Plan == "" {
		u.Plan = models.PlanFree
	}
	s.Users[u.ID] = u
	return u
}

func (s *MemStore) AddJob(j *models.Job) *models.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j.ID == 0 {
		j.ID = s.id()
	}
	if j.Status == "" {
		j.Status = models.JobActive
	}
	s.Jobs[j.ID] = j
	return j
}

func (s *MemStore) AddVoice(v *models.Voice) *models.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.ID == 0 {
		v.ID = s.id()
	}
	s.Voices[v.ID] = v
	return v
}

// AddRun stores r as is; use it to arrange runs in any state.
func (s *MemStore) AddRun(r *models.JobRun) *models.JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.ID == 0 {
		r.ID = s.id()
	}
	s.Runs[r.ID] = r
	return r
}

func (s *MemStore) AddPodcast(p *models.Podcast) *models.Podcast {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.Podcasts[p.ID] = p
	return p
}

func (s *MemStore) SetUsage(userID int64, month string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Usage[userID] == nil {
		s.Usage[userID] = map[string]int{}
	}
	s.Usage[userID][month] = count
}

func (s *MemStore) UsageCount(userID int64, month string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Usage[userID][month]
}

func (s *MemStore) Run(id int64) models.JobRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.Runs[id]
}

func (s *MemStore) Podcast(id int64) models.Podcast {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.Podcasts[id]
}

func (s *MemStore) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.Users[id]
	if !ok {
		return nil, apperr.NotFound("users.notFound")
	}
	cp := *u
	return &cp, nil
}

func (s *MemStore) GetJob(ctx context.Context, id int64) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.Jobs[id]
	if !ok {
		return nil, apperr.NotFound("jobs.notFound")
	}
	cp := *j
	return &cp, nil
}

func (s *MemStore) GetVoice(ctx context.Context, id int64) (*models.Voice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.Voices[id]
	if !ok {
		return nil, apperr.NotFound("voices.notFound")
	}
	cp := *v
	return &cp, nil
}

func (s *MemStore) GetRun(ctx context.Context, id int64) (*models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.Runs[id]
	if !ok {
		return nil, apperr.NotFound("runs.notFound")
	}
	cp := *r
	return &cp, nil
}

func (s *MemStore) GetPodcast(ctx context.Context, id int64) (*models.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Podcasts[id]
	if !ok {
		return nil, apperr.NotFound("podcasts.notFound")
	}
	cp := *p
	return &cp, nil
}

func (s *MemStore) GetUsageCount(ctx context.Context, userID int64, month string) (int, error) {
	return s.UsageCount(userID, month), nil
}

func (s *MemStore) IncrementUsage(ctx context.Context, userID int64, month string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrementLocked(userID, month), nil
}

func (s *MemStore) incrementLocked(userID int64, month string) int {
	if s.Usage[userID] == nil {
		s.Usage[userID] = map[string]int{}
	}
	s.Usage[userID][month]++
	s.Increments++
	return s.Usage[userID][month]
}

func (s *MemStore) CreateQueuedRun(ctx context.Context, jobID int64) (*models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.CreateRunErr[jobID]; err != nil {
		return nil, err
	}
	for _, r := range s.Runs {
		if r.JobID == jobID && !r.Status.Terminal() {
			return nil, db.ErrRunInFlight
		}
	}
	r := &models.JobRun{ID: s.id(), JobID: jobID, Status: models.RunQueued, CreatedAt: time.Now()}
	s.Runs[r.ID] = r
	cp := *r
	return &cp, nil
}

// transition moves a run to status `to` when models.RunStatus.CanTransition allows it.
func (s *MemStore) transition(id int64, to models.RunStatus, apply func(r *models.JobRun)) error {
	r, ok := s.Runs[id]
	if !ok || !r.Status.CanTransition(to) {
		return db.ErrInvalidTransition
	}
	r.Status = to
	apply(r)
	return nil
}

// update changes fields of a run that is still in status while.
func (s *MemStore) update(id int64, while models.RunStatus, apply func(r *models.JobRun)) error {
	r, ok := s.Runs[id]
	if !ok || r.Status != while {
		return db.ErrInvalidTransition
	}
	apply(r)
	return nil
}

func (s *MemStore) MarkRunRunning(ctx context.Context, id int64, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, models.RunRunning, func(r *models.JobRun) {
		r.StartedAt = &startedAt
	})
}

func (s *MemStore) FailRun(ctx context.Context, id int64, reason models.FailureReason, message string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transition(id, models.RunFailed, func(r *models.JobRun) {
		r.FailureReason = string(reason)
		r.ErrorMessage = message
		r.FinishedAt = &finishedAt
	})
}

func (s *MemStore) SetSelectedArticles(ctx context.Context, id int64, articles models.Articles) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.Runs[id]; ok && r.SelectedArticles != nil {
		return db.ErrInvalidTransition
	}
	if articles == nil {
		articles = models.Articles{}
	}
	return s.update(id, models.RunRunning, func(r *models.JobRun) {
		r.SelectedArticles = articles
	})
}

func (s *MemStore) AttachPodcast(ctx context.Context, runID, podcastID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(runID, models.RunRunning, func(r *models.JobRun) {
		r.PodcastID = &podcastID
	})
}

func (s *MemStore) SeenArticleURLs(ctx context.Context, jobID int64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	urls := []string{}
	for _, r := range s.Runs {
		if r.JobID == jobID && r.Status == models.RunSucceeded {
			for _, a := range r.SelectedArticles {
				urls = append(urls, a.URL)
			}
		}
	}
	return urls, nil
}

func (s *MemStore) CreatePodcast(ctx context.Context, userID, jobID int64, title string) (*models.Podcast, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Podcast{ID: s.id(), UserID: userID, JobID: &jobID, Title: title, Status: models.PodcastPending}
	s.Podcasts[p.ID] = p
	cp := *p
	return &cp, nil
}

func (s *MemStore) MarkPodcastProcessing(ctx context.Context, id int64, script models.Script) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Podcasts[id]
	if !ok || p.Status != models.PodcastPending {
		return db.ErrPodcastFinal
	}
	p.Status = models.PodcastProcessing
	p.Title, p.Description, p.Script = script.Title, script.Description, script
	return nil
}

func (s *MemStore) FailPodcast(ctx context.Context, id int64, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Podcasts[id]
	if !ok || p.Status.Final() {
		return db.ErrPodcastFinal
	}
	p.Status = models.PodcastFailed
	p.ErrorMessage = message
	return nil
}

// FinalizeRun applies all three updates or none, like the SQL transaction.
func (s *MemStore) FinalizeRun(ctx context.Context, fp db.FinalizeParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FinalizeErr != nil {
		return s.FinalizeErr
	}
	p, ok := s.Podcasts[fp.PodcastID]
	if !ok || p.Status != models.PodcastProcessing {
		return db.ErrPodcastFinal
	}
	r, ok := s.Runs[fp.RunID]
	if !ok || !r.Status.CanTransition(models.RunSucceeded) {
		return db.ErrInvalidTransition
	}
	p.Status = models.PodcastDone
	p.AudioURL, p.AudioKey, p.AudioSize, p.Duration = fp.AudioURL, fp.AudioKey, fp.AudioSize, fp.Duration
	s.incrementLocked(fp.UserID, fp.Month)
	r.Status = models.RunSucceeded
	r.PodcastID = &fp.PodcastID
	r.FinishedAt = &fp.FinishedAt
	return nil
}

func (s *MemStore) ListDueJobs(ctx context.Context, now time.Time, limit int) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []models.Job
	for _, j := range s.Jobs {
		if j.Status == models.JobActive && j.NextRunAt != nil && !j.NextRunAt.After(now) {
			due = append(due, *j)
		}
	}
	sort.Slice(due, func(a, b int) bool { return due[a].NextRunAt.Before(*due[b].NextRunAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemStore) UpdateJobSchedule(ctx context.Context, jobID int64, lastRunAt, nextRunAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.Jobs[jobID]; ok {
		j.LastRunAt, j.NextRunAt = lastRunAt, nextRunAt
	}
	return nil
}

func (s *MemStore) ListStaleRuns(ctx context.Context, before time.Time) ([]db.StaleRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []db.StaleRun
	for _, r := range s.Runs {
		if r.Status.Terminal() {
			continue
		}
		ref := r.CreatedAt
		if r.StartedAt != nil {
			ref = *r.StartedAt
		}
		if !ref.Before(before) {
			continue
		}
		sr := db.StaleRun{JobRun: *r}
		if j, ok := s.Jobs[r.JobID]; ok {
			sr.UserID = j.UserID
		}
		if r.PodcastID != nil {
			if p, ok := s.Podcasts[*r.PodcastID]; ok {
				status := string(p.Status)
				sr.PodcastStatus = &status
			}
		}
		stale = append(stale, sr)
	}
	sort.Slice(stale, func(a, b int) bool { return stale[a].ID < stale[b].ID })
	return stale, nil
}

func (s *MemStore) CompleteRunUnit(ctx context.Context, runID, podcastID, userID int64, month string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.Podcasts[podcastID]
	if !ok {
		return apperr.NotFound("podcasts.notFound")
	}
	if p.Status != models.PodcastDone {
		return db.ErrInvalidTransition
	}
	r, ok := s.Runs[runID]
	if !ok || !r.Status.CanTransition(models.RunSucceeded) {
		return db.ErrInvalidTransition
	}
	s.incrementLocked(userID, month)
	r.Status = models.RunSucceeded
	r.PodcastID = &podcastID
	r.FinishedAt = &finishedAt
	return nil
}
