package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"daybreak/api/internal/auth"
	"daybreak/api/internal/authpw"
	"daybreak/api/internal/config"
	"daybreak/api/internal/export"
	"daybreak/api/internal/search"
	"daybreak/api/internal/store"
	"daybreak/api/internal/streak"
	"daybreak/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

type CreateHabitInput struct {
	Title        string `json:"title"`
	TargetPerDay int    `json:"targetPerDay"`
}

type CreateRoutineInput struct {
	Title          string `json:"title"`
	DaysOfWeek     []int  `json:"daysOfWeek"`
	TimeOfDay      string `json:"timeOfDay"`
	ReminderHour   *int   `json:"reminderHour"`
	ReminderMinute *int   `json:"reminderMinute"`
}

type UpdateRoutineInput struct {
	Title          *string `json:"title"`
	IsActive       *bool   `json:"isActive"`
	DaysOfWeek     []int   `json:"daysOfWeek"`
	TimeOfDay      *string `json:"timeOfDay"`
	ReminderHour   *int    `json:"reminderHour"`
	ReminderMinute *int    `json:"reminderMinute"`
	ClearReminder  bool    `json:"clearReminder"`
	Position       *int    `json:"position"`
}

type AddStepInput struct {
	Title      string  `json:"title"`
	HabitID    *string `json:"habitId"`
	IsOptional bool    `json:"isOptional"`
}

type LogMoodInput struct {
	Mood string `json:"mood"`
	Note string `json:"note"`
}

var allowedTimesOfDay = map[string]struct{}{
	"morning":   {},
	"afternoon": {},
	"evening":   {},
	"anytime":   {},
}

var allowedMoods = map[string]struct{}{
	"awful": {},
	"bad":   {},
	"okay":  {},
	"good":  {},
	"great": {},
}

type dataStore interface {
	CreateUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	GetUserByEmail(context.Context, string) (store.User, error)
	UpdateUserProfile(context.Context, string, string, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	InsertHabit(context.Context, string, store.Habit) error
	GetHabit(context.Context, string, string) (store.Habit, error)
	ListHabits(context.Context, string) ([]store.Habit, error)
	SetHabitActive(context.Context, string, string, bool) error
	IncrementHabitCount(context.Context, string, string, time.Time) (int, error)
	HabitCountForDay(context.Context, string, string, time.Time) (int, error)
	HabitCountsForDay(context.Context, string, time.Time) (map[string]int, error)
	ListHabitLogs(context.Context, string, string, time.Time, time.Time) ([]store.HabitLog, error)
	HabitDayKeys(context.Context, string, string, time.Time, time.Time) ([]string, error)

	InsertRoutine(context.Context, string, store.Routine) error
	GetRoutine(context.Context, string, string) (store.Routine, error)
	ListRoutines(context.Context, string) ([]store.Routine, error)
	UpdateRoutine(context.Context, string, string, store.RoutineUpdate) error
	DeleteRoutine(context.Context, string, string) error
	InsertStep(context.Context, string, store.RoutineStep) error
	DeleteStep(context.Context, string, string, string) error
	ListSteps(context.Context, string, string) ([]store.RoutineStep, error)
	BumpStepsCount(context.Context, string, string, int) error
	ReorderSteps(context.Context, string, string, []string) error
	ToggleStep(context.Context, string, string, string, time.Time) (store.RoutineLog, error)
	RemoveStepFromDayLog(context.Context, string, string, string, time.Time) error
	RoutineLogsForDay(context.Context, string, time.Time) (map[string]store.RoutineLog, error)
	CompletedRoutineDayKeys(context.Context, string, string, time.Time, time.Time) ([]string, error)

	InsertMood(context.Context, string, store.Mood) error
	ListRecentMoods(context.Context, string, int) ([]store.Mood, error)
	DeleteMood(context.Context, string, string) error

	Ping(ctx context.Context) error
}

// sessionStore holds refresh sessions. Redis when configured, the Postgres
// fallback otherwise; both satisfy this.
type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (string, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	search    *search.Service
	export    *export.Service
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions sessionStore, searchSvc *search.Service, exportSvc *export.Service) *Service {
	if sessions == nil {
		sessions = dataStore
	}
	return &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		passwords: authpw.NewService(dataStore),
		search:    searchSvc,
		export:    exportSvc,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Passwords() *authpw.Service {
	return s.passwords
}

//  Sessions

func (s *Service) CreateSession(ctx context.Context, userID string) (Session, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.TokenSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	userID, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.TokenSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	return Session{
		Token:     token,
		UserID:    claims.Sub,
		UserName:  claims.Name,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		_ = s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
	}
	return nil
}

//  Habits

func (s *Service) CreateHabit(ctx context.Context, userID string, input CreateHabitInput) (store.Habit, error) {
	if input.Title == "" {
		return store.Habit{}, errValidation("title is required")
	}
	target := input.TargetPerDay
	if target == 0 {
		target = 1
	}
	if target < 1 {
		return store.Habit{}, errValidation("targetPerDay must be at least 1")
	}

	habit := store.Habit{
		ID:           util.NewID("hab"),
		Title:        input.Title,
		TargetPerDay: target,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	if err := s.store.InsertHabit(ctx, userID, habit); err != nil {
		return store.Habit{}, err
	}
	s.indexHabit(userID, habit)
	return habit, nil
}

func (s *Service) ListHabits(ctx context.Context, userID string) ([]store.Habit, error) {
	return s.store.ListHabits(ctx, userID)
}

func (s *Service) SetHabitActive(ctx context.Context, userID, habitID string, isActive bool) error {
	habit, err := s.store.GetHabit(ctx, userID, habitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("habit")
		}
		return err
	}
	if err := s.store.SetHabitActive(ctx, userID, habitID, isActive); err != nil {
		return err
	}
	habit.IsActive = isActive
	s.indexHabit(userID, habit)
	return nil
}

// Tick increments the habit's counter for the given day and returns the new
// count. The increment is server-side atomic; concurrent ticks never lose
// updates.
func (s *Service) Tick(ctx context.Context, userID, habitID string, day time.Time) (int, error) {
	if _, err := s.store.GetHabit(ctx, userID, habitID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errNotFound("habit")
		}
		return 0, err
	}
	return s.store.IncrementHabitCount(ctx, userID, habitID, day)
}

// TickCapped increments only while the day's count is below the habit's
// target, returning TARGET_REACHED once it is not. The check and the
// increment are separate reads, so two racing callers can both pass the
// check and push the count one past the target; the cap is best effort.
func (s *Service) TickCapped(ctx context.Context, userID, habitID string, day time.Time) (int, error) {
	habit, err := s.store.GetHabit(ctx, userID, habitID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, errNotFound("habit")
		}
		return 0, err
	}

	count, err := s.store.HabitCountForDay(ctx, userID, habitID, day)
	if err != nil {
		return 0, err
	}
	if count >= habit.TargetPerDay {
		return count, errTargetReached(habitID, count, habit.TargetPerDay)
	}
	return s.store.IncrementHabitCount(ctx, userID, habitID, day)
}

func (s *Service) CountsForDay(ctx context.Context, userID string, day time.Time) (map[string]int, error) {
	counts, err := s.store.HabitCountsForDay(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = map[string]int{}
	}
	return counts, nil
}

func (s *Service) HabitLogs(ctx context.Context, userID, habitID string, from, to time.Time) ([]store.HabitLog, error) {
	if !from.Before(to) {
		return nil, errValidation("from must be before to")
	}
	return s.store.ListHabitLogs(ctx, userID, habitID, from, to)
}

// HabitStreak counts consecutive days ending today with any record for the
// habit, bounded by the configured lookback window.
func (s *Service) HabitStreak(ctx context.Context, userID, habitID string, today time.Time) (int, error) {
	lookback := s.cfg.StreakLookbackDays
	from := today.AddDate(0, 0, -lookback)
	keys, err := s.store.HabitDayKeys(ctx, userID, habitID, from, today)
	if err != nil {
		return 0, err
	}
	return streak.Trailing(keySet(keys), today, lookback), nil
}

//  Routines

func (s *Service) CreateRoutine(ctx context.Context, userID string, input CreateRoutineInput) (store.Routine, error) {
	if input.Title == "" {
		return store.Routine{}, errValidation("title is required")
	}
	timeOfDay := input.TimeOfDay
	if timeOfDay == "" {
		timeOfDay = "anytime"
	}
	if _, ok := allowedTimesOfDay[timeOfDay]; !ok {
		return store.Routine{}, errValidation("timeOfDay must be morning, afternoon, evening or anytime")
	}
	days := input.DaysOfWeek
	if len(days) == 0 {
		days = []int{1, 2, 3, 4, 5, 6, 7}
	}
	if err := validateDaysOfWeek(days); err != nil {
		return store.Routine{}, err
	}
	if err := validateReminder(input.ReminderHour, input.ReminderMinute); err != nil {
		return store.Routine{}, err
	}

	existing, err := s.store.ListRoutines(ctx, userID)
	if err != nil {
		return store.Routine{}, err
	}

	now := time.Now()
	routine := store.Routine{
		ID:             util.NewID("rtn"),
		Title:          input.Title,
		IsActive:       true,
		DaysOfWeek:     days,
		TimeOfDay:      timeOfDay,
		ReminderHour:   input.ReminderHour,
		ReminderMinute: input.ReminderMinute,
		Position:       len(existing),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.InsertRoutine(ctx, userID, routine); err != nil {
		return store.Routine{}, err
	}
	s.indexRoutine(userID, routine)
	return routine, nil
}

func (s *Service) UpdateRoutine(ctx context.Context, userID, routineID string, input UpdateRoutineInput) (store.Routine, error) {
	if input.Title != nil && *input.Title == "" {
		return store.Routine{}, errValidation("title must not be empty")
	}
	if input.TimeOfDay != nil {
		if _, ok := allowedTimesOfDay[*input.TimeOfDay]; !ok {
			return store.Routine{}, errValidation("timeOfDay must be morning, afternoon, evening or anytime")
		}
	}
	if input.DaysOfWeek != nil {
		if err := validateDaysOfWeek(input.DaysOfWeek); err != nil {
			return store.Routine{}, err
		}
	}
	if !input.ClearReminder {
		if err := validateReminder(input.ReminderHour, input.ReminderMinute); err != nil {
			return store.Routine{}, err
		}
	}

	err := s.store.UpdateRoutine(ctx, userID, routineID, store.RoutineUpdate{
		Title:          input.Title,
		IsActive:       input.IsActive,
		DaysOfWeek:     input.DaysOfWeek,
		TimeOfDay:      input.TimeOfDay,
		ReminderHour:   input.ReminderHour,
		ReminderMinute: input.ReminderMinute,
		ClearReminder:  input.ClearReminder,
		Position:       input.Position,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Routine{}, errNotFound("routine")
		}
		return store.Routine{}, err
	}

	routine, err := s.store.GetRoutine(ctx, userID, routineID)
	if err != nil {
		return store.Routine{}, err
	}
	s.indexRoutine(userID, routine)
	return routine, nil
}

// DeleteRoutine removes the routine and its steps. The fan-out is not
// transactional and day logs are kept as historic record.
func (s *Service) DeleteRoutine(ctx context.Context, userID, routineID string) error {
	if _, err := s.store.GetRoutine(ctx, userID, routineID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("routine")
		}
		return err
	}
	if err := s.store.DeleteRoutine(ctx, userID, routineID); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteRoutine(routineID)
	}
	return nil
}

// RoutineWithSteps pairs a routine with its ordered steps for list payloads.
type RoutineWithSteps struct {
	Routine store.Routine
	Steps   []store.RoutineStep
}

func (s *Service) ListRoutines(ctx context.Context, userID string) ([]RoutineWithSteps, error) {
	routines, err := s.store.ListRoutines(ctx, userID)
	if err != nil {
		return nil, err
	}
	items := make([]RoutineWithSteps, 0, len(routines))
	for _, routine := range routines {
		steps, err := s.store.ListSteps(ctx, userID, routine.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, RoutineWithSteps{Routine: routine, Steps: steps})
	}
	return items, nil
}

// AddStep appends a step to the routine. The insert and the stepsCount
// increment are two separate writes; a crash between them leaves the count
// one low until the next transactional log write recomputes totals.
func (s *Service) AddStep(ctx context.Context, userID, routineID string, input AddStepInput) (store.RoutineStep, error) {
	if input.Title == "" {
		return store.RoutineStep{}, errValidation("title is required")
	}
	routine, err := s.store.GetRoutine(ctx, userID, routineID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.RoutineStep{}, errNotFound("routine")
		}
		return store.RoutineStep{}, err
	}

	step := store.RoutineStep{
		ID:         util.NewID("stp"),
		RoutineID:  routineID,
		Title:      input.Title,
		HabitID:    input.HabitID,
		Position:   routine.StepsCount,
		IsOptional: input.IsOptional,
	}
	if err := s.store.InsertStep(ctx, userID, step); err != nil {
		return store.RoutineStep{}, err
	}
	if err := s.store.BumpStepsCount(ctx, userID, routineID, 1); err != nil {
		return store.RoutineStep{}, err
	}
	return step, nil
}

// DeleteStep removes the step, decrements the routine's stepsCount, then
// fixes today's log. The decrement lands before the log-fix transaction
// reads the count, so the recomputed isCompleted reflects the new total.
func (s *Service) DeleteStep(ctx context.Context, userID, routineID, stepID string, day time.Time) error {
	if _, err := s.store.GetRoutine(ctx, userID, routineID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("routine")
		}
		return err
	}
	if err := s.store.DeleteStep(ctx, userID, routineID, stepID); err != nil {
		return err
	}
	if err := s.store.BumpStepsCount(ctx, userID, routineID, -1); err != nil {
		return err
	}
	if err := s.store.RemoveStepFromDayLog(ctx, userID, routineID, stepID, day); err != nil {
		if errors.Is(err, store.ErrTxConflict) {
			return errTxConflict()
		}
		return err
	}
	return nil
}

func (s *Service) ReorderSteps(ctx context.Context, userID, routineID string, orderedIDs []string) error {
	if len(orderedIDs) == 0 {
		return errValidation("stepIds is required")
	}
	if _, err := s.store.GetRoutine(ctx, userID, routineID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("routine")
		}
		return err
	}
	return s.store.ReorderSteps(ctx, userID, routineID, orderedIDs)
}

func (s *Service) ToggleStep(ctx context.Context, userID, routineID, stepID string, day time.Time) (store.RoutineLog, error) {
	log, err := s.store.ToggleStep(ctx, userID, routineID, stepID, day)
	if err != nil {
		if errors.Is(err, store.ErrTxConflict) {
			return store.RoutineLog{}, errTxConflict()
		}
		if errors.Is(err, sql.ErrNoRows) {
			return store.RoutineLog{}, errNotFound("routine")
		}
		return store.RoutineLog{}, err
	}
	return log, nil
}

func (s *Service) RoutineLogsForDay(ctx context.Context, userID string, day time.Time) (map[string]store.RoutineLog, error) {
	return s.store.RoutineLogsForDay(ctx, userID, day)
}

// RoutineStreak counts consecutive completed days ending today, bounded by
// the configured lookback window. Days with a partial log do not count.
func (s *Service) RoutineStreak(ctx context.Context, userID, routineID string, today time.Time) (int, error) {
	lookback := s.cfg.StreakLookbackDays
	from := today.AddDate(0, 0, -lookback)
	keys, err := s.store.CompletedRoutineDayKeys(ctx, userID, routineID, from, today)
	if err != nil {
		return 0, err
	}
	return streak.Trailing(keySet(keys), today, lookback), nil
}

//  Moods

func (s *Service) LogMood(ctx context.Context, userID string, input LogMoodInput) (store.Mood, error) {
	if _, ok := allowedMoods[input.Mood]; !ok {
		return store.Mood{}, errValidation("mood must be one of awful, bad, okay, good, great")
	}
	mood := store.Mood{
		ID:        util.NewID("mood"),
		Mood:      input.Mood,
		Note:      input.Note,
		CreatedAt: time.Now(),
	}
	if err := s.store.InsertMood(ctx, userID, mood); err != nil {
		return store.Mood{}, err
	}
	return mood, nil
}

func (s *Service) RecentMoods(ctx context.Context, userID string, limit int) ([]store.Mood, error) {
	return s.store.ListRecentMoods(ctx, userID, limit)
}

func (s *Service) DeleteMood(ctx context.Context, userID, moodID string) error {
	return s.store.DeleteMood(ctx, userID, moodID)
}

//  Search and export

func (s *Service) Search(ctx context.Context, userID, text string, filterType search.ResultType, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(search.Query{
		Text:       text,
		UserID:     userID,
		FilterType: filterType,
		Limit:      limit,
		Offset:     offset,
	})
}

func (s *Service) ExportReport(ctx context.Context, session Session, from, to time.Time, format export.Format) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(http.StatusServiceUnavailable, "UNAVAILABLE", "Export service not configured", nil)
	}
	return s.export.Export(ctx, export.Request{
		UserID:   session.UserID,
		UserName: session.UserName,
		From:     from,
		To:       to,
		Format:   format,
	})
}

func (s *Service) indexHabit(userID string, habit store.Habit) {
	if s.search == nil {
		return
	}
	s.search.IndexHabit(search.HabitRecord{
		ID:       habit.ID,
		UserID:   userID,
		Title:    habit.Title,
		IsActive: habit.IsActive,
	})
}

func (s *Service) indexRoutine(userID string, routine store.Routine) {
	if s.search == nil {
		return
	}
	s.search.IndexRoutine(search.RoutineRecord{
		ID:        routine.ID,
		UserID:    userID,
		Title:     routine.Title,
		TimeOfDay: routine.TimeOfDay,
		IsActive:  routine.IsActive,
	})
}

func keySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, key := range keys {
		set[key] = true
	}
	return set
}

func validateDaysOfWeek(days []int) error {
	seen := map[int]bool{}
	for _, day := range days {
		if day < 1 || day > 7 {
			return errValidation("daysOfWeek values must be 1 through 7")
		}
		if seen[day] {
			return errValidation("daysOfWeek must not repeat")
		}
		seen[day] = true
	}
	return nil
}

func validateReminder(hour, minute *int) error {
	if hour == nil && minute == nil {
		return nil
	}
	if hour == nil || minute == nil {
		return errValidation("reminderHour and reminderMinute must be set together")
	}
	if *hour < 0 || *hour > 23 || *minute < 0 || *minute > 59 {
		return errValidation("reminder time out of range")
	}
	return nil
}
