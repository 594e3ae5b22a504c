// reaper.go — сервис фоновой очистки истёкших upload-сессий.
//
// Reaper выполняет три задачи:
//  1. Помечает active сессии с истёкшим TTL как expired и освобождает staging
//  2. Возвращает expired застрявшие finalizing сессии (упавший процесс
//     посреди сборки) после grace-периода
//  3. Удаляет записи терминальных сессий спустя TTL после истечения
//     и подчищает завершённые журнальные записи
//
// Запускается как горутина с периодическим тикером (UM_REAPER_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
	"github.com/bigkaa/modelreg/upload-module/internal/session"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/chunkstore"
	"github.com/bigkaa/modelreg/upload-module/internal/storage/journal"
)

// Prometheus метрики reaper
var (
	// reaperRunsTotal — количество запусков reaper.
	reaperRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_reaper_runs_total",
		Help: "Общее количество запусков reaper",
	})

	// reaperSessionsExpiredTotal — количество сессий, помеченных как expired.
	reaperSessionsExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_reaper_sessions_expired_total",
		Help: "Общее количество сессий, помеченных reaper как expired",
	})

	// reaperSessionsRemovedTotal — количество удалённых записей терминальных сессий.
	reaperSessionsRemovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "um_reaper_sessions_removed_total",
		Help: "Общее количество записей сессий, удалённых reaper",
	})

	// reaperDurationSeconds — длительность выполнения reaper.
	reaperDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "um_reaper_duration_seconds",
		Help:    "Длительность выполнения reaper в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ReaperResult — результат одного запуска reaper.
type ReaperResult struct {
	// ExpiredCount — количество сессий, помеченных как expired
	ExpiredCount int
	// RemovedCount — количество удалённых записей терминальных сессий
	RemovedCount int
	// JournalCleaned — количество удалённых журнальных записей
	JournalCleaned int
	// Errors — количество ошибок при обработке сессий
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// Reaper — сервис фоновой очистки истёкших сессий.
type Reaper struct {
	sessions *session.Store
	chunks   *chunkstore.ChunkStore
	jrnl     *journal.Journal
	interval time.Duration
	grace    time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex // защита от параллельного запуска RunOnce
	running bool       // флаг работы фонового процесса
	cancel  context.CancelFunc
}

// NewReaper создаёт сервис очистки.
// grace — допуск для finalizing сессий: сборку, начатую до истечения
// TTL, reaper не трогает ещё grace после истечения.
func NewReaper(
	sessions *session.Store,
	chunks *chunkstore.ChunkStore,
	jrnl *journal.Journal,
	interval time.Duration,
	grace time.Duration,
	logger *slog.Logger,
) *Reaper {
	return &Reaper{
		sessions: sessions,
		chunks:   chunks,
		jrnl:     jrnl,
		interval: interval,
		grace:    grace,
		logger:   logger.With(slog.String("component", "reaper")),
		now:      time.Now,
	}
}

// Start запускает фоновую горутину reaper с периодическим тикером.
// Вызывается один раз при старте приложения.
func (r *Reaper) Start(ctx context.Context) {
	rCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	go r.run(rCtx)

	r.logger.Info("Reaper запущен",
		slog.String("interval", r.interval.String()),
		slog.String("grace", r.grace.String()),
	)
}

// Stop останавливает фоновый процесс reaper.
func (r *Reaper) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.running = false
	r.logger.Info("Reaper остановлен")
}

// run — основной цикл фоновой горутины.
func (r *Reaper) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	r.RunOnce()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл очистки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
func (r *Reaper) RunOnce() *ReaperResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	start := time.Now()
	result := &ReaperResult{}

	r.logger.Debug("Reaper запуск начат")

	now := r.now().UTC()

	for _, sess := range r.sessions.List() {
		switch {
		case sess.Status == model.StatusActive && sess.IsExpired(now):
			if r.expireSession(sess.SessionID) {
				result.ExpiredCount++
			} else {
				result.Errors++
			}

		case sess.Status == model.StatusFinalizing && now.After(sess.ExpiresAt.Add(r.grace)):
			// Сборка либо упала вместе с процессом, либо безнадёжно
			// застряла: дольше grace после истечения TTL она не живёт
			if r.expireSession(sess.SessionID) {
				result.ExpiredCount++
			} else {
				result.Errors++
			}

		case sess.Status.IsTerminal() && now.After(sess.ExpiresAt.Add(r.grace)):
			if err := r.chunks.Purge(sess.SessionID); err != nil {
				r.logger.Error("Reaper: ошибка удаления staged-данных",
					slog.String("session_id", sess.SessionID),
					slog.String("error", err.Error()),
				)
				result.Errors++
				continue
			}
			r.sessions.Remove(sess.SessionID)
			r.logger.Debug("Reaper: запись сессии удалена",
				slog.String("session_id", sess.SessionID),
				slog.String("status", string(sess.Status)),
			)
			result.RemovedCount++
		}
	}

	cleaned, err := r.jrnl.CleanFinished()
	if err != nil {
		r.logger.Error("Reaper: ошибка очистки журнала",
			slog.String("error", err.Error()),
		)
		result.Errors++
	}
	result.JournalCleaned = cleaned

	result.Duration = time.Since(start)

	// Обновляем Prometheus метрики
	reaperRunsTotal.Inc()
	reaperSessionsExpiredTotal.Add(float64(result.ExpiredCount))
	reaperSessionsRemovedTotal.Add(float64(result.RemovedCount))
	reaperDurationSeconds.Observe(result.Duration.Seconds())

	r.logger.Info("Reaper завершён",
		slog.Int("expired", result.ExpiredCount),
		slog.Int("removed", result.RemovedCount),
		slog.Int("journal_cleaned", result.JournalCleaned),
		slog.Int("errors", result.Errors),
		slog.Duration("duration", result.Duration),
	)

	return result
}

// expireSession переводит сессию в expired и освобождает staging.
// Запись сессии сохраняется: клиент получит 410, а не 404.
func (r *Reaper) expireSession(sessionID string) bool {
	g, err := r.sessions.Acquire(sessionID)
	if err != nil {
		// Сессию успели удалить
		return false
	}
	defer g.Release()

	sess := g.Session()
	if sess.Status.IsTerminal() {
		// Состояние изменилось, пока мы ждали мьютекс
		return false
	}

	if err := g.SetStatus(model.StatusExpired); err != nil {
		r.logger.Error("Reaper: ошибка перевода сессии в expired",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
		return false
	}

	if err := r.chunks.Purge(sessionID); err != nil {
		r.logger.Warn("Reaper: ошибка удаления staged-данных истёкшей сессии",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	r.logger.Debug("Reaper: сессия помечена как expired",
		slog.String("session_id", sessionID),
	)
	return true
}
