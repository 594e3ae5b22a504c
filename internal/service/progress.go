package service

import (
	"context"

	"github.com/bigkaa/modelreg/upload-module/internal/domain/model"
)

// ProgressInfo — состояние загрузки для отчёта клиенту.
type ProgressInfo struct {
	// Session — снимок сессии
	Session *model.UploadSession
	// PercentComplete — доля принятых байт, 0..100
	PercentComplete float64
	// BytesRemaining — сколько байт ещё не принято
	BytesRemaining int64
	// SpeedBPS — скорость приёма за скользящее окно, байт/с.
	// 0 — в окне не было ни одного чанка.
	SpeedBPS float64
	// ETASeconds — оценка оставшегося времени. nil, если скорость
	// неизвестна или загрузка завершена.
	ETASeconds *int64
	// MissingChunks — индексы ещё не принятых чанков по возрастанию
	MissingChunks []int
}

// Progress возвращает прогресс сессии: процент, скорость за
// скользящее окно и оценку оставшегося времени. Доступен для сессии
// в любом статусе.
func (s *UploadService) Progress(ctx context.Context, sessionID string) (*ProgressInfo, *UploadError) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, sessionLookupError(sessionID, err)
	}

	info := &ProgressInfo{
		Session:         sess,
		PercentComplete: sess.PercentComplete() * 100,
		MissingChunks:   sess.MissingChunks(),
	}

	speed, err := s.sessions.Speed(sessionID)
	if err != nil {
		// Сессию успели удалить между Get и Speed
		return nil, sessionLookupError(sessionID, err)
	}
	info.SpeedBPS = speed

	info.BytesRemaining = sess.DeclaredTotalSize - sess.BytesReceived
	if speed > 0 && info.BytesRemaining > 0 {
		eta := int64(float64(info.BytesRemaining) / speed)
		info.ETASeconds = &eta
	}

	return info, nil
}
