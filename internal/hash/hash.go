// Пакет hash — движок контрольных сумм Upload Module.
// Два алгоритма: SHA-256 (строгий дайджест, контракт целостности API)
// и MD5 (быстрая контрольная сумма, legacy-поле md5_checksum реестра).
// Поддерживает потоковый подсчёт обоих хэшей за один проход.
package hash

import (
	"crypto/md5" //nolint:gosec // MD5 — вторичная контрольная сумма, не криптографическая защита
	"crypto/sha256"
	"encoding/hex"
	gohash "hash"
)

// Digest — результат хэширования: оба дайджеста и количество байт.
type Digest struct {
	// SHA256 — hex-представление SHA-256 (64 символа)
	SHA256 string
	// MD5 — hex-представление MD5 (32 символа)
	MD5 string
	// Size — количество обработанных байт
	Size int64
}

// Writer — потоковый хэшер. Реализует io.Writer: всё записанное
// учитывается в SHA-256 и MD5 одновременно. Не потокобезопасен.
type Writer struct {
	sha  gohash.Hash
	md   gohash.Hash
	size int64
}

// NewWriter создаёт потоковый хэшер.
func NewWriter() *Writer {
	return &Writer{
		sha: sha256.New(),
		md:  md5.New(), //nolint:gosec
	}
}

// Write добавляет данные в оба хэша. Никогда не возвращает ошибку.
func (w *Writer) Write(p []byte) (int, error) {
	w.sha.Write(p)
	w.md.Write(p)
	w.size += int64(len(p))
	return len(p), nil
}

// Sum возвращает накопленный Digest. Writer можно продолжать использовать.
func (w *Writer) Sum() Digest {
	return Digest{
		SHA256: hex.EncodeToString(w.sha.Sum(nil)),
		MD5:    hex.EncodeToString(w.md.Sum(nil)),
		Size:   w.size,
	}
}

// Size возвращает количество записанных байт.
func (w *Writer) Size() int64 {
	return w.size
}

// Sum вычисляет Digest буфера целиком.
func Sum(data []byte) Digest {
	w := NewWriter()
	_, _ = w.Write(data)
	return w.Sum()
}

// SHA256Hex возвращает hex SHA-256 буфера.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsValidSHA256Hex проверяет, что строка — корректный hex SHA-256.
func IsValidSHA256Hex(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
