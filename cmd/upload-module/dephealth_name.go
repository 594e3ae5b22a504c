// dephealth_name.go — извлечение имени владельца пода из hostname.
// Kubernetes добавляет к имени Deployment суффиксы ReplicaSet и пода
// (например upload-module-7d8f9b6c4f-x2k9z), к имени StatefulSet —
// порядковый номер (upload-module-0). Для метки name в topologymetrics
// нужны метрики без пер-подовой кардинальности.
package main

import "strings"

// parseOwnerName отбрасывает Kubernetes-суффиксы от hostname пода.
// Если hostname не похож на имя пода — возвращает его как есть.
func parseOwnerName(hostname string) string {
	parts := strings.Split(hostname, "-")

	// StatefulSet: <name>-<ordinal>
	if len(parts) >= 2 && isDigits(parts[len(parts)-1]) {
		return strings.Join(parts[:len(parts)-1], "-")
	}

	// Deployment: <name>-<replicaset-hash>-<pod-suffix>
	if len(parts) >= 3 {
		last := parts[len(parts)-1]
		hash := parts[len(parts)-2]
		if isPodSuffix(last) && isReplicaSetHash(hash) {
			return strings.Join(parts[:len(parts)-2], "-")
		}
	}

	return hostname
}

// isDigits проверяет, что строка непуста и состоит только из цифр.
func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// isPodSuffix — случайный суффикс пода: 5 строчных букв/цифр.
func isPodSuffix(s string) bool {
	if len(s) != 5 {
		return false
	}
	return isLowerAlnum(s)
}

// isReplicaSetHash — хеш ReplicaSet: 8-10 строчных букв/цифр,
// содержит хотя бы одну цифру.
func isReplicaSetHash(s string) bool {
	if len(s) < 8 || len(s) > 10 {
		return false
	}
	if !isLowerAlnum(s) {
		return false
	}
	for _, c := range s {
		if c >= '0' && c <= '9' {
			return true
		}
	}
	return false
}

func isLowerAlnum(s string) bool {
	for _, c := range s {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
